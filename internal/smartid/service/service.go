// Package service runs the Smart-ID challenge/response flow across its two
// requests and issues the identity attestation once the holder's signature
// over the challenge checks out.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	platformprovider "idmask/internal/platform/provider"
	"idmask/internal/sessionstore"
	"idmask/internal/smartid"
	"idmask/internal/smartid/metrics"
	"idmask/internal/smartid/provider"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/sentinel"
	"idmask/pkg/requestcontext"
)

// Provider is the relying party API.
type Provider interface {
	Initiate(ctx context.Context, req provider.InitiateRequest) (string, error)
	Poll(ctx context.Context, sessionID string) (*provider.SessionStatus, error)
}

// InitiateRequest is a validated request to start authentication.
type InitiateRequest struct {
	Country     string
	PNO         string
	DisplayText string
}

// InitiateResult is returned to the caller immediately after initiation.
type InitiateResult struct {
	SessionID        string `json:"sessionID"`
	VerificationCode string `json:"verificationCode"`
}

// IdentityAttestation is the signed identity handed back to the holder.
type IdentityAttestation = attestation.Attestation[attestation.IdentityData]

// Service orchestrates the flow. It holds no per-flow state of its own: the
// only thing carried between requests is the session in the identity store.
type Service struct {
	provider  Provider
	sessions  sessionstore.Store[smartid.Session]
	signer    *attestation.Signer
	certs     *smartid.CertificateVerifier
	audit     audit.Emitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	observers []smartid.TransitionObserver
	random    io.Reader
	mockRand  func() *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithAudit sets the audit emitter.
func WithAudit(e audit.Emitter) Option {
	return func(s *Service) { s.audit = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithObserver adds a transition observer.
func WithObserver(o smartid.TransitionObserver) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithRandom overrides the challenge entropy source.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

// WithMockRand overrides the source used for mock identities.
func WithMockRand(f func() *rand.Rand) Option {
	return func(s *Service) { s.mockRand = f }
}

func New(
	p Provider,
	sessions sessionstore.Store[smartid.Session],
	signer *attestation.Signer,
	certs *smartid.CertificateVerifier,
	opts ...Option,
) *Service {
	s := &Service{
		provider: p,
		sessions: sessions,
		signer:   signer,
		certs:    certs,
		logger:   slog.Default(),
		mockRand: func() *rand.Rand { return nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate generates a challenge, submits its digest to the provider and
// stores the session under the provider-issued id.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	flow := smartid.NewFlow(s.observer())

	challenge, err := smartid.NewChallenge(s.random)
	if err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeInternal, "generate challenge"))
	}
	code, err := challenge.VerificationCode()
	if err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeInternal, "derive verification code"))
	}

	start := time.Now()
	sessionID, err := s.provider.Initiate(ctx, provider.InitiateRequest{
		Country:     req.Country,
		PNO:         req.PNO,
		Hash:        challenge.Digest,
		DisplayText: req.DisplayText,
	})
	s.metrics.ObserveProviderCall("initiate", err, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, flow, platformprovider.ToDomainForInput(err, "initiate smart-id session"))
	}
	flow.SessionID = sessionID

	session := smartid.Session{
		SessionID: sessionID,
		Challenge: challenge,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.sessions.Put(ctx, sessionID, session); err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeInternal, "store session"))
	}
	if err := s.advance(flow, smartid.StateAwaitingRemote); err != nil {
		return nil, s.fail(ctx, flow, err)
	}

	s.emit(ctx, audit.EventSmartIDInitiated, audit.OutcomePending, "")
	s.logger.InfoContext(ctx, "smart-id session initiated",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sessionID,
	)
	return &InitiateResult{SessionID: sessionID, VerificationCode: code}, nil
}

// GetData polls the provider once for sessionID. A still-running session
// returns smartid.ErrSessionRunning; a completed one is verified against the
// stored challenge, decoded and signed.
func (s *Service) GetData(ctx context.Context, sessionID string) (*IdentityAttestation, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "session expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}

	flow := smartid.ResumeFlow(sessionID, s.observer())
	if err := s.advance(flow, smartid.StatePolling); err != nil {
		return nil, s.fail(ctx, flow, err)
	}

	start := time.Now()
	status, err := s.provider.Poll(ctx, sessionID)
	s.metrics.ObserveProviderCall("poll", err, time.Since(start))
	if err != nil {
		return nil, s.fail(ctx, flow, platformprovider.ToDomain(err, "poll smart-id session"))
	}

	switch status.State {
	case provider.SessionStateRunning:
		if err := s.advance(flow, smartid.StateAwaitingRemote); err != nil {
			return nil, s.fail(ctx, flow, err)
		}
		return nil, smartid.ErrSessionRunning
	case provider.SessionStateComplete:
	default:
		return nil, s.fail(ctx, flow, dErrors.New(dErrors.CodeUpstream,
			fmt.Sprintf("smart-id returned unexpected session state %q", status.State)))
	}
	if status.Result.EndResult != provider.EndResultOK {
		return nil, s.fail(ctx, flow, dErrors.New(dErrors.CodeUpstream,
			"smart-id session ended with "+status.Result.EndResult))
	}
	if status.Cert == nil || status.Signature == nil {
		return nil, s.fail(ctx, flow, dErrors.New(dErrors.CodeUpstream,
			"smart-id response is missing certificate or signature"))
	}

	now := requestcontext.Now(ctx)
	cert, err := smartid.ParseCertificate(status.Cert.Value)
	if err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "invalid smart-id certificate"))
	}
	if err := s.certs.Verify(cert, status.Signature.Algorithm, status.Signature.Value, session.Challenge, now); err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "smart-id signature does not match challenge"))
	}
	if err := s.advance(flow, smartid.StateVerified); err != nil {
		return nil, s.fail(ctx, flow, err)
	}

	identity, err := smartid.DecodeIdentity(cert)
	if err != nil {
		return nil, s.fail(ctx, flow, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "decode smart-id certificate"))
	}
	if err := s.advance(flow, smartid.StateDecoded); err != nil {
		return nil, s.fail(ctx, flow, err)
	}

	att, err := s.issue(identity, now, 0)
	if err != nil {
		return nil, s.fail(ctx, flow, err)
	}

	s.emit(ctx, audit.EventSmartIDCompleted, audit.OutcomeSuccess, "")
	s.logger.InfoContext(ctx, "smart-id identity attested",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", sessionID,
	)
	return att, nil
}

// MockAttestation signs a synthetic identity flagged as mock data.
func (s *Service) MockAttestation(ctx context.Context) (*IdentityAttestation, error) {
	identity := smartid.GenerateMockIdentity(s.mockRand())
	att, err := s.issue(identity, requestcontext.Now(ctx), 1)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.EventMockIdentityIssued, audit.OutcomeSuccess, "")
	return att, nil
}

func (s *Service) issue(identity smartid.VerifiedIdentity, now time.Time, isMock int) (*IdentityAttestation, error) {
	att, err := attestation.Issue(s.signer, attestation.IdentityData{
		Name:        identity.GivenName,
		Surname:     identity.Surname,
		Country:     identity.CountryCode,
		PNO:         identity.SerialNumber,
		CurrentDate: attestation.CurrentDate(now),
		IsMockData:  isMock,
	})
	if err != nil {
		if errors.Is(err, attestation.ErrStringTooLong) || errors.Is(err, attestation.ErrInvalidUTF8) {
			return nil, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "identity does not fit the attestation encoding")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign identity")
	}
	return att, nil
}

func (s *Service) advance(flow *smartid.Flow, next smartid.State) error {
	if err := flow.Advance(next); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "smart-id flow")
	}
	return nil
}

func (s *Service) fail(ctx context.Context, flow *smartid.Flow, err error) error {
	flow.Fail(err)
	s.emit(ctx, audit.EventSmartIDFailed, audit.OutcomeFailure, string(dErrors.CodeOf(err)))
	s.logger.WarnContext(ctx, "smart-id flow failed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", flow.SessionID,
		"history", flow.History(),
		"error", err,
	)
	return err
}

func (s *Service) emit(ctx context.Context, t audit.EventType, outcome audit.Outcome, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Type:      t,
		Outcome:   outcome,
		Namespace: string(sessionstore.NamespaceIdentity),
		RequestID: requestcontext.RequestID(ctx),
		Reason:    reason,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "type", t, "error", err)
	}
}

func (s *Service) observer() smartid.TransitionObserver {
	observers := make(multiObserver, 0, len(s.observers)+1)
	if s.metrics != nil {
		observers = append(observers, s.metrics)
	}
	return append(observers, s.observers...)
}

type multiObserver []smartid.TransitionObserver

func (m multiObserver) ObserveTransition(state string) {
	for _, o := range m {
		o.ObserveTransition(state)
	}
}
