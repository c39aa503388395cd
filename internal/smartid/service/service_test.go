package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	platformprovider "idmask/internal/platform/provider"
	"idmask/internal/sessionstore"
	"idmask/internal/smartid"
	"idmask/internal/smartid/provider"
	"idmask/internal/smartid/service/mocks"
	"idmask/internal/smartid/smartidtest"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Provider

var holderSubject = smartidtest.Subject{
	GivenName:    "JANE",
	Surname:      "DOE",
	Country:      "EE",
	SerialNumber: "PNOEE-30303039914",
}

type recorder struct {
	states []string
}

func (r *recorder) ObserveTransition(state string) {
	r.states = append(r.states, state)
}

type ServiceSuite struct {
	suite.Suite
	authority *smartidtest.Authority
	holder    *smartidtest.Holder
	signer    *attestation.Signer
	verifier  *attestation.Verifier
	certs     *smartid.CertificateVerifier

	server   *smartidtest.Server
	store    *sessionstore.InMemoryStore[smartid.Session]
	recorder *recorder
	sink     *audit.MemorySink
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupSuite() {
	var err error
	s.authority, err = smartidtest.NewAuthority()
	s.Require().NoError(err)
	s.holder, err = s.authority.Issue(holderSubject, smartidtest.KeyECDSA)
	s.Require().NoError(err)

	priv, _, err := attestation.GenerateKey()
	s.Require().NoError(err)
	s.signer, err = attestation.NewSigner(priv)
	s.Require().NoError(err)
	s.verifier, err = attestation.NewVerifier(s.signer.PublicKey())
	s.Require().NoError(err)
	s.certs, err = smartid.NewCertificateVerifier(s.authority.PEM)
	s.Require().NoError(err)
}

func (s *ServiceSuite) SetupTest() {
	s.server = smartidtest.NewServer(s.holder)
	s.T().Cleanup(s.server.Close)
	s.store = sessionstore.NewInMemoryStore[smartid.Session](sessionstore.NamespaceIdentity, 10)
	s.recorder = &recorder{}
	s.sink = audit.NewMemorySink()
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), time.Now()), "req-1")
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	client := provider.New(provider.StaticRelyingParty{
		UUID:    "00000000-0000-0000-0000-000000000000",
		Name:    "DEMO",
		BaseURL: s.server.BaseURL(),
	}, 30*time.Second, 35*time.Second)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithObserver(s.recorder),
		WithAudit(audit.NewPublisher(s.sink)),
	}
	return New(client, s.store, s.signer, s.certs, append(base, opts...)...)
}

func fixedChallenge() []byte {
	raw := make([]byte, smartid.ChallengeSize)
	for i := range raw {
		raw[i] = byte(i)
	}
	return raw
}

func (s *ServiceSuite) TestFixedChallengeEndsDecoded() {
	svc := s.newService(WithRandom(bytes.NewReader(fixedChallenge())))

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914", DisplayText: "Log in"})
	s.Require().NoError(err)
	s.Equal("1574", started.VerificationCode)
	s.Require().Len(s.server.Initiations, 1)
	s.Equal("7kMg668/208sgysTcgDAjiNeD6e70OsXQMcGO6ig0VHad+ADOY4XFKlV1HWwXj6VC2OVA7RS7Bhd5CKbxIc5SQ==",
		s.server.Initiations[0]["hash"])
	s.Equal([]string{"PNOEE-30303039914"}, s.server.Identifiers)
	s.Equal([]string{"CREATED", "AWAITING_REMOTE"}, s.recorder.states)

	stored, err := s.store.Get(s.ctx, started.SessionID)
	s.Require().NoError(err)
	s.Equal(fixedChallenge(), stored.Challenge.Raw)

	s.recorder.states = nil
	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Require().NoError(err)
	s.Equal([]string{"AWAITING_REMOTE", "POLLING", "VERIFIED", "DECODED"}, s.recorder.states)

	s.Equal(attestation.IdentityData{
		Name:        holderSubject.GivenName,
		Surname:     holderSubject.Surname,
		Country:     holderSubject.Country,
		PNO:         holderSubject.SerialNumber,
		CurrentDate: attestation.CurrentDate(requestcontext.Now(s.ctx)),
		IsMockData:  0,
	}, att.Data)
	s.Equal(s.signer.PublicKey(), att.PublicKey)
	s.NoError(s.verifier.VerifyIdentity(att.Data, att.Signature))

	s.Equal([]audit.EventType{audit.EventSmartIDInitiated, audit.EventSmartIDCompleted}, s.sink.Types())
	for _, e := range s.sink.Events() {
		s.Equal("req-1", e.RequestID)
		s.Equal("identity", e.Namespace)
	}
}

func (s *ServiceSuite) TestRunningSessionIsRetried() {
	s.server.PendingPolls = 1
	svc := s.newService()

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	_, err = svc.GetData(s.ctx, started.SessionID)
	s.ErrorIs(err, smartid.ErrSessionRunning)
	s.Equal("AWAITING_REMOTE", s.recorder.states[len(s.recorder.states)-1])

	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Require().NoError(err)
	s.Equal(holderSubject.SerialNumber, att.Data.PNO)
}

func (s *ServiceSuite) TestTamperedSignatureFails() {
	s.server.TamperSignature = true
	svc := s.newService()

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	s.recorder.states = nil
	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Nil(att)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.ErrorIs(err, smartid.ErrSignatureMismatch)
	s.Equal([]string{"AWAITING_REMOTE", "POLLING", "FAILED"}, s.recorder.states)
	s.NotContains(s.recorder.states, "VERIFIED")
	s.Equal(audit.EventSmartIDFailed, s.sink.Types()[len(s.sink.Types())-1])
}

func (s *ServiceSuite) TestUntrustedCertificateFails() {
	other, err := smartidtest.NewAuthority()
	s.Require().NoError(err)
	forged, err := other.Issue(holderSubject, smartidtest.KeyECDSA)
	s.Require().NoError(err)
	s.server.CertOverride = forged.CertValue()
	svc := s.newService()

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Nil(att)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.Equal("FAILED", s.recorder.states[len(s.recorder.states)-1])
}

func (s *ServiceSuite) TestEditedSubjectNeverReachesDecoder() {
	s.server.CertOverride = smartidtest.ReplaceInCertificate(s.holder.DER, "JANE", "KANE")
	svc := s.newService()

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	s.recorder.states = nil
	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Nil(att)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.ErrorIs(err, smartid.ErrInvalidCertificate)
	s.Equal([]string{"AWAITING_REMOTE", "POLLING", "FAILED"}, s.recorder.states)
}

func (s *ServiceSuite) TestMissingTrustAnchorsRejectsValidHolder() {
	client := provider.New(provider.StaticRelyingParty{
		UUID:    "00000000-0000-0000-0000-000000000000",
		Name:    "DEMO",
		BaseURL: s.server.BaseURL(),
	}, 30*time.Second, 35*time.Second)
	svc := New(client, s.store, s.signer, nil, WithObserver(s.recorder))

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	att, err := svc.GetData(s.ctx, started.SessionID)
	s.Nil(att)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	s.ErrorIs(err, smartid.ErrNoTrustAnchors)
	s.NotContains(s.recorder.states, "DECODED")
}

func (s *ServiceSuite) TestRefusedSessionIsUpstreamError() {
	s.server.EndResult = "USER_REFUSED"
	svc := s.newService()

	started, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	_, err = svc.GetData(s.ctx, started.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.ErrorContains(err, "USER_REFUSED")
}

func (s *ServiceSuite) TestUnknownSessionIsExpired() {
	svc := s.newService()

	_, err := svc.GetData(s.ctx, "no-such-session")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.ErrorContains(err, "session expired")
	s.Empty(s.recorder.states)
}

func (s *ServiceSuite) TestEvictedSessionIsExpired() {
	s.store = sessionstore.NewInMemoryStore[smartid.Session](sessionstore.NamespaceIdentity, 1)
	svc := s.newService()

	first, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)
	_, err = svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
	s.Require().NoError(err)

	evicted, err := s.store.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, evicted)

	_, err = svc.GetData(s.ctx, first.SessionID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestInitiateProviderFailureStoresNothing() {
	ctrl := gomock.NewController(s.T())
	mock := mocks.NewMockProvider(ctrl)
	mock.EXPECT().Initiate(gomock.Any(), gomock.Any()).
		Return("", platformprovider.NewError(platformprovider.ErrorProviderOutage, provider.ProviderID, "request failed", errors.New("connection refused")))

	svc := New(mock, s.store, s.signer, s.certs, WithObserver(s.recorder), WithAudit(audit.NewPublisher(s.sink)))
	_, err := svc.Initiate(s.ctx, InitiateRequest{Country: "LT", PNO: "36203292548"})

	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	n, lenErr := s.store.Len(s.ctx)
	s.Require().NoError(lenErr)
	s.Zero(n)
	s.Equal([]string{"CREATED", "FAILED"}, s.recorder.states)
	s.Equal([]audit.EventType{audit.EventSmartIDFailed}, s.sink.Types())
	s.Equal(string(dErrors.CodeUpstream), s.sink.Events()[0].Reason)
}

func (s *ServiceSuite) TestInitiateRejectedInputIsClientError() {
	cases := []struct {
		name   string
		status int
		code   dErrors.Code
	}{
		{"unknown account", http.StatusNotFound, dErrors.CodeNotFound},
		{"malformed identifier", http.StatusBadRequest, dErrors.CodeBadRequest},
		{"maintenance", 580, dErrors.CodeUpstream},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			ctrl := gomock.NewController(s.T())
			mock := mocks.NewMockProvider(ctrl)
			mock.EXPECT().Initiate(gomock.Any(), gomock.Any()).
				Return("", platformprovider.FromStatus(provider.ProviderID, tc.status, `{"title":"upstream says no"}`))

			svc := New(mock, s.store, s.signer, s.certs)
			_, err := svc.Initiate(s.ctx, InitiateRequest{Country: "EE", PNO: "30303039914"})
			s.True(dErrors.HasCode(err, tc.code))
			s.ErrorContains(err, "upstream says no")
		})
	}
}

func (s *ServiceSuite) TestCompleteWithoutCertificateIsUpstreamError() {
	ctrl := gomock.NewController(s.T())
	mock := mocks.NewMockProvider(ctrl)
	challenge, err := smartid.ChallengeFromRaw(fixedChallenge())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(s.ctx, "sess-1", smartid.Session{SessionID: "sess-1", Challenge: challenge}))
	mock.EXPECT().Poll(gomock.Any(), "sess-1").Return(&provider.SessionStatus{
		State:  provider.SessionStateComplete,
		Result: provider.SessionResult{EndResult: provider.EndResultOK},
	}, nil)

	svc := New(mock, s.store, s.signer, s.certs, WithObserver(s.recorder))
	_, err = svc.GetData(s.ctx, "sess-1")
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Equal("FAILED", s.recorder.states[len(s.recorder.states)-1])
}

func (s *ServiceSuite) TestMockAttestation() {
	svc := s.newService(WithMockRand(func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }))

	att, err := svc.MockAttestation(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, att.Data.IsMockData)
	s.Contains([]string{"EE", "LV", "LT"}, att.Data.Country)
	s.Regexp(`^PNO(EE|LV|LT)-\d{11}$`, att.Data.PNO)
	s.NoError(s.verifier.VerifyIdentity(att.Data, att.Signature))

	again, err := svc.MockAttestation(s.ctx)
	s.Require().NoError(err)
	s.Equal(att.Data, again.Data, "same seed yields the same identity")
}
