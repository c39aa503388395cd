// Package service screens an attested identity against the sanctions list and
// signs the boolean outcome.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	platformprovider "idmask/internal/platform/provider"
	"idmask/internal/sanctions"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/requestcontext"
)

// Matcher runs the remote sanctions search.
type Matcher interface {
	Search(ctx context.Context, minScore int, c sanctions.Case) (*sanctions.MatchResult, error)
}

// ScreenRequest carries an identity attestation issued by this oracle.
type ScreenRequest struct {
	Data      attestation.IdentityData
	Signature attestation.Signature
	MinScore  int
}

// ScreenResult is the signed sanctions attestation plus the unsigned provider
// response.
type ScreenResult struct {
	Data      attestation.SanctionsData `json:"data"`
	Signature attestation.Signature     `json:"signature"`
	PublicKey string                    `json:"publicKey"`
	MetaData  json.RawMessage           `json:"metaData"`
}

type Service struct {
	verifier *attestation.Verifier
	signer   *attestation.Signer
	matcher  Matcher
	audit    audit.Emitter
	logger   *slog.Logger
}

func New(verifier *attestation.Verifier, signer *attestation.Signer, matcher Matcher, emitter audit.Emitter, logger *slog.Logger) *Service {
	return &Service{
		verifier: verifier,
		signer:   signer,
		matcher:  matcher,
		audit:    emitter,
		logger:   logger,
	}
}

// Screen verifies the inbound attestation before reading any of its fields,
// then derives the case, searches and signs [isMatched, minScore, currentDate, isMockData].
func (s *Service) Screen(ctx context.Context, req ScreenRequest) (*ScreenResult, error) {
	if req.MinScore <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing minScore")
	}
	if err := s.verifier.VerifyIdentity(req.Data, req.Signature); err != nil {
		s.emit(ctx, audit.OutcomeFailure, string(dErrors.CodeVerificationFailed))
		return nil, err
	}

	sc, err := sanctions.CaseFromIdentity(req.Data)
	if err != nil {
		s.emit(ctx, audit.OutcomeFailure, string(dErrors.CodeOf(err)))
		return nil, err
	}
	match, err := s.matcher.Search(ctx, req.MinScore, sc)
	if err != nil {
		s.emit(ctx, audit.OutcomeFailure, string(platformprovider.GetCategory(err)))
		return nil, platformprovider.ToDomain(err, "search sanctions list")
	}

	att, err := attestation.Issue(s.signer, attestation.SanctionsData{
		IsMatched:   match.Matched,
		MinScore:    req.MinScore,
		CurrentDate: attestation.CurrentDate(requestcontext.Now(ctx)),
		IsMockData:  req.Data.IsMockData,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign sanctions result")
	}

	s.emit(ctx, audit.OutcomeSuccess, "")
	return &ScreenResult{
		Data:      att.Data,
		Signature: att.Signature,
		PublicKey: att.PublicKey,
		MetaData:  match.MetaData,
	}, nil
}

func (s *Service) emit(ctx context.Context, outcome audit.Outcome, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Type:      audit.EventSanctionsScreened,
		Outcome:   outcome,
		RequestID: requestcontext.RequestID(ctx),
		Reason:    reason,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}
