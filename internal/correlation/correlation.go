// Package correlation implements the two-party handshake shared by the
// ownership proof and passkey assertion flows: one party creates a session,
// another fulfils it with a JSON value, and the first reads it back.
//
// Anyone who knows an id may fulfil or read its session, and an expired
// session reads the same as an unfulfilled one. Both are known gaps.
package correlation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"idmask/internal/audit"
	"idmask/internal/sessionstore"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/sentinel"
	"idmask/pkg/requestcontext"
)

// MaxValueBytes bounds a fulfilled value.
const MaxValueBytes = 16 << 10

const maxCreateAttempts = 5

// Empty is returned for unknown, expired and unfulfilled sessions.
var Empty = json.RawMessage(`{}`)

type Service struct {
	namespace sessionstore.Namespace
	store     sessionstore.Store[json.RawMessage]
	newID     IDGenerator
	audit     audit.Emitter
	logger    *slog.Logger
}

func NewService(namespace sessionstore.Namespace, store sessionstore.Store[json.RawMessage], newID IDGenerator, emitter audit.Emitter, logger *slog.Logger) *Service {
	return &Service{
		namespace: namespace,
		store:     store,
		newID:     newID,
		audit:     emitter,
		logger:    logger,
	}
}

// Create stores an unfulfilled session under a fresh id.
func (s *Service) Create(ctx context.Context) (string, error) {
	for range maxCreateAttempts {
		id, err := s.newID()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate session id")
		}
		_, err = s.store.Get(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "check session id")
		}
		if err := s.store.Put(ctx, id, nil); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "store session")
		}
		s.emit(ctx, audit.EventCorrelationCreated)
		return id, nil
	}
	return "", dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no free %s id after %d attempts", s.namespace, maxCreateAttempts))
}

// Fulfill sets the session value, overwriting any earlier one. A session that
// was never created or has been evicted is recreated.
func (s *Service) Fulfill(ctx context.Context, id string, value json.RawMessage) error {
	if id == "" {
		return dErrors.New(dErrors.CodeValidation, "session id is required")
	}
	if len(value) > MaxValueBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("value exceeds %d bytes", MaxValueBytes))
	}
	if isNull(value) {
		return dErrors.New(dErrors.CodeValidation, "value is required")
	}
	if !json.Valid(value) {
		return dErrors.New(dErrors.CodeBadRequest, "value is not valid JSON")
	}
	if err := s.store.Put(ctx, id, value); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store session value")
	}
	s.emit(ctx, audit.EventCorrelationFilled)
	return nil
}

// Retrieve returns the session value, or Empty when there is none.
func (s *Service) Retrieve(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return Empty, nil
	}
	value, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Empty, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	if isNull(value) {
		return Empty, nil
	}
	return value, nil
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func (s *Service) emit(ctx context.Context, t audit.EventType) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Type:      t,
		Outcome:   audit.OutcomeSuccess,
		Namespace: string(s.namespace),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "type", t, "error", err)
	}
}
