// Package passkeys stores passkey public-key documents as plain key/value
// pairs. Entries are write-once.
package passkeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"idmask/internal/audit"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/sentinel"
	"idmask/pkg/requestcontext"
)

const (
	MaxKeyLength   = 256
	MaxValueLength = 132
)

// Entry is one stored document.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Validate checks the length limits. Lengths count characters, not bytes.
func (e Entry) Validate() error {
	switch {
	case e.Key == "":
		return dErrors.New(dErrors.CodeValidation, "key must be a non-empty string")
	case e.Value == "":
		return dErrors.New(dErrors.CodeValidation, "value must be a non-empty string")
	case utf8.RuneCountInString(e.Key) > MaxKeyLength:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("key must be at most %d characters", MaxKeyLength))
	case utf8.RuneCountInString(e.Value) > MaxValueLength:
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("value must be at most %d characters", MaxValueLength))
	}
	return nil
}

// Store persists entries. Insert returns sentinel.ErrConflict for an existing
// key and Get returns sentinel.ErrNotFound for a missing one.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	Get(ctx context.Context, key string) (Entry, error)
}

type Service struct {
	store  Store
	audit  audit.Emitter
	logger *slog.Logger
}

func NewService(store Store, emitter audit.Emitter, logger *slog.Logger) *Service {
	return &Service{store: store, audit: emitter, logger: logger}
}

func (s *Service) Insert(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "key already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert passkey")
	}
	if s.audit != nil {
		if err := s.audit.Emit(ctx, audit.Event{
			Type:      audit.EventPasskeyInserted,
			Outcome:   audit.OutcomeSuccess,
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "type", audit.EventPasskeyInserted, "error", err)
		}
	}
	return nil
}

func (s *Service) Fetch(ctx context.Context, key string) (*Entry, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "Not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch passkey")
	}
	return &entry, nil
}
