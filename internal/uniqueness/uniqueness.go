// Package uniqueness derives a salted per-person secret from an attested
// identity and signs it. Country is left out of the hash so the same person is
// recognised across re-registration in another country. Rotating the salt
// invalidates every secret issued before.
package uniqueness

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/requestcontext"
)

// ErrInvalidUTF8 is returned when an identity field is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("identity field is not valid UTF-8")

// Secret is hex(sha256(json([name, surname, pno, salt]))). The JSON is the
// minimal form other implementations produce: HTML characters and the line
// and paragraph separators U+2028/U+2029 are written unescaped.
func Secret(name, surname, pno, salt string) (string, error) {
	fields := []string{name, surname, pno, salt}
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return "", ErrInvalidUTF8
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	canonical := unescapeSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// unescapeSeparators rewrites the \u2028 and \u2029 escapes encoding/json
// always emits back into the raw characters. An escaped backslash is copied
// as a pair so a literal "\\u2028" in the input is left alone.
func unescapeSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if b[i+1] == 'u' && i+6 <= len(b) {
			switch string(b[i+2 : i+6]) {
			case "2028":
				out = utf8.AppendRune(out, '\u2028')
				i += 5
				continue
			case "2029":
				out = utf8.AppendRune(out, '\u2029')
				i += 5
				continue
			}
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

// Request carries an identity attestation issued by this oracle.
type Request struct {
	Data      attestation.IdentityData
	Signature attestation.Signature
}

// SecretAttestation is the signed uniqueness secret.
type SecretAttestation = attestation.Attestation[attestation.SecretData]

type Service struct {
	verifier *attestation.Verifier
	signer   *attestation.Signer
	salt     string
	audit    audit.Emitter
	logger   *slog.Logger
}

func NewService(verifier *attestation.Verifier, signer *attestation.Signer, salt string, emitter audit.Emitter, logger *slog.Logger) (*Service, error) {
	if salt == "" {
		return nil, errors.New("uniqueness salt is required")
	}
	return &Service{verifier: verifier, signer: signer, salt: salt, audit: emitter, logger: logger}, nil
}

// Issue verifies the inbound attestation and signs the secret derived from it.
func (s *Service) Issue(ctx context.Context, req Request) (*SecretAttestation, error) {
	if err := s.verifier.VerifyIdentity(req.Data, req.Signature); err != nil {
		s.emit(ctx, audit.OutcomeFailure, string(dErrors.CodeVerificationFailed))
		return nil, err
	}
	secret, err := Secret(req.Data.Name, req.Data.Surname, req.Data.PNO, s.salt)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "derive secret")
	}
	att, err := attestation.Issue(s.signer, attestation.SecretData{Secret: secret})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "sign secret")
	}
	s.emit(ctx, audit.OutcomeSuccess, "")
	return att, nil
}

func (s *Service) emit(ctx context.Context, outcome audit.Outcome, reason string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Emit(ctx, audit.Event{
		Type:      audit.EventUniquenessIssued,
		Outcome:   outcome,
		RequestID: requestcontext.RequestID(ctx),
		Reason:    reason,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "error", err)
	}
}
