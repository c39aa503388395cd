// Package provider normalizes failures of outbound identity and sanctions
// providers into one taxonomy and maps them onto domain errors.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	dErrors "idmask/pkg/domain-errors"
)

// ErrorCategory defines the normalized failure taxonomy.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorInternal         ErrorCategory = "internal"
)

// Error wraps a provider failure with its normalized category.
type Error struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	StatusCode int
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized provider error.
func NewError(category ErrorCategory, providerID, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
	}
}

// MaxErrorBody bounds how much of an error reply is kept for diagnosis.
const MaxErrorBody = 256

// Snippet trims an upstream reply body to at most MaxErrorBody bytes without
// splitting a UTF-8 sequence.
func Snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= MaxErrorBody {
		return s
	}
	s = s[:MaxErrorBody]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// FromStatus classifies a non-2xx HTTP reply.
func FromStatus(providerID string, status int, body string) *Error {
	var category ErrorCategory
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = ErrorAuthentication
	case status == http.StatusNotFound:
		category = ErrorNotFound
	case status == http.StatusTooManyRequests:
		category = ErrorRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		category = ErrorBadData
	case status == 471 || status == 472 || status == 480 || status == 580:
		// Smart-ID specific: certificate level, app/version or maintenance issues.
		category = ErrorContractMismatch
	case status >= 500:
		category = ErrorProviderOutage
	default:
		category = ErrorInternal
	}
	e := NewError(category, providerID, fmt.Sprintf("unexpected status %d", status), nil)
	e.StatusCode = status
	if body != "" {
		e.Message = fmt.Sprintf("unexpected status %d: %s", status, body)
	}
	return e
}

// FromTransport classifies a failed round trip.
func FromTransport(providerID string, err error) *Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorTimeout, providerID, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(ErrorTimeout, providerID, "request timed out", err)
	default:
		return NewError(ErrorProviderOutage, providerID, "request failed", err)
	}
}

// GetCategory extracts the category of err, or ErrorInternal.
func GetCategory(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// ToDomain maps a provider failure onto the upstream domain error surfaced to
// clients. Non-provider errors pass through unchanged.
func ToDomain(err error, msg string) error {
	var pe *Error
	if !errors.As(err, &pe) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUpstream, msg+": "+pe.Message)
}

// ToDomainForInput is ToDomain for calls carrying caller-supplied input. A
// provider rejecting that input (400, 422) becomes a bad request and an
// unknown subject (404) becomes not found; everything else stays upstream.
func ToDomainForInput(err error, msg string) error {
	var pe *Error
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return dErrors.Wrap(err, dErrors.CodeBadRequest, msg+": "+pe.Message)
	case http.StatusNotFound:
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg+": "+pe.Message)
	}
	return ToDomain(err, msg)
}
