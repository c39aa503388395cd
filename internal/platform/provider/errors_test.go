package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	dErrors "idmask/pkg/domain-errors"
)

func TestFromStatus(t *testing.T) {
	cases := map[int]ErrorCategory{
		http.StatusUnauthorized:        ErrorAuthentication,
		http.StatusForbidden:           ErrorAuthentication,
		http.StatusNotFound:            ErrorNotFound,
		http.StatusTooManyRequests:     ErrorRateLimited,
		http.StatusBadRequest:          ErrorBadData,
		471:                            ErrorContractMismatch,
		580:                            ErrorContractMismatch,
		http.StatusServiceUnavailable:  ErrorProviderOutage,
		http.StatusInternalServerError: ErrorProviderOutage,
		http.StatusTeapot:              ErrorInternal,
	}
	for status, category := range cases {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			err := FromStatus("smartid", status, "")
			assert.Equal(t, category, err.Category)
			assert.Equal(t, status, err.StatusCode)
		})
	}
}

func TestFromTransport(t *testing.T) {
	assert.Equal(t, ErrorTimeout, FromTransport("ofac", context.DeadlineExceeded).Category)
	assert.Equal(t, ErrorProviderOutage, FromTransport("ofac", errors.New("connection refused")).Category)
}

func TestToDomain(t *testing.T) {
	err := ToDomain(FromStatus("ofac", http.StatusBadGateway, "down"), "sanctions lookup")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	assert.Equal(t, ErrorProviderOutage, GetCategory(err))

	err = ToDomain(FromTransport("smartid", context.DeadlineExceeded), "poll session")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
	assert.Equal(t, ErrorTimeout, GetCategory(err))

	plain := errors.New("plain")
	assert.Same(t, plain, ToDomain(plain, "x"))
}

func TestToDomainForInput(t *testing.T) {
	cases := []struct {
		status int
		code   dErrors.Code
	}{
		{http.StatusBadRequest, dErrors.CodeBadRequest},
		{http.StatusUnprocessableEntity, dErrors.CodeBadRequest},
		{http.StatusNotFound, dErrors.CodeNotFound},
		{http.StatusServiceUnavailable, dErrors.CodeUpstream},
		{471, dErrors.CodeUpstream},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			err := ToDomainForInput(FromStatus("smartid", tc.status, "reply"), "initiate")
			assert.True(t, dErrors.HasCode(err, tc.code))
			assert.ErrorContains(t, err, "reply")
		})
	}

	decode := NewError(ErrorBadData, "smartid", "decode response", errors.New("eof"))
	assert.True(t, dErrors.HasCode(ToDomainForInput(decode, "initiate"), dErrors.CodeUpstream))
}

func TestFromStatusKeepsBody(t *testing.T) {
	err := FromStatus("smartid", http.StatusBadRequest, Snippet([]byte("  {\"title\":\"Bad Request\"}\n")))
	assert.Equal(t, `unexpected status 400: {"title":"Bad Request"}`, err.Message)

	long := Snippet([]byte(strings.Repeat("ä", MaxErrorBody)))
	assert.LessOrEqual(t, len(long), MaxErrorBody)
	assert.True(t, utf8.ValidString(long))
}
