package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(cause, CodeUpstream, "provider failed"))

	assert.True(t, HasCode(err, CodeUpstream))
	assert.False(t, HasCode(err, CodeInternal))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeUpstream, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(cause))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:         http.StatusBadRequest,
		CodeValidation:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeUpstream:           http.StatusBadGateway,
		CodeVerificationFailed: http.StatusInternalServerError,
		CodeInternal:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, status, HTTPStatus(code))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "verify signature: invalid data", New(CodeVerificationFailed, "verify signature: invalid data").Error())
	assert.Equal(t, "store: down", Wrap(errors.New("down"), CodeInternal, "store").Error())
}
