package handler

import (
	"encoding/json"
	"strings"

	"idmask/pkg/platform/httputil"
	"idmask/pkg/platform/validation"
)

// VerifyOwnershipRequest carries the holder's signature for a session.
// SessionID may arrive as a JSON number or string.
type VerifyOwnershipRequest struct {
	SessionID httputil.FlexString `json:"sessionId" validate:"required,max=64"`
	Signature json.RawMessage     `json:"signature"`
}

func (r *VerifyOwnershipRequest) Validate() error {
	r.SessionID = httputil.FlexString(strings.TrimSpace(string(r.SessionID)))
	return validation.Struct(r)
}

type GetSignatureRequest struct {
	SessionID httputil.FlexString `json:"sessionId"`
}

func (r *GetSignatureRequest) Validate() error {
	r.SessionID = httputil.FlexString(strings.TrimSpace(string(r.SessionID)))
	return nil
}

type PostAssertionRequest struct {
	Challenge string          `json:"challange" validate:"required,max=64"`
	Assertion json.RawMessage `json:"assertion"`
}

func (r *PostAssertionRequest) Validate() error {
	r.Challenge = strings.TrimSpace(r.Challenge)
	return validation.Struct(r)
}

// OwnershipSessionResponse echoes the session id, as a JSON number when it is
// numeric.
type OwnershipSessionResponse struct {
	SessionID any `json:"sessionId"`
}

// ChallengeResponse keeps the historical "challange" spelling of the wire field.
type ChallengeResponse struct {
	Challenge string `json:"challange"`
}

func sessionIDValue(id string) any {
	if id == "" || len(id) > 15 {
		return id
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return id
		}
	}
	if id[0] == '0' && len(id) > 1 {
		return id
	}
	return json.Number(id)
}
