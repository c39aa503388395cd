package handler

import (
	"strings"

	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/httputil"
	"idmask/pkg/platform/validation"
)

// InitiateSessionRequest is the body of POST /smartId/initiateSession.
type InitiateSessionRequest struct {
	PNO         httputil.FlexString `json:"pno" validate:"required,max=32"`
	Country     string              `json:"country" validate:"required,oneof=EE LV LT"`
	DisplayText string              `json:"displayText" validate:"max=60"`
}

// Validate implements httputil.Validatable.
func (r *InitiateSessionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.PNO = httputil.FlexString(strings.TrimSpace(r.PNO.String()))
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.DisplayText = strings.TrimSpace(r.DisplayText)
	return validation.Struct(r)
}

// GetDataRequest is the body of POST /smartId/getData.
type GetDataRequest struct {
	SessionID string `json:"sessionID" validate:"required,max=128"`
}

// Validate implements httputil.Validatable.
func (r *GetDataRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SessionID = strings.TrimSpace(r.SessionID)
	return validation.Struct(r)
}

// RunningResponse tells the caller to poll again.
type RunningResponse struct {
	State string `json:"state"`
}
