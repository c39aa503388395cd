package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idmask/internal/attestation"
	"idmask/internal/uniqueness"
	"idmask/pkg/platform/httputil"
	"idmask/pkg/requestcontext"
)

// Service defines the uniqueness secret operation.
type Service interface {
	Issue(ctx context.Context, req uniqueness.Request) (*uniqueness.SecretAttestation, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/uniqueHuman/getSecretValue", h.HandleGetSecretValue)
}

// SecretValueRequest is the body of POST /uniqueHuman/getSecretValue.
type SecretValueRequest struct {
	Data      attestation.IdentityData `json:"data"`
	Signature attestation.Signature    `json:"signature"`
	PublicKey string                   `json:"publicKey"`
}

// HandleGetSecretValue handles POST /uniqueHuman/getSecretValue.
func (h *Handler) HandleGetSecretValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SecretValueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	att, err := h.service.Issue(ctx, uniqueness.Request{Data: req.Data, Signature: req.Signature})
	if err != nil {
		h.logger.WarnContext(ctx, "uniqueness secret refused",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, att)
}
