package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idmask/internal/attestation"
	"idmask/internal/sanctions/service"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/httputil"
	"idmask/pkg/requestcontext"
)

// Service defines the sanctions screening operation.
type Service interface {
	Screen(ctx context.Context, req service.ScreenRequest) (*service.ScreenResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/sanctions/getOFACmatches", h.HandleGetOFACMatches)
}

// ScreenRequest is the body of POST /sanctions/getOFACmatches. PublicKey is
// accepted for compatibility and ignored: only the oracle's own key is trusted.
type ScreenRequest struct {
	Data      attestation.IdentityData `json:"data"`
	Signature attestation.Signature    `json:"signature"`
	PublicKey string                   `json:"publicKey"`
	MinScore  int                      `json:"minScore"`
}

func (r *ScreenRequest) Validate() error {
	if r.MinScore == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "missing minScore")
	}
	if r.MinScore < 1 || r.MinScore > 100 {
		return dErrors.New(dErrors.CodeValidation, "minScore must be between 1 and 100")
	}
	return nil
}

// HandleGetOFACMatches handles POST /sanctions/getOFACmatches.
func (h *Handler) HandleGetOFACMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ScreenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Screen(ctx, service.ScreenRequest{
		Data:      req.Data,
		Signature: req.Signature,
		MinScore:  req.MinScore,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "sanctions screening failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "sanctions screening signed",
		"request_id", requestID,
		"min_score", req.MinScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}
