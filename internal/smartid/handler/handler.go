package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idmask/internal/smartid"
	"idmask/internal/smartid/provider"
	"idmask/internal/smartid/service"
	"idmask/pkg/platform/httputil"
	"idmask/pkg/requestcontext"
)

// Service defines the Smart-ID operations exposed over HTTP.
type Service interface {
	Initiate(ctx context.Context, req service.InitiateRequest) (*service.InitiateResult, error)
	GetData(ctx context.Context, sessionID string) (*service.IdentityAttestation, error)
	MockAttestation(ctx context.Context) (*service.IdentityAttestation, error)
}

// Handler serves the /smartId endpoints.
type Handler struct {
	service    Service
	logger     *slog.Logger
	initiateMW []func(http.Handler) http.Handler
}

// New creates a Smart-ID handler. initiateMW wraps only the initiation route,
// which is the one that costs a provider session.
func New(service Service, logger *slog.Logger, initiateMW ...func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, initiateMW: initiateMW}
}

// Register mounts the Smart-ID routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/smartId/getMockData", h.HandleGetMockData)
	r.With(h.initiateMW...).Post("/smartId/initiateSession", h.HandleInitiateSession)
	r.Post("/smartId/getData", h.HandleGetData)
}

// HandleGetMockData handles GET /smartId/getMockData.
func (h *Handler) HandleGetMockData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	att, err := h.service.MockAttestation(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "mock attestation failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, att)
}

// HandleInitiateSession handles POST /smartId/initiateSession.
func (h *Handler) HandleInitiateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[InitiateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Initiate(ctx, service.InitiateRequest{
		Country:     req.Country,
		PNO:         req.PNO.String(),
		DisplayText: req.DisplayText,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "smart-id initiation failed",
			"request_id", requestID,
			"country", req.Country,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "smart-id session started",
		"request_id", requestID,
		"session_id", res.SessionID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleGetData handles POST /smartId/getData.
func (h *Handler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[GetDataRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	att, err := h.service.GetData(ctx, req.SessionID)
	if errors.Is(err, smartid.ErrSessionRunning) {
		httputil.WriteJSON(w, http.StatusAccepted, RunningResponse{State: provider.SessionStateRunning})
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "smart-id completion failed",
			"request_id", requestID,
			"session_id", req.SessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "smart-id attestation issued",
		"request_id", requestID,
		"session_id", req.SessionID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, att)
}
