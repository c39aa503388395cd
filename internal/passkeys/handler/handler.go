package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idmask/internal/passkeys"
	dErrors "idmask/pkg/domain-errors"
	"idmask/pkg/platform/httputil"
	"idmask/pkg/requestcontext"
)

// Service defines the passkey document operations.
type Service interface {
	Insert(ctx context.Context, entry passkeys.Entry) error
	Fetch(ctx context.Context, key string) (*passkeys.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/passkeys/insert", h.HandleInsert)
	r.Get("/passkeys/fetch/{key}", h.HandleFetch)
}

// InsertRequest is a single {key: value} pair.
type InsertRequest map[string]json.RawMessage

func (r *InsertRequest) Validate() error {
	if len(*r) != 1 {
		return dErrors.New(dErrors.CodeValidation, "body must contain exactly one key/value pair")
	}
	for _, raw := range *r {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return dErrors.New(dErrors.CodeValidation, "value must be a non-empty string")
		}
	}
	return r.Entry().Validate()
}

// Entry returns the pair. Call it only after Validate succeeds.
func (r InsertRequest) Entry() passkeys.Entry {
	for key, raw := range r {
		var value string
		_ = json.Unmarshal(raw, &value)
		return passkeys.Entry{Key: key, Value: value}
	}
	return passkeys.Entry{}
}

type InsertResponse struct {
	Message string `json:"message"`
}

// HandleInsert handles POST /passkeys/insert.
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InsertRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.Insert(ctx, req.Entry()); err != nil {
		h.logger.WarnContext(ctx, "passkey insert failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, InsertResponse{Message: "Inserted successfully"})
}

// HandleFetch handles GET /passkeys/fetch/{key}.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entry, err := h.service.Fetch(ctx, chi.URLParam(r, "key"))
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.WarnContext(ctx, "passkey fetch failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}
