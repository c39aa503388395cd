// Package handler exposes the correlation flows over HTTP: ownership proofs
// under /ownership and passkey assertion handoff under /passkeys.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"idmask/pkg/platform/httputil"
	"idmask/pkg/requestcontext"
)

// Service is one correlation namespace.
type Service interface {
	Create(ctx context.Context) (string, error)
	Fulfill(ctx context.Context, id string, value json.RawMessage) error
	Retrieve(ctx context.Context, id string) (json.RawMessage, error)
}

type Handler struct {
	ownership  Service
	challenges Service
	logger     *slog.Logger
}

func New(ownership, challenges Service, logger *slog.Logger) *Handler {
	return &Handler{ownership: ownership, challenges: challenges, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/ownership/createSession", h.HandleCreateOwnership)
	r.Post("/ownership/verify", h.HandleVerifyOwnership)
	r.Post("/ownership/getSignature", h.HandleGetSignature)

	r.Post("/passkeys/createChallangeSession", h.HandleCreateChallenge)
	r.Post("/passkeys/postAssertion", h.HandlePostAssertion)
	r.Get("/passkeys/getAssertion", h.HandleGetAssertion)
}

// HandleCreateOwnership handles POST /ownership/createSession.
func (h *Handler) HandleCreateOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := h.ownership.Create(ctx)
	if err != nil {
		h.fail(ctx, w, "create ownership session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnershipSessionResponse{SessionID: sessionIDValue(id)})
}

// HandleVerifyOwnership handles POST /ownership/verify.
func (h *Handler) HandleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VerifyOwnershipRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	id := req.SessionID.String()
	if err := h.ownership.Fulfill(ctx, id, req.Signature); err != nil {
		h.fail(ctx, w, "store ownership signature", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OwnershipSessionResponse{SessionID: sessionIDValue(id)})
}

// HandleGetSignature handles POST /ownership/getSignature.
func (h *Handler) HandleGetSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[GetSignatureRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.writeValue(w, r, h.ownership, req.SessionID.String())
}

// HandleCreateChallenge handles POST /passkeys/createChallangeSession.
func (h *Handler) HandleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := h.challenges.Create(ctx)
	if err != nil {
		h.fail(ctx, w, "create challenge session", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ChallengeResponse{Challenge: id})
}

// HandlePostAssertion handles POST /passkeys/postAssertion.
func (h *Handler) HandlePostAssertion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[PostAssertionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.challenges.Fulfill(ctx, req.Challenge, req.Assertion); err != nil {
		h.fail(ctx, w, "store assertion", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ChallengeResponse{Challenge: req.Challenge})
}

// HandleGetAssertion handles GET /passkeys/getAssertion?challenge=.
func (h *Handler) HandleGetAssertion(w http.ResponseWriter, r *http.Request) {
	h.writeValue(w, r, h.challenges, strings.TrimSpace(r.URL.Query().Get("challenge")))
}

func (h *Handler) writeValue(w http.ResponseWriter, r *http.Request, svc Service, id string) {
	ctx := r.Context()
	value, err := svc.Retrieve(ctx, id)
	if err != nil {
		h.fail(ctx, w, "retrieve session value", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
