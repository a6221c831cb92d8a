package handler

import (
	"net/http"

	"github.com/chatline/internal/config"
	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/repository"
)

type PushHandler struct {
	subs *repository.PushSubscriptionRepository
	cfg  *config.PushConfig
}

func NewPushHandler(subs *repository.PushSubscriptionRepository, cfg *config.PushConfig) *PushHandler {
	return &PushHandler{subs: subs, cfg: cfg}
}

// VAPIDPublic exposes the public key the browser needs to subscribe.
func (h *PushHandler) VAPIDPublic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.cfg.VAPIDPublicKey})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeBody(r, &req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	sub := repository.PushSubscription{
		UserID:   middleware.GetUserID(r.Context()),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.subs.Save(r.Context(), sub); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeBody(r, &req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.subs.Delete(r.Context(), middleware.GetUserID(r.Context()), req.Endpoint); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
