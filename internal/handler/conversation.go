package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/service"
)

type ConversationHandler struct {
	convos *service.ConversationService
}

func NewConversationHandler(convos *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convos: convos}
}

// Get returns the caller's contact index; a user with no exchanges gets an
// empty record.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.convos.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HasContact reports whether the named user is in the caller's contact set.
func (h *ConversationHandler) HasContact(w http.ResponseWriter, r *http.Request) {
	ok, err := h.convos.HasContact(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"contact": ok})
}

// RemoveContact drops a participant from the caller's record only.
func (h *ConversationHandler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	err := h.convos.RemoveContact(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
