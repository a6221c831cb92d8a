package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/service"
)

type GroupHandler struct {
	groups *service.GroupService
}

func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := h.groups.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Get(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.groups.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch model.GroupPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := h.groups.Update(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"), patch)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.groups.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.groups.MembersOf(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	err := h.groups.Leave(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.groups.AddMember(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "groupId"), req.UserID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.groups.RemoveMember(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "groupId"),
		chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *GroupHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role model.Role `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.groups.UpdateRole(r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "groupId"),
		chi.URLParam(r, "userId"),
		req.Role)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
