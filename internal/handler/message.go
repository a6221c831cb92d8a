package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/objectstore"
	"github.com/chatline/internal/service"
)

type MessageHandler struct {
	messages  *service.MessageService
	reactions *service.ReactionService
	files     *objectstore.Store
	maxUpload int64
}

func NewMessageHandler(messages *service.MessageService, reactions *service.ReactionService, files *objectstore.Store, maxUpload int64) *MessageHandler {
	return &MessageHandler{messages: messages, reactions: reactions, files: files, maxUpload: maxUpload}
}

// SendPrivate is the REST twin of the send_message live event. The message
// still reaches subscribed connections through the hub.
func (h *MessageHandler) SendPrivate(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SenderID = middleware.GetUserID(r.Context())
	m, err := h.messages.SendPrivate(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MessageHandler) SendGroup(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SenderID = middleware.GetUserID(r.Context())
	req.GroupID = chi.URLParam(r, "groupId")
	m, err := h.messages.SendGroup(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// PrivateHistory returns the exchange with the named peer oldest-first.
func (h *MessageHandler) PrivateHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	otherID := chi.URLParam(r, "userId")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	msgs, err := h.messages.PrivateHistory(r.Context(), userID, otherID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "groupId")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	msgs, err := h.messages.GroupHistory(r.Context(), userID, groupID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")
	if err := h.messages.Delete(r.Context(), userID, messageID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Upload receives a multipart attachment and stores it. When the form also
// names a receiver or group, the attachment is sent as a file message through
// the regular pipeline and the created message is returned; otherwise only
// the URL comes back, for clients that attach it to a later send.
func (h *MessageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "file uploads are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or malformed form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	url, err := h.files.Upload(r.Context(), header.Filename, contentType, data)
	if err != nil {
		writeAppError(w, err)
		return
	}

	receiverID := r.FormValue("receiver_id")
	groupID := r.FormValue("group_id")
	if receiverID == "" && groupID == "" {
		writeJSON(w, http.StatusCreated, map[string]string{
			"url":       url,
			"file_name": header.Filename,
		})
		return
	}

	req := service.SendMessageRequest{
		SenderID:   middleware.GetUserID(r.Context()),
		ReceiverID: receiverID,
		GroupID:    groupID,
		Content:    r.FormValue("content"),
		FileURL:    url,
		FileType:   contentType,
	}
	var m *model.Message
	if groupID != "" {
		m, err = h.messages.SendGroup(r.Context(), req)
	} else {
		m, err = h.messages.SendPrivate(r.Context(), req)
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// AddReaction is the REST twin of the add_reaction live event.
func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")

	rc, added, err := h.reactions.Add(r.Context(), userID, messageID, req.Emoji)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !added {
		writeJSON(w, http.StatusOK, map[string]string{"status": "unchanged"})
		return
	}
	writeJSON(w, http.StatusCreated, rc)
}

func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")
	reactionID := chi.URLParam(r, "reactionId")

	if err := h.reactions.Remove(r.Context(), userID, messageID, reactionID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// RemoveOwnReactions is the legacy removal route without a reaction ID.
func (h *MessageHandler) RemoveOwnReactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")

	if err := h.reactions.RemoveByUser(r.Context(), userID, messageID); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *MessageHandler) ListReactions(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	list, err := h.reactions.List(r.Context(), messageID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
