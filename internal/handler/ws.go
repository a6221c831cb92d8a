package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/service"
	"github.com/chatline/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins string
}

// NewWSHandler creates the WebSocket upgrade handler. allowedOrigins matches
// the CORS setting (comma-separated, or "*").
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}

// Gateway dispatches inbound live events to the services. The acting user is
// always the one bound to the connection; sender fields in the payload are
// never trusted.
type Gateway struct {
	hub       *ws.Hub
	messages  *service.MessageService
	reactions *service.ReactionService
	groups    *service.GroupService
}

func NewGateway(hub *ws.Hub, messages *service.MessageService, reactions *service.ReactionService, groups *service.GroupService) *Gateway {
	return &Gateway{hub: hub, messages: messages, reactions: reactions, groups: groups}
}

func (g *Gateway) HandleEvent(ctx context.Context, c *ws.Client, ev ws.InboundEvent) {
	var err error
	switch ev.Type {
	case ws.EventJoinRoom:
		err = g.joinRoom(c, ev)
	case ws.EventJoinGroup:
		err = g.joinGroup(ctx, c, ev)
	case ws.EventLeaveGroup:
		g.hub.LeaveGroup(c, ev.GroupID)
	case ws.EventSendMessage:
		_, err = g.messages.SendPrivate(ctx, service.SendMessageRequest{
			SenderID:   c.UserID(),
			ReceiverID: ev.ReceiverID,
			Content:    ev.Content,
			FileURL:    ev.FileURL,
			FileType:   ev.FileType,
			ReplyToID:  ev.ReplyTo,
		})
	case ws.EventSendGroupMessage:
		_, err = g.messages.SendGroup(ctx, service.SendMessageRequest{
			SenderID:  c.UserID(),
			GroupID:   ev.GroupID,
			Content:   ev.Content,
			FileURL:   ev.FileURL,
			FileType:  ev.FileType,
			ReplyToID: ev.ReplyTo,
		})
	case ws.EventAddReaction:
		_, _, err = g.reactions.Add(ctx, c.UserID(), ev.MessageID, ev.Emoji)
	case ws.EventRemoveReaction:
		if ev.ReactionID != "" {
			err = g.reactions.Remove(ctx, c.UserID(), ev.MessageID, ev.ReactionID)
		} else {
			err = g.reactions.RemoveByUser(ctx, c.UserID(), ev.MessageID)
		}
	case ws.EventGroupMemberAdded:
		_, err = g.groups.AddMember(ctx, c.UserID(), ev.GroupID, ev.NewMemberID)
	case ws.EventGroupMemberRemoved:
		err = g.groups.RemoveMember(ctx, c.UserID(), ev.GroupID, ev.RemovedMemberID)
	default:
		g.hub.SendError(c, "unknown event type")
		return
	}

	if err != nil {
		// The failure goes to the originating connection only; the room
		// never sees a partial operation.
		if apperr.KindOf(err) == apperr.KindInfrastructure {
			logger.Errorf("ws event %s user=%s: %v", ev.Type, c.UserID(), err)
		}
		g.hub.SendError(c, apperr.Message(err))
	}
}

// joinRoom subscribes the connection to the canonical private room with the
// named peer. The connection's own user is always one side of the pair.
func (g *Gateway) joinRoom(c *ws.Client, ev ws.InboundEvent) error {
	other := ev.ReceiverID
	if other == c.UserID() {
		other = ev.SenderID
	}
	if other == "" {
		return apperr.Validation("peer user is required")
	}
	g.hub.JoinPrivate(c, c.UserID(), other)
	return nil
}

func (g *Gateway) joinGroup(ctx context.Context, c *ws.Client, ev ws.InboundEvent) error {
	if ev.GroupID == "" {
		return apperr.Validation("group_id is required")
	}
	if err := g.groups.AuthorizeJoin(ctx, c.UserID(), ev.GroupID); err != nil {
		return err
	}
	g.hub.JoinGroup(c, ev.GroupID)
	return nil
}
