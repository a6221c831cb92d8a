package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
	"github.com/chatline/internal/ws"
)

// MessageStore is the slice of the message repository the pipeline needs.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetPrivateHistory(ctx context.Context, userA, userB string, limit, offset int) ([]model.Message, error)
	GetGroupHistory(ctx context.Context, groupID string, limit, offset int) ([]model.Message, error)
	SoftDelete(ctx context.Context, id string) error
}

// GroupAccess is the read-only membership view the pipeline consults.
type GroupAccess interface {
	GetByID(ctx context.Context, id string) (*model.Group, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
}

// ReactionLister provides stored reactions for history enrichment.
type ReactionLister interface {
	ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
}

// MessageService runs the delivery pipeline. Every message, live or REST,
// goes through the same fixed sequence: validate, persist, enrich, index,
// route. Routing never happens for a message that failed to persist.
type MessageService struct {
	messages    MessageStore
	users       UserStore
	groups      GroupAccess
	reactions   ReactionLister
	convos      *ConversationService
	broadcaster Broadcaster
	presence    Presence
	notifier    PushNotifier
}

func NewMessageService(
	messages MessageStore,
	users UserStore,
	groups GroupAccess,
	reactions ReactionLister,
	convos *ConversationService,
	broadcaster Broadcaster,
	presence Presence,
	notifier PushNotifier,
) *MessageService {
	return &MessageService{
		messages: messages, users: users, groups: groups, reactions: reactions,
		convos: convos, broadcaster: broadcaster, presence: presence, notifier: notifier,
	}
}

type SendMessageRequest struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	Content    string `json:"content"`
	FileURL    string `json:"file_url,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	ReplyToID  string `json:"reply_to,omitempty"`
}

// SendPrivate delivers a direct message. The receiver must exist; a message
// with neither content nor attachment is rejected.
func (s *MessageService) SendPrivate(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	defer logger.DeferLogDuration("pipeline: send private", time.Now())()

	if req.SenderID == "" || req.ReceiverID == "" {
		return nil, apperr.Validation("sender and receiver are required")
	}
	if strings.TrimSpace(req.Content) == "" && req.FileURL == "" {
		return nil, apperr.Validation("message must have content or an attachment")
	}
	sender, err := s.requireUser(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.requireUser(ctx, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	m := s.newMessage(req, model.MessageTypePrivate)
	replyTo, err := s.resolveReplyTo(ctx, m.ReplyToID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("persist private message: %w", err)
	}

	senderPub, receiverPub := sender.ToPublic(), receiver.ToPublic()
	m.Sender, m.Receiver, m.ReplyTo = &senderPub, &receiverPub, replyTo

	if err := s.convos.RecordExchange(ctx, req.SenderID, req.ReceiverID, m.ID); err != nil {
		return nil, err
	}

	s.broadcaster.Broadcast(roomFor(m), ws.Event{Type: ws.EventReceiveMessage, Payload: m})
	s.notifyOffline(req.ReceiverID, sender.Name, previewOf(m))
	return m, nil
}

// SendGroup delivers a message to a group room. The sender must be a member;
// when the group restricts posting to admins, the sender must be one.
func (s *MessageService) SendGroup(ctx context.Context, req SendMessageRequest) (*model.Message, error) {
	defer logger.DeferLogDuration("pipeline: send group", time.Now())()

	if req.SenderID == "" || req.GroupID == "" {
		return nil, apperr.Validation("sender and group are required")
	}
	if strings.TrimSpace(req.Content) == "" && req.FileURL == "" {
		return nil, apperr.Validation("message must have content or an attachment")
	}
	sender, err := s.requireUser(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	g, err := s.requireGroup(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	member, err := s.groups.IsMember(ctx, req.GroupID, req.SenderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Authorization("not a member of this group")
	}
	if g.Settings.AdminOnlyMessages {
		admin, err := s.groups.IsAdmin(ctx, req.GroupID, req.SenderID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, apperr.Authorization("only admins can post in this group")
		}
	}

	m := s.newMessage(req, model.MessageTypeGroup)
	replyTo, err := s.resolveReplyTo(ctx, m.ReplyToID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("persist group message: %w", err)
	}

	senderPub := sender.ToPublic()
	m.Sender, m.GroupName, m.ReplyTo = &senderPub, g.Name, replyTo

	s.broadcaster.Broadcast(roomFor(m), ws.Event{Type: ws.EventReceiveGroupMessage, Payload: m})
	s.notifyGroupOffline(ctx, g, req.SenderID, sender.Name, previewOf(m))
	return m, nil
}

// PrivateHistory returns the two-party exchange oldest-first, enriched with
// sender details and reactions. Only a participant of the pair may read it.
func (s *MessageService) PrivateHistory(ctx context.Context, actorID, otherID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("pipeline: private history", time.Now())()

	if actorID == "" || otherID == "" {
		return nil, apperr.Validation("both participants are required")
	}
	msgs, err := s.messages.GetPrivateHistory(ctx, actorID, otherID, normLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("private history %s/%s: %w", actorID, otherID, err)
	}
	if err := s.enrich(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GroupHistory returns the group's latest messages, newest-first. Members
// only.
func (s *MessageService) GroupHistory(ctx context.Context, actorID, groupID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("pipeline: group history", time.Now())()

	if _, err := s.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}
	member, err := s.groups.IsMember(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Authorization("not a member of this group")
	}
	msgs, err := s.messages.GetGroupHistory(ctx, groupID, normLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("group history %s: %w", groupID, err)
	}
	if err := s.enrich(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Delete soft-deletes a message. The sender may always delete their own
// message, and group admins may delete any message in their group. The row
// stays for reply references.
func (s *MessageService) Delete(ctx context.Context, actorID, messageID string) error {
	m, err := s.requireMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != actorID {
		// Group admins may moderate messages in their group; everywhere else
		// only the sender can delete.
		t, ok := m.Target().(model.GroupTarget)
		if !ok {
			return apperr.Authorization("only the sender can delete a message")
		}
		admin, err := s.groups.IsAdmin(ctx, t.GroupID, actorID)
		if err != nil {
			return err
		}
		if !admin {
			return apperr.Authorization("only the sender or a group admin can delete a message")
		}
	}
	if err := s.messages.SoftDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func (s *MessageService) newMessage(req SendMessageRequest, typ model.MessageType) *model.Message {
	m := &model.Message{
		ID:        uuid.New().String(),
		Type:      typ,
		SenderID:  req.SenderID,
		Content:   strings.TrimSpace(req.Content),
		FileURL:   req.FileURL,
		FileType:  req.FileType,
		CreatedAt: time.Now().UTC(),
	}
	if typ == model.MessageTypeGroup {
		m.GroupID = req.GroupID
	} else {
		m.ReceiverID = req.ReceiverID
	}
	if req.ReplyToID != "" {
		m.ReplyToID = &req.ReplyToID
	}
	return m
}

func (s *MessageService) requireUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user " + id + " not found")
		}
		return nil, err
	}
	return u, nil
}

func (s *MessageService) requireGroup(ctx context.Context, id string) (*model.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, err
	}
	if g.Deleted {
		return nil, apperr.NotFound("group not found")
	}
	return g, nil
}

func (s *MessageService) requireMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, err
	}
	return m, nil
}

// resolveReplyTo loads the quoted message one level deep. A dangling
// reference is a validation error, not a silent drop.
func (s *MessageService) resolveReplyTo(ctx context.Context, id *string) (*model.Message, error) {
	if id == nil {
		return nil, nil
	}
	parent, err := s.messages.GetByID(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Validation("replied-to message not found")
		}
		return nil, err
	}
	// One level only: do not chase the parent's own reply_to.
	parent.ReplyTo = nil
	return parent, nil
}

// enrich fills sender/receiver details, quoted messages, and reactions on a
// history page.
func (s *MessageService) enrich(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	idSet := make(map[string]struct{})
	for i := range msgs {
		idSet[msgs[i].SenderID] = struct{}{}
		if msgs[i].ReceiverID != "" {
			idSet[msgs[i].ReceiverID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	known, err := s.users.GetPublicByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("enrich messages: resolve users: %w", err)
	}

	for i := range msgs {
		m := &msgs[i]
		if u, ok := known[m.SenderID]; ok {
			m.Sender = &u
		}
		if u, ok := known[m.ReceiverID]; ok {
			m.Receiver = &u
		}
		if m.ReplyToID != nil {
			parent, err := s.resolveReplyTo(ctx, m.ReplyToID)
			if err != nil {
				// The quoted message may have been hard-removed; deliver
				// the page without the quote rather than failing it.
				if apperr.KindOf(err) != apperr.KindValidation {
					return err
				}
			}
			m.ReplyTo = parent
		}
		reactions, err := s.reactions.ListByMessage(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("enrich messages: reactions for %s: %w", m.ID, err)
		}
		m.Reactions = reactions
	}
	return nil
}

// notifyOffline pushes a notification when the recipient has no live
// connection. Best effort, off the request path.
func (s *MessageService) notifyOffline(userID, title, body string) {
	if s.notifier == nil || s.presence == nil || s.presence.UserOnline(userID) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, userID, title, body); err != nil {
			logger.Errorf("push notify user=%s: %v", userID, err)
		}
	}()
}

func (s *MessageService) notifyGroupOffline(ctx context.Context, g *model.Group, senderID, senderName, body string) {
	if s.notifier == nil || s.presence == nil {
		return
	}
	ids, err := s.groups.MemberIDs(ctx, g.ID)
	if err != nil {
		logger.Errorf("push notify group=%s: member list: %v", g.ID, err)
		return
	}
	title := senderName + " in " + g.Name
	for _, id := range ids {
		if id == senderID {
			continue
		}
		s.notifyOffline(id, title, body)
	}
}

func previewOf(m *model.Message) string {
	if m.Content != "" {
		const max = 120
		if utf8.RuneCountInString(m.Content) > max {
			runes := []rune(m.Content)
			return string(runes[:max]) + "…"
		}
		return m.Content
	}
	return "Sent an attachment"
}

func normLimit(limit int) int {
	const (
		defaultLimit = 50
		maxLimit     = 200
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
