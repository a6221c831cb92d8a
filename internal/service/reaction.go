package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
	"github.com/chatline/internal/ws"
)

// ReactionStore is the slice of the reaction repository the ledger needs.
type ReactionStore interface {
	Add(ctx context.Context, messageID string, rc model.Reaction) (bool, error)
	Remove(ctx context.Context, messageID, reactionID string) error
	RemoveByUser(ctx context.Context, messageID, userID string) error
	ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
}

// MessageGetter resolves the message a reaction targets.
type MessageGetter interface {
	GetByID(ctx context.Context, id string) (*model.Message, error)
}

// ReactionService is the ledger of per-message reactions. A reaction's
// identity is its ID; the (user, emoji) pair is unique per message, so a
// repeated add is absorbed without a second broadcast.
type ReactionService struct {
	reactions   ReactionStore
	messages    MessageGetter
	users       UserStore
	groups      GroupAccess
	broadcaster Broadcaster
}

func NewReactionService(reactions ReactionStore, messages MessageGetter, users UserStore, groups GroupAccess, broadcaster Broadcaster) *ReactionService {
	return &ReactionService{
		reactions: reactions, messages: messages, users: users, groups: groups, broadcaster: broadcaster,
	}
}

// Add records a reaction and announces it to the message's room. Returns the
// stored reaction and whether it was newly added; a duplicate (same user,
// same emoji) returns added=false and broadcasts nothing.
func (s *ReactionService) Add(ctx context.Context, actorID, messageID, emoji string) (*model.Reaction, bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, false, apperr.Validation("emoji is required")
	}
	m, err := s.requireMessage(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if err := s.authorize(ctx, actorID, m); err != nil {
		return nil, false, err
	}

	rc := model.Reaction{
		ID:        uuid.New().String(),
		UserID:    actorID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	added, err := s.reactions.Add(ctx, messageID, rc)
	if err != nil {
		return nil, false, fmt.Errorf("add reaction to %s: %w", messageID, err)
	}
	if !added {
		return nil, false, nil
	}

	if u, err := s.users.GetByID(ctx, actorID); err == nil {
		pub := u.ToPublic()
		rc.User = &pub
	}
	s.broadcaster.Broadcast(roomFor(m), ws.Event{
		Type:    ws.EventMessageReactionAdded,
		Payload: ws.ReactionAddedPayload{MessageID: messageID, Reaction: rc},
	})
	return &rc, true, nil
}

// Remove deletes a reaction by its ID. Only the reaction's owner may remove
// it; an ID that matches nothing is a no-op.
func (s *ReactionService) Remove(ctx context.Context, actorID, messageID, reactionID string) error {
	if reactionID == "" {
		return apperr.Validation("reaction_id is required")
	}
	m, err := s.requireMessage(ctx, messageID)
	if err != nil {
		return err
	}

	existing, err := s.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("remove reaction %s: %w", reactionID, err)
	}
	var target *model.Reaction
	for i := range existing {
		if existing[i].ID == reactionID {
			target = &existing[i]
			break
		}
	}
	if target == nil {
		// Removing an identity that is already gone leaves the message as it
		// is. No error, no broadcast.
		return nil
	}
	if target.UserID != actorID {
		return apperr.Authorization("only the reaction's owner can remove it")
	}

	if err := s.reactions.Remove(ctx, messageID, reactionID); err != nil {
		return fmt.Errorf("remove reaction %s: %w", reactionID, err)
	}
	s.broadcaster.Broadcast(roomFor(m), ws.Event{
		Type: ws.EventMessageReactionRemoved,
		Payload: ws.ReactionRemovedPayload{
			MessageID:  messageID,
			ReactionID: reactionID,
			UserID:     target.UserID,
			Emoji:      target.Emoji,
		},
	})
	return nil
}

// RemoveByUser is the legacy removal path: it clears all of the acting
// user's reactions on the message. Kept for clients that predate reaction
// IDs.
func (s *ReactionService) RemoveByUser(ctx context.Context, actorID, messageID string) error {
	m, err := s.requireMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.reactions.RemoveByUser(ctx, messageID, actorID); err != nil {
		return fmt.Errorf("remove reactions of %s on %s: %w", actorID, messageID, err)
	}
	s.broadcaster.Broadcast(roomFor(m), ws.Event{
		Type:    ws.EventMessageReactionRemoved,
		Payload: ws.ReactionRemovedPayload{MessageID: messageID, UserID: actorID},
	})
	return nil
}

// List returns the message's reactions in insertion order.
func (s *ReactionService) List(ctx context.Context, messageID string) ([]model.Reaction, error) {
	if _, err := s.requireMessage(ctx, messageID); err != nil {
		return nil, err
	}
	return s.reactions.ListByMessage(ctx, messageID)
}

func (s *ReactionService) requireMessage(ctx context.Context, id string) (*model.Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, err
	}
	if m.Deleted {
		return nil, apperr.NotFound("message not found")
	}
	return m, nil
}

// authorize allows reacting only to participants of the message's room.
func (s *ReactionService) authorize(ctx context.Context, actorID string, m *model.Message) error {
	switch t := m.Target().(type) {
	case model.PrivateTarget:
		if actorID != t.SenderID && actorID != t.ReceiverID {
			return apperr.Authorization("not a participant of this conversation")
		}
		return nil
	case model.GroupTarget:
		member, err := s.groups.IsMember(ctx, t.GroupID, actorID)
		if err != nil {
			return err
		}
		if !member {
			return apperr.Authorization("not a member of this group")
		}
		return nil
	}
	return apperr.Validation("unknown message target")
}
