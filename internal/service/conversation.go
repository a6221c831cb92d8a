package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/repository"
)

// ConversationStore is the slice of the conversation repository the service
// needs.
type ConversationStore interface {
	FindByOwner(ctx context.Context, ownerID string) (*model.Conversation, error)
	FindByOwnerAndParticipant(ctx context.Context, ownerID, participantID string) (bool, error)
	UpsertParticipant(ctx context.Context, ownerID, participantID string) error
	RemoveParticipant(ctx context.Context, ownerID, participantID string) error
	SetLastMessage(ctx context.Context, ownerID, messageID string) error
}

// ConversationService maintains the per-user contact index. Records are
// asymmetric: sending a first message creates one record per side, and each
// side removes contacts independently.
type ConversationService struct {
	convos ConversationStore
	users  UserStore
}

func NewConversationService(convos ConversationStore, users UserStore) *ConversationService {
	return &ConversationService{convos: convos, users: users}
}

// Get returns the owner's conversation record. A user who has never
// exchanged a message gets an empty record, not an error.
func (s *ConversationService) Get(ctx context.Context, ownerID string) (*model.Conversation, error) {
	c, err := s.convos.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			now := time.Now().UTC()
			return &model.Conversation{OwnerID: ownerID, Participants: []string{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		return nil, fmt.Errorf("get conversation for %s: %w", ownerID, err)
	}
	return c, nil
}

// HasContact reports whether participantID is in the owner's contact set.
// Asymmetric, like the records themselves.
func (s *ConversationService) HasContact(ctx context.Context, ownerID, participantID string) (bool, error) {
	ok, err := s.convos.FindByOwnerAndParticipant(ctx, ownerID, participantID)
	if err != nil {
		return false, fmt.Errorf("check contact %s of %s: %w", participantID, ownerID, err)
	}
	return ok, nil
}

// RecordExchange registers a private exchange in both directions and stamps
// the latest message on both records. Repeating an existing pair is a no-op
// for the participant sets.
func (s *ConversationService) RecordExchange(ctx context.Context, senderID, receiverID, messageID string) error {
	if err := s.convos.UpsertParticipant(ctx, senderID, receiverID); err != nil {
		return fmt.Errorf("record exchange %s->%s: %w", senderID, receiverID, err)
	}
	if err := s.convos.UpsertParticipant(ctx, receiverID, senderID); err != nil {
		return fmt.Errorf("record exchange %s->%s: %w", receiverID, senderID, err)
	}
	if messageID == "" {
		return nil
	}
	if err := s.convos.SetLastMessage(ctx, senderID, messageID); err != nil {
		return fmt.Errorf("set last message for %s: %w", senderID, err)
	}
	if err := s.convos.SetLastMessage(ctx, receiverID, messageID); err != nil {
		return fmt.Errorf("set last message for %s: %w", receiverID, err)
	}
	return nil
}

// RemoveContact drops a participant from the owner's record only. The other
// side keeps its record; message history is untouched.
func (s *ConversationService) RemoveContact(ctx context.Context, ownerID, participantID string) error {
	if err := s.convos.RemoveParticipant(ctx, ownerID, participantID); err != nil {
		return fmt.Errorf("remove contact %s from %s: %w", participantID, ownerID, err)
	}
	return nil
}
