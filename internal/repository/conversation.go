package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func (r *ConversationRepository) FindByOwner(ctx context.Context, ownerID string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.FindByOwner", time.Now())()
	c := &model.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT owner_id, last_message_id, created_at, updated_at
		 FROM conversations WHERE owner_id = $1`, ownerID,
	).Scan(&c.OwnerID, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convRepo.FindByOwner: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT cp.participant_id, u.id, u.name, u.email
		 FROM conversation_participants cp
		 JOIN users u ON u.id = cp.participant_id
		 WHERE cp.owner_id = $1
		 ORDER BY cp.added_at`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.FindByOwner participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var u model.UserPublic
		if err := rows.Scan(&id, &u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("convRepo.FindByOwner scan: %w", err)
		}
		c.Participants = append(c.Participants, id)
		c.Users = append(c.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.FindByOwner rows: %w", err)
	}
	return c, nil
}

// FindByOwnerAndParticipant reports whether participantID is in the owner's
// contact set.
func (r *ConversationRepository) FindByOwnerAndParticipant(ctx context.Context, ownerID, participantID string) (bool, error) {
	defer logger.DeferLogDuration("conv.FindByOwnerAndParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE owner_id = $1 AND participant_id = $2)`,
		ownerID, participantID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("convRepo.FindByOwnerAndParticipant: %w", err)
	}
	return exists, nil
}

// UpsertParticipant adds participantID to the owner's set, creating the owner
// record if absent. Both statements are ON CONFLICT no-ops, so concurrent
// contact changes by the same owner cannot lose updates.
func (r *ConversationRepository) UpsertParticipant(ctx context.Context, ownerID, participantID string) error {
	defer logger.DeferLogDuration("conv.UpsertParticipant", time.Now())()
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (owner_id, created_at, updated_at)
		 VALUES ($1, $2, $2) ON CONFLICT (owner_id) DO UPDATE SET updated_at = $2`,
		ownerID, now,
	)
	if err != nil {
		return fmt.Errorf("convRepo.UpsertParticipant owner: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO conversation_participants (owner_id, participant_id, added_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		ownerID, participantID, now,
	)
	if err != nil {
		return fmt.Errorf("convRepo.UpsertParticipant member: %w", err)
	}
	return nil
}

func (r *ConversationRepository) RemoveParticipant(ctx context.Context, ownerID, participantID string) error {
	defer logger.DeferLogDuration("conv.RemoveParticipant", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM conversation_participants WHERE owner_id = $1 AND participant_id = $2`,
		ownerID, participantID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.RemoveParticipant: %w", err)
	}
	return nil
}

// SetLastMessage records the owner's most recent message pointer.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, ownerID, messageID string) error {
	defer logger.DeferLogDuration("conv.SetLastMessage", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET last_message_id = $1, updated_at = $2 WHERE owner_id = $3`,
		messageID, time.Now().UTC(), ownerID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.SetLastMessage: %w", err)
	}
	return nil
}
