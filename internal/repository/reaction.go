package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/model"
)

type ReactionRepository struct {
	pool *pgxpool.Pool
}

func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Add inserts a reaction; the (message, user, emoji) unique constraint makes
// re-adding the identical pair a no-op. Returns false when nothing was added.
func (r *ReactionRepository) Add(ctx context.Context, messageID string, rc model.Reaction) (bool, error) {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		rc.ID, messageID, rc.UserID, rc.Emoji, rc.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Add: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes the reaction with the given identity. Removing an absent
// identity is a silent no-op.
func (r *ReactionRepository) Remove(ctx context.Context, messageID, reactionID string) error {
	defer logger.DeferLogDuration("reaction.Remove", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND id = $2`,
		messageID, reactionID,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	return nil
}

// RemoveByUser deletes all of a user's reactions on a message. Legacy adapter
// for callers that identify reactions by acting user rather than identity.
func (r *ReactionRepository) RemoveByUser(ctx context.Context, messageID, userID string) error {
	defer logger.DeferLogDuration("reaction.RemoveByUser", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2`,
		messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.RemoveByUser: %w", err)
	}
	return nil
}

func (r *ReactionRepository) ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error) {
	defer logger.DeferLogDuration("reaction.ListByMessage", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT mr.id, mr.user_id, mr.emoji, mr.created_at, u.id, u.name, u.email
		 FROM message_reactions mr
		 JOIN users u ON u.id = mr.user_id
		 WHERE mr.message_id = $1
		 ORDER BY mr.created_at, mr.id`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage query: %w", err)
	}
	defer rows.Close()

	reactions := make([]model.Reaction, 0, 8)
	for rows.Next() {
		var rc model.Reaction
		user := &model.UserPublic{}
		if err := rows.Scan(&rc.ID, &rc.UserID, &rc.Emoji, &rc.CreatedAt, &user.ID, &user.Name, &user.Email); err != nil {
			return nil, fmt.Errorf("reactionRepo.ListByMessage scan: %w", err)
		}
		rc.User = user
		reactions = append(reactions, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.ListByMessage rows: %w", err)
	}
	return reactions, nil
}
