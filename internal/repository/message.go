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

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	var receiverID, groupID *string
	if m.ReceiverID != "" {
		receiverID = &m.ReceiverID
	}
	if m.GroupID != "" {
		groupID = &m.GroupID
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, message_type, sender_id, receiver_id, group_id, content, file_url, file_type, reply_to_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING seq`,
		m.ID, m.Type, m.SenderID, receiverID, groupID, m.Content, m.FileURL, m.FileType, m.ReplyToID, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

const messageColumns = `m.id, m.seq, m.message_type, m.sender_id,
	COALESCE(m.receiver_id::text, ''), COALESCE(m.group_id::text, ''),
	m.content, m.file_url, m.file_type, m.reply_to_id, m.deleted, m.created_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(&m.ID, &m.Seq, &m.Type, &m.SenderID, &m.ReceiverID, &m.GroupID,
		&m.Content, &m.FileURL, &m.FileType, &m.ReplyToID, &m.Deleted, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m, err := scanMessage(r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// GetPrivateHistory returns non-deleted private messages between two users in
// both directions, oldest first, with timestamp ties broken by insertion order.
func (r *MessageRepository) GetPrivateHistory(ctx context.Context, userA, userB string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetPrivateHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 WHERE m.message_type = 'private' AND m.deleted = false
		   AND ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		 ORDER BY m.created_at, m.seq
		 LIMIT $3 OFFSET $4`, userA, userB, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetPrivateHistory query: %w", err)
	}
	return collectMessages(rows, "msgRepo.GetPrivateHistory")
}

// GetGroupHistory returns non-deleted group messages, newest first.
func (r *MessageRepository) GetGroupHistory(ctx context.Context, groupID string, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.GetGroupHistory", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 WHERE m.message_type = 'group' AND m.group_id = $1 AND m.deleted = false
		 ORDER BY m.created_at DESC, m.seq DESC
		 LIMIT $2 OFFSET $3`, groupID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetGroupHistory query: %w", err)
	}
	return collectMessages(rows, "msgRepo.GetGroupHistory")
}

func collectMessages(rows pgx.Rows, op string) ([]model.Message, error) {
	defer rows.Close()
	messages := make([]model.Message, 0, 32)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return messages, nil
}

// SoftDelete marks the message deleted; the row stays in storage.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET deleted = true WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
