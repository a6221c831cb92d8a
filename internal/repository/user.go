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

var ErrNotFound = errors.New("not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, mobile, password_hash, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.Mobile, u.PasswordHash, u.Verified, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, mobile, password_hash, verified, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, mobile, password_hash, verified, created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// GetByEmailOrMobile finds a user by either identifier; used for registration
// conflict checks and member invites.
func (r *UserRepository) GetByEmailOrMobile(ctx context.Context, email, mobile string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmailOrMobile", time.Now())()
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, mobile, password_hash, verified, created_at
		 FROM users WHERE email = $1 OR (mobile <> '' AND mobile = $2)
		 LIMIT 1`, email, mobile,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByEmailOrMobile: %w", err)
	}
	return u, nil
}

func (r *UserRepository) SetVerified(ctx context.Context, email string, verified bool) error {
	defer logger.DeferLogDuration("user.SetVerified", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET verified = $1 WHERE email = $2`, verified, email,
	)
	if err != nil {
		return fmt.Errorf("userRepo.SetVerified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPublicByIDs returns public identities keyed by user id, for enrichment.
func (r *UserRepository) GetPublicByIDs(ctx context.Context, ids []string) (map[string]model.UserPublic, error) {
	defer logger.DeferLogDuration("user.GetPublicByIDs", time.Now())()
	if len(ids) == 0 {
		return map[string]model.UserPublic{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email FROM users WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetPublicByIDs query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.UserPublic, len(ids))
	for rows.Next() {
		var u model.UserPublic
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("userRepo.GetPublicByIDs scan: %w", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.GetPublicByIDs rows: %w", err)
	}
	return out, nil
}
