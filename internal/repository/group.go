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

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// Create inserts the group and its initial member rows in one transaction.
func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("groupRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO groups (id, name, description, picture_url, created_by,
		                     is_private, allow_member_invite, admin_only_messages,
		                     deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $9)`,
		g.ID, g.Name, g.Description, g.PictureURL, g.CreatedBy,
		g.Settings.IsPrivate, g.Settings.AllowMemberInvite, g.Settings.AdminOnlyMessages,
		g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Create group: %w", err)
	}
	for _, m := range g.Members {
		_, err = tx.Exec(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			g.ID, m.UserID, m.Role, m.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("groupRepo.Create member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("groupRepo.Create commit: %w", err)
	}
	return nil
}

// GetByID returns the group with its member list, including soft-deleted
// groups; callers decide whether deleted rows are visible.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, picture_url, created_by,
		        is_private, allow_member_invite, admin_only_messages,
		        deleted, created_at, updated_at
		 FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.PictureURL, &g.CreatedBy,
		&g.Settings.IsPrivate, &g.Settings.AllowMemberInvite, &g.Settings.AdminOnlyMessages,
		&g.Deleted, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}

	members, err := r.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return g, nil
}

func (r *GroupRepository) Members(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	defer logger.DeferLogDuration("group.Members", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT gm.user_id, gm.role, gm.joined_at, u.id, u.name, u.email
		 FROM group_members gm
		 JOIN users u ON u.id = gm.user_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.joined_at`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.Members query: %w", err)
	}
	defer rows.Close()

	members := make([]model.GroupMember, 0, 8)
	for rows.Next() {
		var m model.GroupMember
		user := &model.UserPublic{}
		if err := rows.Scan(&m.UserID, &m.Role, &m.JoinedAt, &user.ID, &user.Name, &user.Email); err != nil {
			return nil, fmt.Errorf("groupRepo.Members scan: %w", err)
		}
		m.User = user
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.Members rows: %w", err)
	}
	return members, nil
}

func (r *GroupRepository) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.MemberIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.MemberIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("groupRepo.MemberIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.MemberIDs rows: %w", err)
	}
	return ids, nil
}

// ListByUser returns the non-deleted groups the user belongs to, most recently
// updated first.
func (r *GroupRepository) ListByUser(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListByUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, g.description, g.picture_url, g.created_by,
		        g.is_private, g.allow_member_invite, g.admin_only_messages,
		        g.deleted, g.created_at, g.updated_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1 AND g.deleted = false
		 ORDER BY g.updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListByUser query: %w", err)
	}
	defer rows.Close()

	groups := make([]model.Group, 0, 16)
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.PictureURL, &g.CreatedBy,
			&g.Settings.IsPrivate, &g.Settings.AllowMemberInvite, &g.Settings.AdminOnlyMessages,
			&g.Deleted, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("groupRepo.ListByUser scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListByUser rows: %w", err)
	}
	return groups, nil
}

// IsMember is false for soft-deleted groups regardless of stored member rows.
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.IsMember", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM group_members gm
		     JOIN groups g ON g.id = gm.group_id AND g.deleted = false
		     WHERE gm.group_id = $1 AND gm.user_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("groupRepo.IsMember: %w", err)
	}
	return exists, nil
}

// IsAdmin is false for soft-deleted groups regardless of stored member rows.
func (r *GroupRepository) IsAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	defer logger.DeferLogDuration("group.IsAdmin", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM group_members gm
		     JOIN groups g ON g.id = gm.group_id AND g.deleted = false
		     WHERE gm.group_id = $1 AND gm.user_id = $2 AND gm.role = 'admin')`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("groupRepo.IsAdmin: %w", err)
	}
	return exists, nil
}

// AddMember inserts a member row; returns false when the user was already a
// member (conflict no-op keeps the insert race-safe).
func (r *GroupRepository) AddMember(ctx context.Context, groupID string, m model.GroupMember) (bool, error) {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		groupID, m.UserID, m.Role, m.JoinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("groupRepo.AddMember: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.RemoveMember: %w", err)
	}
	return nil
}

func (r *GroupRepository) UpdateRole(ctx context.Context, groupID, userID string, role model.Role) error {
	defer logger.DeferLogDuration("group.UpdateRole", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE group_members SET role = $1 WHERE group_id = $2 AND user_id = $3`,
		role, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.UpdateRole: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Update applies a partial profile/settings patch.
func (r *GroupRepository) Update(ctx context.Context, groupID string, patch model.GroupPatch) error {
	defer logger.DeferLogDuration("group.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups SET
		     name = COALESCE($1, name),
		     description = COALESCE($2, description),
		     picture_url = COALESCE($3, picture_url),
		     is_private = COALESCE($4, is_private),
		     allow_member_invite = COALESCE($5, allow_member_invite),
		     admin_only_messages = COALESCE($6, admin_only_messages),
		     updated_at = $7
		 WHERE id = $8`,
		patch.Name, patch.Description, patch.PictureURL,
		settingsField(patch.Settings, func(s *model.GroupSettings) bool { return s.IsPrivate }),
		settingsField(patch.Settings, func(s *model.GroupSettings) bool { return s.AllowMemberInvite }),
		settingsField(patch.Settings, func(s *model.GroupSettings) bool { return s.AdminOnlyMessages }),
		time.Now().UTC(), groupID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func settingsField(s *model.GroupSettings, get func(*model.GroupSettings) bool) *bool {
	if s == nil {
		return nil
	}
	v := get(s)
	return &v
}

func (r *GroupRepository) SoftDelete(ctx context.Context, groupID string) error {
	defer logger.DeferLogDuration("group.SoftDelete", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE groups SET deleted = true, updated_at = $1 WHERE id = $2 AND deleted = false`,
		time.Now().UTC(), groupID,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
