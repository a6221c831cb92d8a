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

// GroupStore is the slice of the group repository the service needs.
type GroupStore interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	Members(ctx context.Context, groupID string) ([]model.GroupMember, error)
	ListByUser(ctx context.Context, userID string) ([]model.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	IsAdmin(ctx context.Context, groupID, userID string) (bool, error)
	AddMember(ctx context.Context, groupID string, m model.GroupMember) (bool, error)
	RemoveMember(ctx context.Context, groupID, userID string) error
	UpdateRole(ctx context.Context, groupID, userID string, role model.Role) error
	Update(ctx context.Context, groupID string, patch model.GroupPatch) error
	SoftDelete(ctx context.Context, groupID string) error
}

// GroupService is the single authority over group membership. Every
// membership mutation passes through here; the hub and the message pipeline
// only read membership via this service.
type GroupService struct {
	groups      GroupStore
	users       UserStore
	broadcaster Broadcaster
}

func NewGroupService(groups GroupStore, users UserStore, broadcaster Broadcaster) *GroupService {
	return &GroupService{groups: groups, users: users, broadcaster: broadcaster}
}

type CreateGroupRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	PictureURL  string              `json:"picture_url"`
	Settings    model.GroupSettings `json:"settings"`
	MemberIDs   []string            `json:"member_ids"`
}

// Create makes a new group with the creator as its first admin. Additional
// member IDs join with the participant role; unknown IDs fail the request.
func (s *GroupService) Create(ctx context.Context, creatorID string, req CreateGroupRequest) (*model.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}
	if creatorID == "" {
		return nil, apperr.Validation("creator is required")
	}

	now := time.Now().UTC()
	g := &model.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		PictureURL:  strings.TrimSpace(req.PictureURL),
		CreatedBy:   creatorID,
		Settings:    req.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	g.Members = append(g.Members, model.GroupMember{UserID: creatorID, Role: model.RoleAdmin, JoinedAt: now})
	seen := map[string]struct{}{creatorID: {}}
	for _, id := range req.MemberIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Members = append(g.Members, model.GroupMember{UserID: id, Role: model.RoleParticipant, JoinedAt: now})
	}

	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	known, err := s.users.GetPublicByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("create group: resolve members: %w", err)
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, apperr.NotFound("user " + id + " not found")
		}
	}

	if err := s.groups.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	for i := range g.Members {
		u := known[g.Members[i].UserID]
		g.Members[i].User = &u
	}
	return g, nil
}

// Get returns the group with its member list. Private groups are visible to
// members only; deleted groups are not found for everyone.
func (s *GroupService) Get(ctx context.Context, actorID, groupID string) (*model.Group, error) {
	g, err := s.fetchLive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.Settings.IsPrivate {
		member, err := s.groups.IsMember(ctx, groupID, actorID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, apperr.Authorization("not a member of this group")
		}
	}
	if err := s.attachMemberUsers(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]model.Group, error) {
	return s.groups.ListByUser(ctx, userID)
}

// Update applies a partial update. Admin only.
func (s *GroupService) Update(ctx context.Context, actorID, groupID string, patch model.GroupPatch) (*model.Group, error) {
	if _, err := s.fetchLive(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperr.Validation("group name cannot be empty")
	}
	if err := s.groups.Update(ctx, groupID, patch); err != nil {
		return nil, fmt.Errorf("update group %s: %w", groupID, err)
	}
	return s.Get(ctx, actorID, groupID)
}

// Delete soft-deletes the group. Only the creator may delete; the record
// stays in storage but disappears from listings and membership checks.
func (s *GroupService) Delete(ctx context.Context, actorID, groupID string) error {
	g, err := s.fetchLive(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatedBy != actorID {
		return apperr.Authorization("only the group creator can delete the group")
	}
	if err := s.groups.SoftDelete(ctx, groupID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("group not found")
		}
		return fmt.Errorf("delete group %s: %w", groupID, err)
	}
	return nil
}

// AddMember adds a user to the group. Allowed for admins, and for ordinary
// members when the group setting permits member invites. Adding an existing
// member is a conflict.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, userID string) (*model.GroupMember, error) {
	g, err := s.fetchLive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.canInvite(ctx, g, actorID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Authorization("not allowed to add members to this group")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}

	m := model.GroupMember{UserID: userID, Role: model.RoleParticipant, JoinedAt: time.Now().UTC()}
	added, err := s.groups.AddMember(ctx, groupID, m)
	if err != nil {
		return nil, fmt.Errorf("add member to group %s: %w", groupID, err)
	}
	if !added {
		return nil, apperr.Conflict("user is already a member")
	}
	pub := u.ToPublic()
	m.User = &pub

	s.broadcaster.Broadcast(ws.GroupRoom(groupID), ws.Event{
		Type:    ws.EventMemberAdded,
		Payload: ws.MemberPayload{GroupID: groupID, UserID: userID},
	})
	return &m, nil
}

// RemoveMember removes a user from the group. Admin only; removing yourself
// is rejected so a group can never silently lose its last admin.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, userID string) error {
	if _, err := s.fetchLive(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if actorID == userID {
		return apperr.Validation("cannot remove yourself from the group")
	}
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.NotFound("user is not a member")
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("remove member from group %s: %w", groupID, err)
	}

	s.broadcaster.Broadcast(ws.GroupRoom(groupID), ws.Event{
		Type:    ws.EventMemberRemoved,
		Payload: ws.MemberPayload{GroupID: groupID, UserID: userID},
	})
	return nil
}

// Leave removes the caller from the group. A current member may always
// leave, regardless of role; this is the only self-removal path.
func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	if _, err := s.fetchLive(ctx, groupID); err != nil {
		return err
	}
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.NotFound("user is not a member")
	}
	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("leave group %s: %w", groupID, err)
	}

	s.broadcaster.Broadcast(ws.GroupRoom(groupID), ws.Event{
		Type:    ws.EventMemberRemoved,
		Payload: ws.MemberPayload{GroupID: groupID, UserID: userID},
	})
	return nil
}

// MembersOf lists the group's members. Members only.
func (s *GroupService) MembersOf(ctx context.Context, actorID, groupID string) ([]model.GroupMember, error) {
	g, err := s.fetchLive(ctx, groupID)
	if err != nil {
		return nil, err
	}
	member, err := s.groups.IsMember(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Authorization("not a member of this group")
	}
	if err := s.attachMemberUsers(ctx, g); err != nil {
		return nil, err
	}
	return g.Members, nil
}

// UpdateRole changes a member's role. Admin only.
func (s *GroupService) UpdateRole(ctx context.Context, actorID, groupID, userID string, role model.Role) error {
	if !model.ValidRole(role) {
		return apperr.Validation("invalid role " + string(role))
	}
	if _, err := s.fetchLive(ctx, groupID); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.groups.UpdateRole(ctx, groupID, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user is not a member")
		}
		return fmt.Errorf("update role in group %s: %w", groupID, err)
	}
	return nil
}

// AuthorizeJoin gates live subscription to a group room: only current
// members may join. Subscription itself carries no membership side effect.
func (s *GroupService) AuthorizeJoin(ctx context.Context, userID, groupID string) error {
	member, err := s.groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.Authorization("not a member of this group")
	}
	return nil
}

func (s *GroupService) fetchLive(ctx context.Context, groupID string) (*model.Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
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

func (s *GroupService) requireAdmin(ctx context.Context, groupID, userID string) error {
	admin, err := s.groups.IsAdmin(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !admin {
		return apperr.Authorization("admin role required")
	}
	return nil
}

func (s *GroupService) canInvite(ctx context.Context, g *model.Group, actorID string) (bool, error) {
	admin, err := s.groups.IsAdmin(ctx, g.ID, actorID)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	if !g.Settings.AllowMemberInvite {
		return false, nil
	}
	return s.groups.IsMember(ctx, g.ID, actorID)
}

func (s *GroupService) attachMemberUsers(ctx context.Context, g *model.Group) error {
	if len(g.Members) == 0 {
		members, err := s.groups.Members(ctx, g.ID)
		if err != nil {
			return err
		}
		g.Members = members
	}
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m.User == nil {
			ids = append(ids, m.UserID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	known, err := s.users.GetPublicByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range g.Members {
		if g.Members[i].User == nil {
			if u, ok := known[g.Members[i].UserID]; ok {
				g.Members[i].User = &u
			}
		}
	}
	return nil
}
