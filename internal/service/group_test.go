package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/ws"
)

func newGroupAuthority(t *testing.T) (*GroupService, *fakeGroups, *recorder) {
	t.Helper()
	users := newFakeUsers(
		&model.User{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		&model.User{ID: "bob", Name: "Bob", Email: "bob@example.com"},
		&model.User{ID: "carol", Name: "Carol", Email: "carol@example.com"},
	)
	groups := newFakeGroups()
	rec := &recorder{}
	return NewGroupService(groups, users, rec), groups, rec
}

func TestCreateGroupCreatorIsAdmin(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)

	g, err := svc.Create(context.Background(), "alice", CreateGroupRequest{
		Name:      "Team",
		MemberIDs: []string{"bob", "bob", "alice"},
	})
	req.NoError(err)
	req.Equal("alice", g.CreatedBy)
	// Duplicates collapse; the creator appears once, as admin.
	req.Len(g.Members, 2)

	admin, err := groups.IsAdmin(context.Background(), g.ID, "alice")
	req.NoError(err)
	req.True(admin)
	admin, err = groups.IsAdmin(context.Background(), g.ID, "bob")
	req.NoError(err)
	req.False(admin)
}

func TestCreateGroupValidation(t *testing.T) {
	req := require.New(t)
	svc, _, _ := newGroupAuthority(t)

	_, err := svc.Create(context.Background(), "alice", CreateGroupRequest{Name: "  "})
	req.Error(err)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Create(context.Background(), "alice", CreateGroupRequest{
		Name: "Team", MemberIDs: []string{"ghost"},
	})
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func TestAddMemberAuthorization(t *testing.T) {
	req := require.New(t)
	svc, groups, rec := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	// A plain member cannot invite while member invites are off.
	_, err := svc.AddMember(ctx, "bob", "g1", "carol")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	// The admin can.
	m, err := svc.AddMember(ctx, "alice", "g1", "carol")
	req.NoError(err)
	req.Equal(model.RoleParticipant, m.Role)

	events := rec.byType(ws.EventMemberAdded)
	req.Len(events, 1)
	req.Equal(ws.GroupRoom("g1"), events[0].Room)
	req.Equal(ws.MemberPayload{GroupID: "g1", UserID: "carol"}, events[0].Event.Payload)

	// Adding again is a conflict, not a silent success.
	_, err = svc.AddMember(ctx, "alice", "g1", "carol")
	req.Error(err)
	req.Equal(apperr.KindConflict, apperr.KindOf(err))
}

func TestAddMemberWithMemberInviteSetting(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{AllowMemberInvite: true})

	_, err := svc.AddMember(context.Background(), "bob", "g1", "carol")
	req.NoError(err)

	// Non-members still cannot invite anyone.
	_, err = svc.AddMember(context.Background(), "carol", "g1", "carol")
	req.Error(err)
}

func TestRemoveMemberRules(t *testing.T) {
	req := require.New(t)
	svc, groups, rec := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob", "carol"}, model.GroupSettings{})
	ctx := context.Background()

	// Admin only.
	err := svc.RemoveMember(ctx, "bob", "g1", "carol")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	// Removing yourself is rejected.
	err = svc.RemoveMember(ctx, "alice", "g1", "alice")
	req.Error(err)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))

	// Removing a non-member is not found.
	err = svc.RemoveMember(ctx, "alice", "g1", "dave")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))

	req.NoError(svc.RemoveMember(ctx, "alice", "g1", "bob"))
	member, err := groups.IsMember(ctx, "g1", "bob")
	req.NoError(err)
	req.False(member)

	events := rec.byType(ws.EventMemberRemoved)
	req.Len(events, 1)
	req.Equal(ws.MemberPayload{GroupID: "g1", UserID: "bob"}, events[0].Event.Payload)
}

func TestLeaveGroup(t *testing.T) {
	req := require.New(t)
	svc, groups, rec := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	// Any current member may leave, no admin involved.
	req.NoError(svc.Leave(ctx, "bob", "g1"))
	member, err := groups.IsMember(ctx, "g1", "bob")
	req.NoError(err)
	req.False(member)

	events := rec.byType(ws.EventMemberRemoved)
	req.Len(events, 1)
	req.Equal(ws.MemberPayload{GroupID: "g1", UserID: "bob"}, events[0].Event.Payload)

	// Leaving twice, or leaving a group you were never in, is not found.
	err = svc.Leave(ctx, "bob", "g1")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func TestMembersListIsMemberOnly(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	_, err := svc.MembersOf(ctx, "carol", "g1")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	members, err := svc.MembersOf(ctx, "bob", "g1")
	req.NoError(err)
	req.Len(members, 2)
	for _, m := range members {
		req.NotNil(m.User)
	}
}

func TestDeleteGroupCreatorOnly(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	err := svc.Delete(ctx, "bob", "g1")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	req.NoError(svc.Delete(ctx, "alice", "g1"))

	// A deleted group is gone for everyone, including membership checks.
	_, err = svc.Get(ctx, "alice", "g1")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))
	member, err := groups.IsMember(ctx, "g1", "bob")
	req.NoError(err)
	req.False(member)

	err = svc.Delete(ctx, "alice", "g1")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateRole(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	err := svc.UpdateRole(ctx, "alice", "g1", "bob", model.Role("owner"))
	req.Error(err)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))

	err = svc.UpdateRole(ctx, "bob", "g1", "bob", model.RoleAdmin)
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	req.NoError(svc.UpdateRole(ctx, "alice", "g1", "bob", model.RoleAdmin))
	admin, err := groups.IsAdmin(ctx, "g1", "bob")
	req.NoError(err)
	req.True(admin)
}

func TestAuthorizeJoinMembersOnly(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", []string{"bob"}, model.GroupSettings{})
	ctx := context.Background()

	req.NoError(svc.AuthorizeJoin(ctx, "bob", "g1"))

	err := svc.AuthorizeJoin(ctx, "carol", "g1")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))
}

func TestGetPrivateGroupHiddenFromOutsiders(t *testing.T) {
	req := require.New(t)
	svc, groups, _ := newGroupAuthority(t)
	seedGroup(groups, "g1", "alice", nil, model.GroupSettings{IsPrivate: true})
	ctx := context.Background()

	_, err := svc.Get(ctx, "bob", "g1")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	g, err := svc.Get(ctx, "alice", "g1")
	req.NoError(err)
	req.Equal("g1", g.ID)
}
