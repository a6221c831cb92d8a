package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/apperr"
	"github.com/chatline/internal/model"
	"github.com/chatline/internal/ws"
)

func newReactionLedger(t *testing.T) (*ReactionService, *fakeMessages, *fakeGroups, *recorder) {
	t.Helper()
	users := newFakeUsers(
		&model.User{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		&model.User{ID: "bob", Name: "Bob", Email: "bob@example.com"},
		&model.User{ID: "carol", Name: "Carol", Email: "carol@example.com"},
	)
	msgs := newFakeMessages()
	groups := newFakeGroups()
	rec := &recorder{}
	svc := NewReactionService(newFakeReactions(), msgs, users, groups, rec)
	return svc, msgs, groups, rec
}

func seedPrivateMessage(msgs *fakeMessages, id, sender, receiver string) {
	msgs.Create(context.Background(), &model.Message{
		ID: id, Type: model.MessageTypePrivate,
		SenderID: sender, ReceiverID: receiver,
		Content: "hi", CreatedAt: time.Now().UTC(),
	})
}

func TestAddReactionIsIdempotent(t *testing.T) {
	req := require.New(t)
	svc, msgs, _, rec := newReactionLedger(t)
	seedPrivateMessage(msgs, "m1", "alice", "bob")
	ctx := context.Background()

	rc, added, err := svc.Add(ctx, "bob", "m1", "👍")
	req.NoError(err)
	req.True(added)
	req.NotEmpty(rc.ID)

	// Same user, same emoji: absorbed, no second broadcast.
	dup, added, err := svc.Add(ctx, "bob", "m1", "👍")
	req.NoError(err)
	req.False(added)
	req.Nil(dup)

	// Different emoji from the same user is a distinct reaction.
	_, added, err = svc.Add(ctx, "bob", "m1", "🎉")
	req.NoError(err)
	req.True(added)

	events := rec.byType(ws.EventMessageReactionAdded)
	req.Len(events, 2)
	req.Equal(ws.PrivateRoom("alice", "bob"), events[0].Room)
	payload := events[0].Event.Payload.(ws.ReactionAddedPayload)
	req.Equal("m1", payload.MessageID)
	req.Equal(rc.ID, payload.Reaction.ID)
}

func TestAddReactionParticipantsOnly(t *testing.T) {
	req := require.New(t)
	svc, msgs, groups, _ := newReactionLedger(t)
	seedPrivateMessage(msgs, "m1", "alice", "bob")
	ctx := context.Background()

	_, _, err := svc.Add(ctx, "carol", "m1", "👍")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	// Group messages gate on membership.
	seedGroup(groups, "g1", "alice", nil, model.GroupSettings{})
	msgs.Create(ctx, &model.Message{
		ID: "m2", Type: model.MessageTypeGroup, SenderID: "alice", GroupID: "g1",
		Content: "hi", CreatedAt: time.Now().UTC(),
	})
	_, _, err = svc.Add(ctx, "bob", "m2", "👍")
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	_, added, err := svc.Add(ctx, "alice", "m2", "👍")
	req.NoError(err)
	req.True(added)
}

func TestAddReactionValidation(t *testing.T) {
	req := require.New(t)
	svc, msgs, _, _ := newReactionLedger(t)
	seedPrivateMessage(msgs, "m1", "alice", "bob")

	_, _, err := svc.Add(context.Background(), "alice", "m1", "  ")
	req.Error(err)
	req.Equal(apperr.KindValidation, apperr.KindOf(err))

	_, _, err = svc.Add(context.Background(), "alice", "missing", "👍")
	req.Error(err)
	req.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func TestRemoveReactionOwnerOnly(t *testing.T) {
	req := require.New(t)
	svc, msgs, _, rec := newReactionLedger(t)
	seedPrivateMessage(msgs, "m1", "alice", "bob")
	ctx := context.Background()

	rc, _, err := svc.Add(ctx, "bob", "m1", "👍")
	req.NoError(err)

	err = svc.Remove(ctx, "alice", "m1", rc.ID)
	req.Error(err)
	req.Equal(apperr.KindAuthorization, apperr.KindOf(err))

	req.NoError(svc.Remove(ctx, "bob", "m1", rc.ID))
	events := rec.byType(ws.EventMessageReactionRemoved)
	req.Len(events, 1)
	payload := events[0].Event.Payload.(ws.ReactionRemovedPayload)
	req.Equal(rc.ID, payload.ReactionID)
	req.Equal("bob", payload.UserID)
	req.Equal("👍", payload.Emoji)

	// Removing a reaction that is already gone is a no-op, not an error, and
	// broadcasts nothing more.
	req.NoError(svc.Remove(ctx, "bob", "m1", rc.ID))
	req.Len(rec.byType(ws.EventMessageReactionRemoved), 1)
}

func TestRemoveByUserLegacyPath(t *testing.T) {
	req := require.New(t)
	svc, msgs, _, rec := newReactionLedger(t)
	seedPrivateMessage(msgs, "m1", "alice", "bob")
	ctx := context.Background()

	_, _, err := svc.Add(ctx, "bob", "m1", "👍")
	req.NoError(err)
	_, _, err = svc.Add(ctx, "bob", "m1", "🎉")
	req.NoError(err)
	_, _, err = svc.Add(ctx, "alice", "m1", "👍")
	req.NoError(err)

	req.NoError(svc.RemoveByUser(ctx, "bob", "m1"))

	list, err := svc.List(ctx, "m1")
	req.NoError(err)
	req.Len(list, 1)
	req.Equal("alice", list[0].UserID)

	events := rec.byType(ws.EventMessageReactionRemoved)
	req.Len(events, 1)
	payload := events[0].Event.Payload.(ws.ReactionRemovedPayload)
	req.Empty(payload.ReactionID)
	req.Equal("bob", payload.UserID)
}
