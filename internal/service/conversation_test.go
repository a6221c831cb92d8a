package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatline/internal/model"
)

func TestGetConversationEmptyForNewUser(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers(&model.User{ID: "alice", Name: "Alice"})
	svc := NewConversationService(newFakeConvos(), users)

	c, err := svc.Get(context.Background(), "alice")
	req.NoError(err)
	req.Equal("alice", c.OwnerID)
	req.Empty(c.Participants)
	req.Nil(c.LastMessageID)
}

func TestRecordExchangeIsBidirectionalAndIdempotent(t *testing.T) {
	req := require.New(t)
	convos := newFakeConvos()
	svc := NewConversationService(convos, newFakeUsers())
	ctx := context.Background()

	req.NoError(svc.RecordExchange(ctx, "alice", "bob", "m1"))
	req.NoError(svc.RecordExchange(ctx, "alice", "bob", "m2"))
	req.NoError(svc.RecordExchange(ctx, "bob", "alice", "m3"))

	a, err := svc.Get(ctx, "alice")
	req.NoError(err)
	req.Equal([]string{"bob"}, a.Participants)
	req.NotNil(a.LastMessageID)
	req.Equal("m3", *a.LastMessageID)

	b, err := svc.Get(ctx, "bob")
	req.NoError(err)
	req.Equal([]string{"alice"}, b.Participants)
}

func TestRemoveContactIsAsymmetric(t *testing.T) {
	req := require.New(t)
	convos := newFakeConvos()
	svc := NewConversationService(convos, newFakeUsers())
	ctx := context.Background()

	req.NoError(svc.RecordExchange(ctx, "alice", "bob", "m1"))
	req.NoError(svc.RemoveContact(ctx, "alice", "bob"))

	a, err := svc.Get(ctx, "alice")
	req.NoError(err)
	req.Empty(a.Participants)

	// Bob's side keeps the contact.
	b, err := svc.Get(ctx, "bob")
	req.NoError(err)
	req.Equal([]string{"alice"}, b.Participants)

	ok, err := svc.HasContact(ctx, "alice", "bob")
	req.NoError(err)
	req.False(ok)
	ok, err = svc.HasContact(ctx, "bob", "alice")
	req.NoError(err)
	req.True(ok)
}
