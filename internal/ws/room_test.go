package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrivateRoomCanonical(t *testing.T) {
	req := require.New(t)

	// Both orderings of the pair resolve to the same room.
	req.Equal(PrivateRoom("alice", "bob"), PrivateRoom("bob", "alice"))
	req.Equal("alice_bob", PrivateRoom("bob", "alice"))
	req.Equal("alice_bob", PrivateRoom("alice", "bob"))
}

func TestPrivateRoomDistinctPairs(t *testing.T) {
	req := require.New(t)

	req.NotEqual(PrivateRoom("alice", "bob"), PrivateRoom("alice", "carol"))
	req.NotEqual(PrivateRoom("alice", "bob"), GroupRoom("alice_bob"))
}

func TestGroupRoomPrefix(t *testing.T) {
	req := require.New(t)

	req.Equal("group:g1", GroupRoom("g1"))
	// A group whose ID contains the private separator still cannot collide
	// with a private room.
	req.Equal("group:a_b", GroupRoom("a_b"))
}
