package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, userID string) *Client {
	return &Client{
		hub:    h,
		send:   make(chan Event, sendBufSize),
		userID: userID,
		done:   make(chan struct{}),
	}
}

func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	carol := newTestClient(h, "carol")

	h.JoinPrivate(alice, "alice", "bob")
	h.JoinPrivate(bob, "bob", "alice")
	h.JoinPrivate(carol, "carol", "dave")

	h.Broadcast(PrivateRoom("alice", "bob"), Event{Type: EventReceiveMessage, Payload: "hi"})

	req.Len(drain(alice), 1)
	req.Len(drain(bob), 1)
	req.Empty(drain(carol))
}

func TestJoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	h.JoinGroup(alice, "g1")
	h.JoinGroup(alice, "g1")

	h.Broadcast(GroupRoom("g1"), Event{Type: EventReceiveGroupMessage})
	// One subscription, one delivery.
	req.Len(drain(alice), 1)
}

func TestLeaveGroupStopsDelivery(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	h.JoinGroup(alice, "g1")
	h.JoinGroup(bob, "g1")

	h.LeaveGroup(alice, "g1")
	h.Broadcast(GroupRoom("g1"), Event{Type: EventMemberRemoved})

	req.Empty(drain(alice))
	req.Len(drain(bob), 1)
}

func TestUserOnline(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	req.False(h.UserOnline("alice"))

	h.JoinPrivate(alice, "alice", "bob")
	req.True(h.UserOnline("alice"))
	// The peer has no connection of their own.
	req.False(h.UserOnline("bob"))
}

func TestShutdownDrainsAllConnections(t *testing.T) {
	const conns = 100 // well past the register/unregister buffer size

	req := require.New(t)
	h := NewHub(conns)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		h.Run(hubCtx)
		close(runDone)
	}()

	var registered atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(h, conn, r.URL.Query().Get("user"))
		ctx, cancel := context.WithCancel(hubCtx)
		c.Start(ctx, cancel)
		h.JoinGroup(c, "g1")
		h.Register(c)
		registered.Add(1)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialed := make([]*websocket.Conn, 0, conns)
	defer func() {
		for _, c := range dialed {
			c.Close()
		}
	}()
	for i := 0; i < conns; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s/?user=u%d", wsURL, i), nil)
		req.NoError(err)
		dialed = append(dialed, conn)
	}
	req.Eventually(func() bool { return int(registered.Load()) == conns },
		5*time.Second, 10*time.Millisecond)

	// Cancel must drain every client without hanging: each read pump's
	// deferred Unregister unblocks even though the run loop has stopped
	// consuming the channel.
	hubCancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("hub.Run did not return after cancel")
	}
	req.False(h.UserOnline("u0"))
}

func TestRegisterAfterDisconnectDoesNotLeak(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	// The connection died before the run loop consumed its register.
	close(alice.done)
	h.addClient(alice)

	req.False(h.UserOnline("alice"))
	h.Broadcast(GroupRoom("g1"), Event{Type: EventReceiveGroupMessage})
	req.Empty(drain(alice))
}

func TestSendErrorGoesToOriginOnly(t *testing.T) {
	req := require.New(t)
	h := NewHub(10)

	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	h.JoinPrivate(alice, "alice", "bob")
	h.JoinPrivate(bob, "bob", "alice")

	h.SendError(alice, "boom")

	got := drain(alice)
	req.Len(got, 1)
	req.Equal(EventError, got[0].Type)
	req.Equal(ErrorPayload{Message: "boom"}, got[0].Payload)
	req.Empty(drain(bob))
}
