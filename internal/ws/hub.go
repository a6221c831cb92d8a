package ws

import (
	"context"
	"sync"

	"github.com/chatline/internal/logger"
)

// EventHandler dispatches one inbound client event. Implemented by the
// gateway; the hub itself stays mechanism-only and performs no authorization.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, ev InboundEvent)
}

// Hub owns the room → subscriber-set mapping and performs fan-out. It is
// constructed explicitly, run under a context, and passed by reference into
// the pipeline and ledger services; there is no ambient global dispatcher.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
	total  int

	maxConns   int
	handler    EventHandler
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		joined:     make(map[*Client]map[string]struct{}),
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// SetHandler wires the inbound dispatcher. Must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Release Register/Unregister callers first: the run loop stops
	// consuming the channels here, and read pumps unwinding below would
	// otherwise block on a full unregister buffer while Wait waits on them.
	close(h.done)

	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for c := range h.joined {
		allClients = append(allClients, c)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.joined = make(map[*Client]map[string]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	// The connection may have died (and been unregistered) before its
	// register was consumed; inserting it now would leak the entry.
	select {
	case <-c.done:
		return
	default:
	}
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.joined[c]; !ok {
		h.joined[c] = make(map[string]struct{})
		h.total++
	}
	h.mu.Unlock()
}

// removeClient drops the connection from every room it held. No persisted
// side effect: room subscriptions are transport state only.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	rooms, ok := h.joined[c]
	if ok {
		for room := range rooms {
			h.dropFromRoom(room, c)
		}
		delete(h.joined, c)
		h.total--
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// dropFromRoom must be called with h.mu held.
func (h *Hub) dropFromRoom(room string, c *Client) {
	subs, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
}

// JoinPrivate subscribes the connection to the canonical two-party room.
// Joining is idempotent.
func (h *Hub) JoinPrivate(c *Client, userA, userB string) {
	h.join(c, PrivateRoom(userA, userB))
}

// JoinGroup subscribes the connection to the group's room. Membership checks
// belong to the dispatch layer, not here.
func (h *Hub) JoinGroup(c *Client, groupID string) {
	h.join(c, GroupRoom(groupID))
}

func (h *Hub) LeaveGroup(c *Client, groupID string) {
	room := GroupRoom(groupID)
	h.mu.Lock()
	h.dropFromRoom(room, c)
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
	}
	h.mu.Unlock()
}

func (h *Hub) join(c *Client, room string) {
	select {
	case <-c.done:
		return
	default:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.joined[c]; !ok {
		// Register may still be in flight on the run loop; track the
		// connection now so the subscription is not lost.
		h.joined[c] = make(map[string]struct{})
		h.total++
	}
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.joined[c][room] = struct{}{}
}

// Broadcast delivers the event to every connection currently subscribed to
// the room. A participant not subscribed receives nothing live; the durable
// message stays retrievable via history.
func (h *Hub) Broadcast(room string, ev Event) {
	h.mu.RLock()
	subs, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.SendTo(c, ev)
	}
}

// UserOnline reports whether the user has at least one registered connection.
// Used to decide whether an offline push notification is warranted.
func (h *Hub) UserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.joined {
		if c.userID == userID {
			return true
		}
	}
	return false
}

// SendTo enqueues an event for a single connection.
func (h *Hub) SendTo(c *Client, ev Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

// SendError reports an error to the originating connection only.
func (h *Hub) SendError(c *Client, msg string) {
	h.SendTo(c, Event{Type: EventError, Payload: ErrorPayload{Message: msg}})
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
