package service

import (
	"context"

	"github.com/chatline/internal/model"
	"github.com/chatline/internal/ws"
)

// Broadcaster fans an event out to every connection subscribed to a room.
// The hub satisfies it; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(room string, ev ws.Event)
}

// Presence reports whether a user holds at least one live connection.
type Presence interface {
	UserOnline(userID string) bool
}

// PushNotifier delivers an out-of-band notification to a user's registered
// push subscriptions. Implementations must tolerate users with none.
type PushNotifier interface {
	Notify(ctx context.Context, userID, title, body string) error
}

// UserStore is the slice of the user repository the services need.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetPublicByIDs(ctx context.Context, ids []string) (map[string]model.UserPublic, error)
}

// roomFor maps a message to its canonical delivery room.
func roomFor(m *model.Message) string {
	switch t := m.Target().(type) {
	case model.GroupTarget:
		return ws.GroupRoom(t.GroupID)
	case model.PrivateTarget:
		return ws.PrivateRoom(t.SenderID, t.ReceiverID)
	}
	return ""
}
