package model

import "time"

// Conversation is a per-user contact record: the set of users this owner has
// messaged. It is asymmetric by design — each side of a private exchange owns
// an independent record, created lazily on first contact.
type Conversation struct {
	OwnerID       string       `json:"user_id"`
	Participants  []string     `json:"participants"`
	LastMessageID *string      `json:"last_message_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Users         []UserPublic `json:"users,omitempty"`
}
