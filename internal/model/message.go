package model

import "time"

type MessageType string

const (
	MessageTypePrivate MessageType = "private"
	MessageTypeGroup   MessageType = "group"
)

// Message is created by the message pipeline and afterwards mutated only by
// the reaction ledger and soft delete. CreatedAt is the primary ordering key;
// Seq breaks timestamp ties by insertion order.
type Message struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"-"`
	Type      MessageType `json:"message_type"`
	SenderID  string      `json:"sender_id"`
	// Exactly one of ReceiverID / GroupID is set, matching Type.
	ReceiverID string     `json:"receiver_id,omitempty"`
	GroupID    string     `json:"group_id,omitempty"`
	Content    string     `json:"content,omitempty"`
	FileURL    string     `json:"file_url,omitempty"`
	FileType   string     `json:"file_type,omitempty"`
	ReplyToID  *string    `json:"reply_to_id,omitempty"`
	Deleted    bool       `json:"deleted"`
	CreatedAt  time.Time  `json:"created_at"`

	// Enriched fields, populated for delivery; never persisted.
	Sender    *UserPublic `json:"sender,omitempty"`
	Receiver  *UserPublic `json:"receiver,omitempty"`
	GroupName string      `json:"group_name,omitempty"`
	ReplyTo   *Message    `json:"reply_to,omitempty"`
	Reactions []Reaction  `json:"reactions,omitempty"`
}

// Target is the tagged variant over the private/group destination so callers
// switch exhaustively by type instead of probing which field is set.
type Target interface {
	isTarget()
}

type PrivateTarget struct {
	SenderID   string
	ReceiverID string
}

type GroupTarget struct {
	SenderID string
	GroupID  string
}

func (PrivateTarget) isTarget() {}
func (GroupTarget) isTarget()   {}

// Target returns the typed destination of the message.
func (m *Message) Target() Target {
	if m.Type == MessageTypeGroup {
		return GroupTarget{SenderID: m.SenderID, GroupID: m.GroupID}
	}
	return PrivateTarget{SenderID: m.SenderID, ReceiverID: m.ReceiverID}
}

// Reaction is one entry in a message's reaction list. Identity is the ID;
// the pair (UserID, Emoji) is unique per message.
type Reaction struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Emoji     string      `json:"emoji"`
	CreatedAt time.Time   `json:"timestamp"`
	User      *UserPublic `json:"user,omitempty"`
}
