package ws

import "github.com/chatline/internal/model"

type EventType string

// Inbound event types.
const (
	EventJoinRoom           EventType = "join_room"
	EventJoinGroup          EventType = "join_group"
	EventLeaveGroup         EventType = "leave_group"
	EventSendMessage        EventType = "send_message"
	EventSendGroupMessage   EventType = "send_group_message"
	EventAddReaction        EventType = "add_reaction"
	EventRemoveReaction     EventType = "remove_reaction"
	EventGroupMemberAdded   EventType = "group_member_added"
	EventGroupMemberRemoved EventType = "group_member_removed"
)

// Outbound event types.
const (
	EventReceiveMessage         EventType = "receive_message"
	EventReceiveGroupMessage    EventType = "receive_group_message"
	EventMessageReactionAdded   EventType = "message_reaction_added"
	EventMessageReactionRemoved EventType = "message_reaction_removed"
	EventMemberAdded            EventType = "member_added"
	EventMemberRemoved          EventType = "member_removed"
	EventError                  EventType = "error"
)

// InboundEvent is what a client sends to the server.
type InboundEvent struct {
	Type EventType `json:"type"`

	SenderID   string `json:"sender_id,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`

	Content  string `json:"content,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileType string `json:"file_type,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`

	// For reactions
	MessageID  string `json:"message_id,omitempty"`
	Emoji      string `json:"emoji,omitempty"`
	ReactionID string `json:"reaction_id,omitempty"`

	// For membership notifications
	NewMemberID     string `json:"new_member,omitempty"`
	RemovedMemberID string `json:"removed_member_id,omitempty"`
}

// Event is what the server sends to clients. Payloads are typed structs or
// enriched model values, never map[string]any.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ErrorPayload goes only to the originating connection, never broadcast.
type ErrorPayload struct {
	Message string `json:"message"`
}

// MemberPayload is broadcast to a group room on membership changes.
type MemberPayload struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

// ReactionAddedPayload is broadcast to the message's room when a reaction
// lands. Reaction carries the server-assigned ID clients need for removal.
type ReactionAddedPayload struct {
	MessageID string         `json:"message_id"`
	Reaction  model.Reaction `json:"reaction"`
}

// ReactionRemovedPayload identifies the removed reaction. ReactionID is empty
// on the legacy remove-by-user path, where UserID and Emoji identify it.
type ReactionRemovedPayload struct {
	MessageID  string `json:"message_id"`
	ReactionID string `json:"reaction_id,omitempty"`
	UserID     string `json:"user_id"`
	Emoji      string `json:"emoji,omitempty"`
}
