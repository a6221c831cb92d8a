package model

import "time"

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// ValidRole reports whether r is one of the allowed member roles.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleParticipant
}

type GroupSettings struct {
	IsPrivate         bool `json:"is_private"`
	AllowMemberInvite bool `json:"allow_member_invite"`
	AdminOnlyMessages bool `json:"admin_only_messages"`
}

type GroupMember struct {
	UserID   string      `json:"user_id"`
	Role     Role        `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
	User     *UserPublic `json:"user,omitempty"`
}

// Group membership is owned exclusively by the group service; the creator is
// always the first member with role admin. Deleted groups stay in storage for
// audit but are excluded from every listing and membership check.
type Group struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	PictureURL  string        `json:"picture_url,omitempty"`
	CreatedBy   string        `json:"created_by"`
	Members     []GroupMember `json:"members"`
	Settings    GroupSettings `json:"settings"`
	Deleted     bool          `json:"deleted"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// GroupPatch is a partial update applied by an admin. Nil fields are left
// unchanged.
type GroupPatch struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	PictureURL  *string        `json:"picture_url,omitempty"`
	Settings    *GroupSettings `json:"settings,omitempty"`
}
