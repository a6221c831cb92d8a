package ws

// Room ids name the logical channels used for live fan-out. Private rooms are
// keyed by the canonical sorted pair of the two user ids, so
// PrivateRoom(a, b) == PrivateRoom(b, a) regardless of caller order.

const (
	privateRoomSep  = "_"
	groupRoomPrefix = "group:"
)

func PrivateRoom(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + privateRoomSep + userB
}

func GroupRoom(groupID string) string {
	return groupRoomPrefix + groupID
}
