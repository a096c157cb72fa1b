package domain

type RoomID string

type RoomType string

const (
	RoomPrivate RoomType = "private"
	RoomGroup   RoomType = "group"
)

// ChatRoom is a named set of participants sharing a message stream.
// A private room has exactly two members and its membership never changes
// after creation; a group room has a store-assigned id and mutable members.
type ChatRoom struct {
	ID      RoomID
	Type    RoomType
	Members []string
}

func (r ChatRoom) HasMember(uid string) bool {
	for _, m := range r.Members {
		if m == uid {
			return true
		}
	}
	return false
}
