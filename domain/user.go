package domain

import "time"

// User is created on first registration. Chats is the user's room list,
// ordered by first contact; it is mutated only through the membership
// reconciler.
type User struct {
	UID       string
	Email     string
	CreatedAt time.Time
	Chats     []RoomID
}
