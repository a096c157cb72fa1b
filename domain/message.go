// Package domain contains core concepts of the chat system.
// Messages are immutable events; rooms and users are ledger records.
package domain

// Message represents an immutable chat event within one room.
// SentAt is assigned by the store (unix nanoseconds) and is strictly
// increasing per store, so it doubles as the ordering key.
type Message struct {
	ChatRoomID RoomID
	Sender     string
	Body       string
	SentAt     int64
}
