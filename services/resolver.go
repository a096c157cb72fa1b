// Package services holds the room resolver, the membership reconciler, and
// the chat and auth services that sit between the transport and the ledger.
package services

import (
	"chathub/domain"
	"chathub/errors"
	"chathub/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// PrivateRoomID derives the room id for a pair of users: the two uids joined
// in lexicographic order. Pure and order-independent, so both participants
// compute the same id with no coordination and a distributed create-or-find
// race never arises.
func PrivateRoomID(a, b string) domain.RoomID {
	if b < a {
		a, b = b, a
	}
	return domain.RoomID(a + ":" + b)
}

// RoomResolver derives or locates the room for a set of participants.
type RoomResolver struct {
	rooms repositories.IRoomRepository
}

func NewRoomResolver(rooms repositories.IRoomRepository) *RoomResolver {
	return &RoomResolver{rooms: rooms}
}

// EnsurePrivateRoom creates the derived private room if it is missing. A
// concurrent create by the other participant is value-identical, so an
// existing record counts as success.
func (r *RoomResolver) EnsurePrivateRoom(a, b string) (domain.RoomID, error) {
	if a == b {
		return "", errors.ErrInvalidInput
	}
	id := PrivateRoomID(a, b)
	members := []string{a, b}
	if members[1] < members[0] {
		members[0], members[1] = members[1], members[0]
	}
	room := domain.ChatRoom{ID: id, Type: domain.RoomPrivate, Members: members}
	if err := r.rooms.EnsureRoom(room); err != nil {
		return "", err
	}
	return id, nil
}

// CreateGroupRoom allocates a fresh opaque id for a group room. The creator
// is always a member. Store-assigned ids are unique, so no collision
// handling is needed.
func (r *RoomResolver) CreateGroupRoom(creator string, members []string) (domain.RoomID, error) {
	all := lo.Uniq(append([]string{creator}, members...))
	if len(all) < 2 {
		return "", errors.ErrInvalidInput
	}
	id := domain.RoomID(uuid.New().String())
	room := domain.ChatRoom{ID: id, Type: domain.RoomGroup, Members: all}
	if err := r.rooms.EnsureRoom(room); err != nil {
		return "", err
	}
	return id, nil
}
