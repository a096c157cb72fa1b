package services

import (
	"chathub/domain"
	"chathub/errors"
	"chathub/repositories"
	stderrors "errors"
	"log/slog"

	"github.com/samber/lo"
)

// Reconciler keeps each user's room list consistent with room membership.
// Every operation is idempotent: callers re-invoke freely and converge on
// the same state.
type Reconciler struct {
	log   *slog.Logger
	users repositories.IUserRepository
	rooms repositories.IRoomRepository
}

func NewReconciler(log *slog.Logger, users repositories.IUserRepository, rooms repositories.IRoomRepository) *Reconciler {
	return &Reconciler{log: log, users: users, rooms: rooms}
}

// EnsureUserHasRoom appends the room to the user's list only if absent.
func (r *Reconciler) EnsureUserHasRoom(uid string, roomID domain.RoomID) error {
	return r.users.UpdateChats(uid, func(chats []domain.RoomID) []domain.RoomID {
		if lo.Contains(chats, roomID) {
			return chats
		}
		return append(chats, roomID)
	})
}

// RemoveRoomFromUser filters the room out of the user's list. No-op if the
// room (or the user) is absent.
func (r *Reconciler) RemoveRoomFromUser(uid string, roomID domain.RoomID) error {
	err := r.users.UpdateChats(uid, func(chats []domain.RoomID) []domain.RoomID {
		return lo.Filter(chats, func(id domain.RoomID, _ int) bool {
			return id != roomID
		})
	})
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	return err
}

// RemoveMemberFromGroupRoom removes the user from the room's member set.
// Private rooms keep their membership for life: leaving one only edits the
// leaver's own room list, so this is a no-op. Missing rooms are a no-op too.
func (r *Reconciler) RemoveMemberFromGroupRoom(roomID domain.RoomID, uid string) error {
	room, err := r.rooms.GetRoom(roomID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if room.Type == domain.RoomPrivate {
		return nil
	}
	return r.rooms.UpdateMembers(roomID, func(members []string) []string {
		return lo.Without(members, uid)
	})
}

// LinkMembers makes each member's room list reference the room. Linkage is
// best effort: a room open without full member linkage degrades gracefully
// rather than blocking messaging, so store failures are logged and skipped.
func (r *Reconciler) LinkMembers(roomID domain.RoomID, members []string) {
	for _, uid := range members {
		if err := r.EnsureUserHasRoom(uid, roomID); err != nil {
			r.log.Warn("membership linkage skipped", "room", roomID, "uid", uid, "error", err)
		}
	}
}
