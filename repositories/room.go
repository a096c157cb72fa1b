package repositories

import (
	"chathub/domain"
	"chathub/errors"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type IRoomRepository interface {
	EnsureRoom(room domain.ChatRoom) error
	GetRoom(id domain.RoomID) (domain.ChatRoom, error)
	UpdateMembers(id domain.RoomID, mutate func(members []string) []string) error
}

// RoomRepository persists chat rooms in BadgerDB under "room:{id}".
type RoomRepository struct {
	db *badger.DB
}

func NewRoomRepository(db *badger.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

type roomRecord struct {
	ID      string
	Type    string
	Members []string
}

func roomKey(id domain.RoomID) []byte {
	return []byte("room:" + string(id))
}

// EnsureRoom creates the room if it does not exist yet. An existing record
// is success: private room ids are value-identical for both participants, so
// the duplicate-create race is benign. Check and create share one
// transaction, so at most one record is ever written for a given id.
func (r *RoomRepository) EnsureRoom(room domain.ChatRoom) error {
	rec := roomRecord{ID: string(room.ID), Type: string(room.Type), Members: room.Members}
	data, err := marshalRecord(rec)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return errors.ErrAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(roomKey(room.ID), data)
	})
	if stderrors.Is(err, errors.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RoomRepository) GetRoom(id domain.RoomID) (domain.ChatRoom, error) {
	var rec roomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalRecord(val, &rec)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.ChatRoom{}, errors.ErrNotFound
		}
		return domain.ChatRoom{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return domain.ChatRoom{
		ID:      domain.RoomID(rec.ID),
		Type:    domain.RoomType(rec.Type),
		Members: rec.Members,
	}, nil
}

// UpdateMembers runs a read-modify-write on the room's member set inside one
// transaction. Missing rooms are a no-op: membership edits are idempotent
// and a concurrent delete must not fail the caller.
func (r *RoomRepository) UpdateMembers(id domain.RoomID, mutate func(members []string) []string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec roomRecord
		if err := item.Value(func(val []byte) error {
			return unmarshalRecord(val, &rec)
		}); err != nil {
			return err
		}
		rec.Members = mutate(rec.Members)
		data, err := marshalRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}
