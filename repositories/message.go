package repositories

import (
	"bytes"
	"chathub/domain"
	"chathub/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Append(roomID domain.RoomID, sender, body string) (domain.Message, error)
	History(roomID domain.RoomID) ([]domain.Message, error)
	Subscribe(ctx context.Context, roomID domain.RoomID, sinceExclusive int64, deliver func(batch []domain.Message)) context.CancelFunc
}

// MessageRepository is the append-only message log, persisted in BadgerDB.
// The key is formatted as "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Keep the uuid suffix as a collision guard on the key space, even
//     though assigned timestamps never repeat (see nextStamp).
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu        sync.Mutex
	lastStamp int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

type messageRecord struct {
	Sender string
	Body   string
	SentAt int64
}

func messagePrefix(roomID domain.RoomID) []byte {
	return []byte("msg:" + string(roomID) + ":")
}

func messageKey(roomID domain.RoomID, sentAt int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", roomID, sentAt, id))
}

// nextStampLocked assigns the server timestamp. A clock reading at or below
// the previous stamp is bumped by one nanosecond, so stamps are strictly
// increasing per store. This is what lets the live feed use a strict
// "> frontier" bound with no tie-break key. Callers must hold mu.
func (m *MessageRepository) nextStampLocked() int64 {
	now := time.Now().UnixNano()
	if now <= m.lastStamp {
		now = m.lastStamp + 1
	}
	m.lastStamp = now
	return now
}

// Append stores a message with a store-assigned timestamp and returns it.
// The lock spans both stamp assignment and commit: commit order must equal
// timestamp order, or a slower append with a smaller stamp could land after
// a feed's frontier has already advanced past it and be skipped.
func (m *MessageRepository) Append(roomID domain.RoomID, sender, body string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sentAt := m.nextStampLocked()
	rec := messageRecord{Sender: sender, Body: body, SentAt: sentAt}
	data, err := marshalRecord(rec)
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal failed: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(roomID, sentAt, uuid.New()), data)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return domain.Message{ChatRoomID: roomID, Sender: sender, Body: body, SentAt: sentAt}, nil
}

// History returns all messages for a room in ascending SentAt order.
// Thanks to the padded timestamp in the key, a forward prefix scan is
// already chronological.
func (m *MessageRepository) History(roomID domain.RoomID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec messageRecord
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &rec)
			})
			if err != nil {
				return err
			}
			messages = append(messages, toDomainMessage(roomID, rec))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return messages, nil
}

// Subscribe opens a long-lived change feed for one room, delivering ordered
// batches of messages with SentAt strictly greater than sinceExclusive.
//
// Badger's native Subscribe does not replay pre-existing records, so the
// feed replays history above the bound before forwarding watcher batches.
// The replay must not start until the watcher is registered, or a message
// written in between would be lost; badger gives no registration signal, so
// the feed also watches a unique marker key and writes it until the watcher
// reports it back. A record written during attachment is then seen by the
// replay, a record written after by the watcher, and anything seen by both
// is suppressed by the strict frontier bound. Batches are delivered from a
// single goroutine, so calls to deliver never overlap.
//
// The returned cancel is idempotent. Cancellation (or a terminal store
// error) ends the feed; there is no automatic reconnect.
func (m *MessageRepository) Subscribe(ctx context.Context, roomID domain.RoomID, sinceExclusive int64, deliver func(batch []domain.Message)) context.CancelFunc {
	subCtx, cancel := context.WithCancel(ctx)
	prefix := messagePrefix(roomID)
	marker := []byte("feedmark:" + uuid.New().String())
	updates := make(chan []domain.Message, 16)
	ready := make(chan struct{})
	var readyOnce sync.Once

	go func() {
		defer close(updates)
		err := m.db.Subscribe(subCtx, func(kvs *badger.KVList) error {
			var batch []domain.Message
			for _, kv := range kvs.Kv {
				if bytes.Equal(kv.Key, marker) {
					readyOnce.Do(func() { close(ready) })
					continue
				}
				if len(kv.Value) == 0 {
					continue
				}
				var rec messageRecord
				if err := unmarshalRecord(kv.Value, &rec); err != nil {
					return err
				}
				batch = append(batch, toDomainMessage(roomID, rec))
			}
			if len(batch) == 0 {
				return nil
			}
			select {
			case updates <- batch:
			case <-subCtx.Done():
			}
			return nil
		}, []pb.Match{{Prefix: prefix}, {Prefix: marker}})
		if err != nil && !stderrors.Is(err, context.Canceled) {
			m.log.Error("message feed terminated", "room", roomID, "error", err)
		}
	}()

	go func() {
		if !m.awaitWatcher(subCtx, marker, ready) {
			return
		}
		frontier := sinceExclusive

		// Replay pass: everything already stored above the bound.
		replay, err := m.History(roomID)
		if err != nil {
			m.log.Error("message feed replay failed", "room", roomID, "error", err)
			cancel()
			return
		}
		replay = above(replay, frontier)
		if len(replay) > 0 {
			frontier = replay[len(replay)-1].SentAt
			if subCtx.Err() == nil {
				deliver(replay)
			}
		}

		// Live tail: watcher batches, deduplicated against the replay.
		for batch := range updates {
			batch = above(batch, frontier)
			if len(batch) == 0 {
				continue
			}
			frontier = batch[len(batch)-1].SentAt
			if subCtx.Err() != nil {
				return
			}
			deliver(batch)
		}
	}()

	return cancel
}

// awaitWatcher writes the marker key until the watcher echoes it back,
// proving the subscription is registered. Marker entries carry a short TTL
// so they never accumulate. Returns false if the feed was cancelled first.
func (m *MessageRepository) awaitWatcher(ctx context.Context, marker []byte, ready <-chan struct{}) bool {
	for {
		err := m.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(marker, []byte{1}).WithTTL(time.Minute))
		})
		if err != nil {
			m.log.Error("message feed handshake write failed", "error", err)
		}
		select {
		case <-ready:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// above keeps messages with SentAt strictly greater than the bound. Input
// batches are already in ascending order, so the result stays ordered.
func above(messages []domain.Message, bound int64) []domain.Message {
	var out []domain.Message
	for _, msg := range messages {
		if msg.SentAt > bound {
			out = append(out, msg)
		}
	}
	return out
}

func toDomainMessage(roomID domain.RoomID, rec messageRecord) domain.Message {
	return domain.Message{ChatRoomID: roomID, Sender: rec.Sender, Body: rec.Body, SentAt: rec.SentAt}
}
