package projection_test

import (
	"chathub/domain"
	"chathub/projection"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSource is a controllable message store: per-room histories, an
// optional gate that stalls history reads, and recorded subscriptions whose
// deliveries the test drives by hand. Subscribe replays history above the
// bound, like the real store.
type fakeSource struct {
	mu      sync.Mutex
	history map[domain.RoomID][]domain.Message
	histErr error
	gates   map[domain.RoomID]chan struct{}
	subs    []*fakeSub
}

type fakeSub struct {
	roomID    domain.RoomID
	since     int64
	deliver   func([]domain.Message)
	cancelled atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		history: make(map[domain.RoomID][]domain.Message),
		gates:   make(map[domain.RoomID]chan struct{}),
	}
}

func (f *fakeSource) History(roomID domain.RoomID) ([]domain.Message, error) {
	f.mu.Lock()
	gate := f.gates[roomID]
	err := f.histErr
	messages := append([]domain.Message(nil), f.history[roomID]...)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (f *fakeSource) Subscribe(ctx context.Context, roomID domain.RoomID, sinceExclusive int64, deliver func([]domain.Message)) context.CancelFunc {
	sub := &fakeSub{roomID: roomID, since: sinceExclusive, deliver: deliver}
	f.mu.Lock()
	var replay []domain.Message
	for _, msg := range f.history[roomID] {
		if msg.SentAt > sinceExclusive {
			replay = append(replay, msg)
		}
	}
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	if len(replay) > 0 {
		deliver(replay)
	}
	return func() { sub.cancelled.Store(true) }
}

func (f *fakeSource) setHistory(roomID domain.RoomID, messages ...domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[roomID] = messages
}

func (f *fakeSource) setHistErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histErr = err
}

func (f *fakeSource) gate(roomID domain.RoomID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[roomID] = g
	return g
}

// waitForSub blocks until a subscription matching pred exists.
func (f *fakeSource) waitForSub(t *testing.T, pred func(*fakeSub) bool) *fakeSub {
	t.Helper()
	var found *fakeSub
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, sub := range f.subs {
			if pred(sub) {
				found = sub
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func (f *fakeSource) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func push(t *testing.T, sub *fakeSub, messages ...domain.Message) {
	t.Helper()
	require.False(t, sub.cancelled.Load(), "pushing on a cancelled subscription")
	sub.deliver(messages)
}

func msg(room domain.RoomID, sentAt int64) domain.Message {
	return domain.Message{
		ChatRoomID: room,
		Sender:     "someone",
		Body:       fmt.Sprintf("message-%d", sentAt),
		SentAt:     sentAt,
	}
}

func startEngine(t *testing.T, source projection.MessageSource) *projection.Engine {
	t.Helper()
	engine := projection.NewEngine(slog.Default(), source)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return engine
}

func collectMessages(t *testing.T, engine *projection.Engine, n int) []domain.Message {
	t.Helper()
	var out []domain.Message
	for len(out) < n {
		select {
		case batch, ok := <-engine.Updates():
			require.True(t, ok, "updates channel closed early")
			out = append(out, batch...)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(out))
		}
	}
	return out
}

func requireNoUpdate(t *testing.T, engine *projection.Engine, window time.Duration) {
	t.Helper()
	select {
	case batch := <-engine.Updates():
		t.Fatalf("unexpected update: %v", batch)
	case <-time.After(window):
	}
}

func sentAts(messages []domain.Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.SentAt
	}
	return out
}

func Test_Snapshot_Then_Live_Delivers_Each_Message_Once(t *testing.T) {
	req := require.New(t)
	source := newFakeSource()
	room := domain.RoomID("alice:bob")
	source.setHistory(room, msg(room, 10), msg(room, 20), msg(room, 30))

	engine := startEngine(t, source)
	engine.SelectRoom(room)

	snapshot := collectMessages(t, engine, 3)
	req.Equal([]int64{10, 20, 30}, sentAts(snapshot))

	// The live feed is scoped strictly after the snapshot frontier.
	sub := source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == room && s.since == 30 })

	push(t, sub, msg(room, 40))
	live := collectMessages(t, engine, 1)
	req.Equal([]int64{40}, sentAts(live))

	// A batch overlapping already-delivered messages yields only the new one.
	push(t, sub, msg(room, 40), msg(room, 50))
	live = collectMessages(t, engine, 1)
	req.Equal([]int64{50}, sentAts(live))

	// A fully stale batch yields nothing.
	push(t, sub, msg(room, 40), msg(room, 50))
	requireNoUpdate(t, engine, 150*time.Millisecond)
}

func Test_Empty_Snapshot_Adopts_First_Live_Batch(t *testing.T) {
	req := require.New(t)
	source := newFakeSource()
	room := domain.RoomID("alice:bob")

	engine := startEngine(t, source)
	engine.SelectRoom(room)

	// With no frontier yet, the feed opens unscoped.
	unscoped := source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == room && s.since == 0 })

	push(t, unscoped, msg(room, 10), msg(room, 20))
	adopted := collectMessages(t, engine, 2)
	req.Equal([]int64{10, 20}, sentAts(adopted))

	// The unscoped feed is swapped for a frontier-scoped one.
	scoped := source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == room && s.since == 20 })
	require.Eventually(t, unscoped.cancelled.Load, time.Second, 5*time.Millisecond)

	push(t, scoped, msg(room, 30))
	live := collectMessages(t, engine, 1)
	req.Equal([]int64{30}, sentAts(live))
}

func Test_Late_Snapshot_For_Superseded_Room_Is_Discarded(t *testing.T) {
	req := require.New(t)
	source := newFakeSource()
	roomA := domain.RoomID("room-a")
	roomB := domain.RoomID("room-b")
	source.setHistory(roomA, msg(roomA, 10))
	source.setHistory(roomB, msg(roomB, 99))
	gateA := source.gate(roomA)

	engine := startEngine(t, source)
	engine.SelectRoom(roomA)
	engine.SelectRoom(roomB)

	got := collectMessages(t, engine, 1)
	req.Equal([]int64{99}, sentAts(got))
	req.Equal(roomB, got[0].ChatRoomID)

	// Room A's snapshot resolves after the switch; it must never surface.
	close(gateA)
	requireNoUpdate(t, engine, 200*time.Millisecond)
}

func Test_Reselect_Cancels_Previous_Subscription(t *testing.T) {
	source := newFakeSource()
	roomA := domain.RoomID("room-a")
	roomB := domain.RoomID("room-b")
	source.setHistory(roomA, msg(roomA, 10))
	source.setHistory(roomB, msg(roomB, 20))

	engine := startEngine(t, source)
	engine.SelectRoom(roomA)
	collectMessages(t, engine, 1)
	subA := source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == roomA })

	engine.SelectRoom(roomB)
	collectMessages(t, engine, 1)
	source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == roomB })
	require.Eventually(t, subA.cancelled.Load, time.Second, 5*time.Millisecond)
}

func Test_Deselect_Tears_Down_The_Feed(t *testing.T) {
	req := require.New(t)
	source := newFakeSource()
	room := domain.RoomID("alice:bob")
	source.setHistory(room, msg(room, 10))

	engine := startEngine(t, source)
	engine.SelectRoom(room)
	collectMessages(t, engine, 1)
	sub := source.waitForSub(t, func(s *fakeSub) bool { return s.roomID == room })

	engine.Deselect()
	require.Eventually(t, sub.cancelled.Load, time.Second, 5*time.Millisecond)
	req.Equal(1, source.subCount())
}

func Test_Snapshot_Failure_Alerts_And_Reselect_Retries(t *testing.T) {
	req := require.New(t)
	source := newFakeSource()
	room := domain.RoomID("alice:bob")
	source.setHistErr(fmt.Errorf("store unavailable"))

	engine := startEngine(t, source)
	engine.SelectRoom(room)

	select {
	case err := <-engine.Alerts():
		req.Error(err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for the failed snapshot")
	}
	req.Equal(0, source.subCount(), "no feed opens for a failed snapshot")

	// Re-selecting the room retries the snapshot.
	source.setHistErr(nil)
	source.setHistory(room, msg(room, 10))
	engine.SelectRoom(room)
	got := collectMessages(t, engine, 1)
	req.Equal([]int64{10}, sentAts(got))
}
