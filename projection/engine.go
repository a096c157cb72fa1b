// Package projection builds per-viewer timelines from the message store.
// Handles the snapshot/live handoff, ordering, and deduplication. Does not
// own persistent state and does not touch the transport.
package projection

import (
	"chathub/domain"
	"context"
	"log/slog"
)

// MessageSource is the slice of the message store the engine consumes: a
// one-shot history read and a cancellable change feed scoped to a strict
// lower bound.
type MessageSource interface {
	History(roomID domain.RoomID) ([]domain.Message, error)
	Subscribe(ctx context.Context, roomID domain.RoomID, sinceExclusive int64, deliver func(batch []domain.Message)) context.CancelFunc
}

type State int

const (
	StateIdle State = iota
	StateLoadingSnapshot
	StateAwaitingLive
	StateLive
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingSnapshot:
		return "loading-snapshot"
	case StateAwaitingLive:
		return "awaiting-live"
	case StateLive:
		return "live"
	case StateTornDown:
		return "torn-down"
	}
	return "unknown"
}

type engineEvent interface{}

type roomSelected struct{ roomID domain.RoomID }

type roomDeselected struct{}

type snapshotLoaded struct {
	epoch    uint64
	messages []domain.Message
	err      error
}

type liveBatch struct {
	epoch    uint64
	messages []domain.Message
}

// Engine produces the ordered message sequence for one viewer's selected
// room: a historical snapshot followed by a live tail, each message exactly
// once. All state mutation happens on the Run goroutine; user actions and
// store callbacks are serialized onto one event channel, so no locks guard
// the timeline.
//
// The selection epoch is the cancellation token: every asynchronous step
// carries the epoch it was started under, and results from a superseded
// selection are discarded on arrival instead of being applied.
type Engine struct {
	log    *slog.Logger
	source MessageSource

	events chan engineEvent
	out    chan []domain.Message
	alerts chan error
	done   chan struct{}

	// Owned by the Run goroutine.
	state     State
	roomID    domain.RoomID
	epoch     uint64
	timeline  []domain.Message
	frontier  int64
	cancelSub context.CancelFunc
}

func NewEngine(log *slog.Logger, source MessageSource) *Engine {
	return &Engine{
		log:    log,
		source: source,
		events: make(chan engineEvent, 64),
		out:    make(chan []domain.Message, 64),
		alerts: make(chan error, 8),
		done:   make(chan struct{}),
	}
}

// Updates delivers appended timeline suffixes in order; concatenating them
// reproduces the room's timeline exactly. Closed when Run returns.
func (e *Engine) Updates() <-chan []domain.Message {
	return e.out
}

// Alerts surfaces snapshot and append failures as single user-visible
// errors. Closed when Run returns.
func (e *Engine) Alerts() <-chan error {
	return e.alerts
}

// SelectRoom switches the engine to a new room. Any in-flight work for the
// previous selection is superseded.
func (e *Engine) SelectRoom(roomID domain.RoomID) {
	e.post(roomSelected{roomID: roomID})
}

// Deselect returns the engine to idle and cancels the live feed.
func (e *Engine) Deselect() {
	e.post(roomDeselected{})
}

// Run is the engine's single logical thread. It returns when ctx is
// cancelled, after closing the live subscription and the output channels.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		e.closeSubscription()
		e.state = StateTornDown
		close(e.done)
		close(e.out)
		close(e.alerts)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev engineEvent) {
	switch ev := ev.(type) {
	case roomSelected:
		e.closeSubscription()
		e.epoch++
		e.roomID = ev.roomID
		e.timeline = nil
		e.frontier = 0
		e.transition(StateLoadingSnapshot)
		e.loadSnapshot(ev.roomID, e.epoch)

	case roomDeselected:
		e.closeSubscription()
		e.epoch++
		e.roomID = ""
		e.timeline = nil
		e.frontier = 0
		e.transition(StateIdle)

	case snapshotLoaded:
		if ev.epoch != e.epoch || e.state != StateLoadingSnapshot {
			// A snapshot for a room that is no longer selected. Discard,
			// never apply.
			return
		}
		if ev.err != nil {
			// Selection stays in loading state: re-selecting the room
			// retries the snapshot.
			e.alert(ev.err)
			return
		}
		if len(ev.messages) > 0 {
			e.timeline = ev.messages
			e.frontier = ev.messages[len(ev.messages)-1].SentAt
			e.transition(StateLive)
			// The live feed starts strictly after the snapshot frontier:
			// nothing is delivered twice, and the feed's replay covers the
			// gap between the snapshot read and the feed's activation.
			e.openSubscription(ctx, e.frontier)
			e.emit(ctx, ev.messages)
		} else {
			// No frontier yet: open the feed unscoped and wait for its
			// first delivery.
			e.transition(StateAwaitingLive)
			e.openSubscription(ctx, 0)
		}

	case liveBatch:
		if ev.epoch != e.epoch {
			return
		}
		batch := above(ev.messages, e.frontier)
		if len(batch) == 0 {
			return
		}
		switch e.state {
		case StateAwaitingLive:
			if len(e.timeline) != 0 {
				// The snapshot path adopted data first; this unscoped
				// delivery would duplicate it.
				return
			}
			e.timeline = batch
			e.frontier = batch[len(batch)-1].SentAt
			// Swap the unscoped feed for a frontier-scoped one before
			// going live.
			e.closeSubscription()
			e.openSubscription(ctx, e.frontier)
			e.transition(StateLive)
			e.emit(ctx, batch)
		case StateLive:
			e.timeline = append(e.timeline, batch...)
			e.frontier = batch[len(batch)-1].SentAt
			e.emit(ctx, batch)
		}
	}
}

// loadSnapshot issues the one-shot history read off the loop goroutine and
// posts the result back with the epoch it was started under.
func (e *Engine) loadSnapshot(roomID domain.RoomID, epoch uint64) {
	go func() {
		messages, err := e.source.History(roomID)
		e.post(snapshotLoaded{epoch: epoch, messages: messages, err: err})
	}()
}

// openSubscription opens the live feed for the current selection. At most
// one subscription is active at a time: callers close the previous one
// first, synchronously, so two feeds never mutate the same timeline.
func (e *Engine) openSubscription(ctx context.Context, sinceExclusive int64) {
	epoch := e.epoch
	e.cancelSub = e.source.Subscribe(ctx, e.roomID, sinceExclusive, func(batch []domain.Message) {
		e.post(liveBatch{epoch: epoch, messages: batch})
	})
}

// closeSubscription cancels the active feed, if any. Idempotent.
func (e *Engine) closeSubscription() {
	if e.cancelSub != nil {
		e.cancelSub()
		e.cancelSub = nil
	}
}

func (e *Engine) transition(next State) {
	e.log.Debug("engine transition", "room", e.roomID, "from", e.state.String(), "to", next.String())
	e.state = next
}

func (e *Engine) emit(ctx context.Context, batch []domain.Message) {
	select {
	case e.out <- batch:
	case <-ctx.Done():
	}
}

func (e *Engine) alert(err error) {
	select {
	case e.alerts <- err:
	default:
		e.log.Warn("alert dropped", "error", err)
	}
}

func (e *Engine) post(ev engineEvent) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// above keeps messages with SentAt strictly greater than the bound,
// preserving order.
func above(messages []domain.Message, bound int64) []domain.Message {
	var out []domain.Message
	for _, msg := range messages {
		if msg.SentAt > bound {
			out = append(out, msg)
		}
	}
	return out
}
