// File: internal/services/chat/engine.go
package chat

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
)

// Engine folds the snapshot streams of several physical rooms into one
// logical timeline keyed by composite identifier. It is owned by exactly one
// screen instance: Open starts the subscriptions, Close releases them, and
// the merged (unfiltered) timeline is re-emitted on Merged after every
// upstream change.
//
// The merge map never evicts: a document hard-deleted at the source would
// stay visible until the engine is re-opened. Rooms only ever tombstone, so
// this is a stated precondition, not a recovery path.
type Engine struct {
	store  docstore.Store
	rooms  []RoomKey
	logger Logger

	mu     sync.Mutex
	merged map[string]domain.Message
	subs   []docstore.Subscription
	opened bool
	closed bool

	out chan []domain.Message
}

type snapshotEvent struct {
	room RoomKey
	docs []docstore.Document
}

func NewEngine(store docstore.Store, rooms []RoomKey, logger Logger) *Engine {
	return &Engine{
		store:  store,
		rooms:  append([]RoomKey(nil), rooms...),
		logger: logger,
		merged: map[string]domain.Message{},
		out:    make(chan []domain.Message, 1),
	}
}

// Merged delivers the consolidated, deduplicated, time-ordered timeline
// before visibility filtering. Delivery conflates: a slow consumer always
// observes the latest merge result. The channel closes after Close.
func (e *Engine) Merged() <-chan []domain.Message { return e.out }

// Open subscribes to every room and starts the merge loop. The first room
// is the canonical one and must subscribe successfully; a legacy room that
// fails to subscribe is logged and skipped; its history simply stays
// unavailable until the screen is re-mounted.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	if e.opened || e.closed {
		e.mu.Unlock()
		return NewValidationError("engine_open", "engine already opened")
	}
	if len(e.rooms) == 0 {
		e.mu.Unlock()
		return NewValidationError("engine_open", "at least one room is required")
	}
	e.opened = true
	e.mu.Unlock()

	events := make(chan snapshotEvent, len(e.rooms))
	var wg sync.WaitGroup

	for i, room := range e.rooms {
		sub, err := e.store.Subscribe(ctx, string(room), fieldCreatedAt, true)
		if err != nil {
			if i == 0 {
				e.closeSubs()
				return NewStoreError("engine_open", "cannot subscribe to canonical room "+string(room), err)
			}
			e.logger.Warn("legacy room subscription failed, continuing without it",
				"room", string(room), "error", err.Error())
			continue
		}

		e.mu.Lock()
		e.subs = append(e.subs, sub)
		e.mu.Unlock()

		wg.Add(1)
		go func(room RoomKey, sub docstore.Subscription) {
			defer wg.Done()
			for snap := range sub.Snapshots() {
				events <- snapshotEvent{room: room, docs: snap.Documents}
			}
			if err := sub.Err(); err != nil {
				// No automatic resubscription: the room stream simply
				// stops updating until the screen is re-mounted.
				e.logger.Warn("room stream ended with error", "room", string(room), "error", err.Error())
			}
		}(room, sub)
	}

	go func() {
		wg.Wait()
		close(events)
	}()

	go e.run(events)
	return nil
}

func (e *Engine) run(events <-chan snapshotEvent) {
	for ev := range events {
		changed, size := e.upsert(ev)
		// Republish even without a field change while the map is
		// non-empty, so the first subscriber render is never skipped.
		if changed || size > 0 {
			e.publish()
		}
	}
	close(e.out)
}

// upsert replaces the merge-map record for every document in the snapshot.
// The snapshot is authoritative for its documents at this moment, so the
// record is fully rebuilt rather than patched.
func (e *Engine) upsert(ev snapshotEvent) (changed bool, size int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, doc := range ev.docs {
		msg := decodeMessage(ev.room, doc)
		key := msg.CompositeID()
		if old, ok := e.merged[key]; !ok || !old.Equal(msg) {
			e.merged[key] = msg
			changed = true
		}
	}
	return changed, len(e.merged)
}

func (e *Engine) publish() {
	timeline := e.Timeline()
	select {
	case e.out <- timeline:
	default:
		select {
		case <-e.out:
		default:
		}
		e.out <- timeline
	}
}

// Timeline returns the current merged view, sorted ascending by creation
// time. Messages the store has not yet timestamped sort after all
// timestamped ones; ties break by composite id for deterministic rendering.
func (e *Engine) Timeline() []domain.Message {
	e.mu.Lock()
	timeline := make([]domain.Message, 0, len(e.merged))
	for _, msg := range e.merged {
		timeline = append(timeline, msg)
	}
	e.mu.Unlock()

	sort.SliceStable(timeline, func(i, j int) bool {
		a, b := timeline[i].CreatedAt, timeline[j].CreatedAt
		if (a == nil) != (b == nil) {
			return b == nil
		}
		if a != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return timeline[i].CompositeID() < timeline[j].CompositeID()
	})
	return timeline
}

// Get looks up one merged message by composite id.
func (e *Engine) Get(compositeID string) (domain.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.merged[compositeID]
	return msg, ok
}

// Close unsubscribes every room. A failing unsubscribe never prevents the
// remaining rooms from being unsubscribed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.closeSubs()
}

func (e *Engine) closeSubs() error {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
