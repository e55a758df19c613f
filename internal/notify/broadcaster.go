package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind is dropped rather than allowed to block the engine.
const subscriberBuffer = 16

// Broadcaster is an in-process fan-out of proposal events, keyed by trip.
// It backs the SSE endpoint in the handler package. Publish never blocks:
// events to slow subscribers are abandoned and the subscriber is closed, in
// keeping with the at-least-once, best-effort delivery contract.
type Broadcaster struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{} // tripID → subscriber set
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger: logger,
		subs:   make(map[uuid.UUID]map[chan Event]struct{}),
	}
}

// Publish delivers the event to every subscriber of its trip.
// Subscribers whose buffers are full are closed and removed.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.TripID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping slow event subscriber",
				"trip_id", event.TripID,
				"kind", event.Kind,
			)
			b.remove(event.TripID, ch)
		}
	}
}

// Subscribe registers a new subscriber for a trip's events. The returned
// cancel function unsubscribes and closes the channel; it is safe to call
// more than once.
func (b *Broadcaster) Subscribe(tripID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[tripID] == nil {
		b.subs[tripID] = make(map[chan Event]struct{})
	}
	b.subs[tripID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[tripID][ch]; ok {
			b.remove(tripID, ch)
		}
	}
	return ch, cancel
}

// remove deletes and closes a subscriber. Caller must hold mu.
func (b *Broadcaster) remove(tripID uuid.UUID, ch chan Event) {
	delete(b.subs[tripID], ch)
	if len(b.subs[tripID]) == 0 {
		delete(b.subs, tripID)
	}
	close(ch)
}
