package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"
)

// Handler receives lifecycle events. Delivery is at-least-once and
// order-preserving per subscriber; handlers deduplicate on workflow id plus
// sequence if they replay.
type Handler func(ev domain.Event)

// EventLog is the durable mirror every publish is appended to, so observers
// in other execution contexts can resynchronize by replaying since their
// last seen sequence.
type EventLog interface {
	Append(ev *domain.Event) error
	FindSince(since int64, limit int) ([]domain.Event, error)
	MaxSequence() (int64, error)
	TrimBefore(sequence int64) error
}

type subscriber struct {
	id         int
	queue      []domain.Event
	cond       *sync.Cond
	closed     bool
	checkpoint int64 // highest sequence handled, guarded by cond.L
	handler    Handler
}

// Bus fans workflow lifecycle events out to in-process subscribers and
// mirrors each publish to the durable event log. Sequence numbers are
// strictly monotonic; the last ringSize events are kept in memory so a
// late-joining observer usually replays without touching the database.
type Bus struct {
	mu       sync.Mutex
	seq      int64
	ring     []domain.Event
	ringSize int
	subs     map[int]*subscriber
	nextSub  int
	log      EventLog
	clock    core.Clock
}

// New creates a bus holding the last ringSize events in memory. The event
// log may be nil, in which case replay is bounded by the ring. The sequence
// resumes after the highest durable entry; starting below it would make
// every mirrored append collide with an existing row, so a log that cannot
// report its max sequence is an error.
func New(ringSize int, log EventLog, clock core.Clock) (*Bus, error) {
	if ringSize <= 0 {
		ringSize = 100
	}
	b := &Bus{
		ringSize: ringSize,
		subs:     make(map[int]*subscriber),
		log:      log,
		clock:    clock,
	}
	if log != nil {
		max, err := log.MaxSequence()
		if err != nil {
			return nil, fmt.Errorf("reading event log max sequence: %w", err)
		}
		b.seq = max
	}
	return b, nil
}

// Publish assigns the next sequence number, stamps the event, mirrors it to
// the durable log and queues it for every subscriber.
func (b *Bus) Publish(ev domain.Event) domain.Event {
	b.mu.Lock()
	b.seq++
	ev.Sequence = b.seq
	ev.Timestamp = b.clock.Now()

	b.ring = append(b.ring, ev)
	if len(b.ring) > b.ringSize {
		b.ring = b.ring[len(b.ring)-b.ringSize:]
	}

	if b.log != nil {
		if err := b.log.Append(&ev); err != nil {
			slog.Error("Failed to append event to durable log", "sequence", ev.Sequence, "error", err)
		}
	}

	for _, s := range b.subs {
		s.cond.L.Lock()
		s.queue = append(s.queue, ev)
		s.cond.Signal()
		s.cond.L.Unlock()
	}
	b.mu.Unlock()
	return ev
}

// Subscribe registers a handler and returns its unsubscribe function.
// Events published after the subscription are delivered in order on a
// dedicated goroutine, so a slow handler never blocks publishers or other
// subscribers.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	s := &subscriber{
		id:         id,
		cond:       sync.NewCond(&sync.Mutex{}),
		handler:    handler,
		checkpoint: b.seq,
	}
	b.subs[id] = s
	b.mu.Unlock()

	go s.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		s.cond.L.Lock()
		s.closed = true
		s.cond.Signal()
		s.cond.L.Unlock()
	}
}

func (s *subscriber) run() {
	for {
		s.cond.L.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.cond.L.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.cond.L.Unlock()

		s.handler(ev)

		s.cond.L.Lock()
		if ev.Sequence > s.checkpoint {
			s.checkpoint = ev.Sequence
		}
		s.cond.L.Unlock()
	}
}

// ReplaySince returns the events with sequence strictly greater than since,
// in order. The in-memory ring answers when it still covers the requested
// range; otherwise the durable log does.
func (b *Bus) ReplaySince(since int64) ([]domain.Event, error) {
	b.mu.Lock()
	if len(b.ring) > 0 && b.ring[0].Sequence <= since+1 {
		var out []domain.Event
		for _, ev := range b.ring {
			if ev.Sequence > since {
				out = append(out, ev)
			}
		}
		b.mu.Unlock()
		return out, nil
	}
	log := b.log
	seq := b.seq
	b.mu.Unlock()

	if log == nil {
		return nil, nil
	}
	limit := int(seq - since)
	if limit <= 0 {
		return nil, nil
	}
	return log.FindSince(since, limit)
}

// Sequence returns the sequence number of the most recently published event.
func (b *Bus) Sequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Trim removes durable log entries every live subscriber has already
// handled. Entries newer than the oldest subscriber checkpoint are never
// touched; with no subscribers the current sequence is the bound.
func (b *Bus) Trim() error {
	if b.log == nil {
		return nil
	}
	b.mu.Lock()
	oldest := b.seq
	for _, s := range b.subs {
		s.cond.L.Lock()
		if s.checkpoint < oldest {
			oldest = s.checkpoint
		}
		s.cond.L.Unlock()
	}
	b.mu.Unlock()
	return b.log.TrimBefore(oldest + 1)
}
