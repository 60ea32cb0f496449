// Package events carries progress out of the pipeline without coupling
// stages to any output surface.
//
// One producer at a time emits onto the Bus; any number of subscribers
// read. Emission never blocks: each subscriber owns a bounded ring, and a
// subscriber that falls behind loses its oldest events and is told how
// many. The console sink and the WebSocket hub are both just subscribers.
package events

import (
	"sync"
	"time"
)

// Severity of a progress event.
type Severity string

// Severities, roughly in increasing order of operator attention.
const (
	LevelInfo    Severity = "info"
	LevelWarn    Severity = "warning"
	LevelError   Severity = "error"
	LevelSuccess Severity = "success"
)

// Event is an immutable progress record. Percent is derived from
// Current/Total when Total is nonzero.
type Event struct {
	Stage       string         `json:"stage"`
	CurrentItem string         `json:"current_item,omitempty"`
	Current     int            `json:"progress_current"`
	Total       int            `json:"progress_total"`
	Percent     float64        `json:"percent"`
	Level       Severity       `json:"level"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DefaultRingSize is the per-subscriber buffer depth.
const DefaultRingSize = 256

// Bus fans events out to subscribers. The zero value is not usable; call
// NewBus.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	ring int
}

// NewBus returns a bus whose subscribers buffer ringSize events each.
// ringSize <= 0 selects DefaultRingSize.
func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		ring: ringSize,
	}
}

// Subscription is one consumer's bounded view of the bus.
type Subscription struct {
	bus *Bus

	mu      sync.Mutex
	buf     []Event
	head    int // index of oldest buffered event
	n       int // buffered count
	dropped uint64
	closed  bool
	wake    chan struct{}
}

// Subscribe registers a new consumer. The consumer must call Close when
// done or the bus retains it forever.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:  b,
		buf:  make([]Event, b.ring),
		wake: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Emit delivers ev to every subscriber without blocking. A full
// subscriber ring overwrites its oldest event and counts the loss.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Total > 0 && ev.Percent == 0 {
		ev.Percent = 100 * float64(ev.Current) / float64(ev.Total)
	}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(ev)
	}
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.n == len(s.buf) {
		// Overwrite the oldest event.
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.dropped++
	}
	s.buf[(s.head+s.n)%len(s.buf)] = ev
	s.n++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next returns the oldest buffered event. ok is false when the
// subscription is closed and drained.
func (s *Subscription) Next() (ev Event, ok bool) {
	for {
		s.mu.Lock()
		if s.n > 0 {
			ev = s.buf[s.head]
			s.head = (s.head + 1) % len(s.buf)
			s.n--
			s.mu.Unlock()
			return ev, true
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

// TryNext is the non-blocking form of Next.
func (s *Subscription) TryNext() (ev Event, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return Event{}, false
	}
	ev = s.buf[s.head]
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return ev, true
}

// Dropped reports how many events this subscriber has lost to overwrite.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription from the bus. Buffered events remain
// readable via Next until drained.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
