package kds

import (
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/event"
)

const DefaultCacheMaxAge = 5 * time.Minute

// Event is the in-process change notification handed to display
// subscribers. Ticket and Order carry snapshots, never live pointers.
type Event struct {
	Type       string
	OccurredAt time.Time
	Ticket     *Ticket
	Order      *Order
	// Tickets carries the full cut on new_order, so persistence sees
	// every ticket before its first transition.
	Tickets []*Ticket
	// Previous is the ticket status before the transition, when one applies.
	Previous string
	// Message carries system_alert text.
	Message string
}

type Subscriber func(Event)

// UnsubscribeFunc removes a registration. Safe to call multiple times
// and from within a subscriber callback.
type UnsubscribeFunc func()

type subscription struct {
	id int
	fn Subscriber
}

// Broadcaster owns the per-event-type subscriber registry and a bounded
// snapshot cache of the last known orders, tickets and metrics. The
// cache turns stale when no write lands within maxAge, which displays
// surface as a "reconnecting" banner instead of dropping their data.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string][]subscription
	nextSubID int

	cacheMu   sync.RWMutex
	orders    map[OrderID]*Order
	tickets   map[TicketID]*Ticket
	metrics   *Metrics
	lastWrite time.Time
	maxAge    time.Duration

	clock  func() time.Time
	logger apt.Logger
}

func NewBroadcaster(maxAge time.Duration, clock func() time.Time, logger apt.Logger) *Broadcaster {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Broadcaster{
		subs:    make(map[string][]subscription),
		orders:  make(map[OrderID]*Order),
		tickets: make(map[TicketID]*Ticket),
		maxAge:  maxAge,
		clock:   clock,
		logger:  logger,
	}
}

// Subscribe registers a callback for one event type. Unknown types are
// rejected so a typo does not register a subscriber nothing will invoke.
func (b *Broadcaster) Subscribe(eventType string, fn Subscriber) (UnsubscribeFunc, error) {
	if !knownEventType(eventType) {
		return nil, ErrInvalidArgument
	}
	if fn == nil {
		return nil, ErrInvalidArgument
	}

	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subs[eventType] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Publish synchronously invokes every subscriber registered for the
// event's type. Dispatch iterates a copied slice, so a callback that
// unsubscribes (itself or another subscriber) cannot invalidate the
// iteration.
func (b *Broadcaster) Publish(evt Event) {
	b.recordWrite(evt)

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[evt.Type]))
	copy(subs, b.subs[evt.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(evt)
	}
}

func (b *Broadcaster) recordWrite(evt Event) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()

	b.lastWrite = b.clock()
	if evt.Ticket != nil {
		b.tickets[evt.Ticket.ID] = evt.Ticket
	}
	for _, t := range evt.Tickets {
		b.tickets[t.ID] = t
	}
	if evt.Order != nil {
		b.orders[evt.Order.ID] = evt.Order
	}
}

// SetMetrics refreshes the cached metrics snapshot.
func (b *Broadcaster) SetMetrics(m *Metrics) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	b.metrics = m
	b.lastWrite = b.clock()
}

// CachedTicket returns the last snapshot broadcast for a ticket, or nil.
func (b *Broadcaster) CachedTicket(id TicketID) *Ticket {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	return b.tickets[id]
}

// CachedOrder returns the last snapshot broadcast for an order, or nil.
func (b *Broadcaster) CachedOrder(id OrderID) *Order {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	return b.orders[id]
}

// CachedMetrics returns the last metrics snapshot, or nil.
func (b *Broadcaster) CachedMetrics() *Metrics {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	return b.metrics
}

// Stale reports whether no write has landed within the configured
// max age. Cached data stays readable while stale; it is simply marked
// re-synchronizable.
func (b *Broadcaster) Stale() bool {
	b.cacheMu.RLock()
	defer b.cacheMu.RUnlock()
	if b.lastWrite.IsZero() {
		return true
	}
	return b.clock().Sub(b.lastWrite) > b.maxAge
}

// Evict drops a ticket snapshot, for cancelled orders.
func (b *Broadcaster) Evict(id TicketID) {
	b.cacheMu.Lock()
	defer b.cacheMu.Unlock()
	delete(b.tickets, id)
}

func knownEventType(t string) bool {
	for _, known := range event.Types() {
		if t == known {
			return true
		}
	}
	return false
}
