package kds

import (
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

func TestBroadcasterRejectsUnknownEventType(t *testing.T) {
	b := NewBroadcaster(0, nil, nil)

	if _, err := b.Subscribe("ticket_upadte", func(Event) {}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("typo'd event type should be rejected, got %v", err)
	}
	if _, err := b.Subscribe(event.EventTicketUpdate, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil subscriber should be rejected, got %v", err)
	}
}

func TestBroadcasterDeliversByType(t *testing.T) {
	b := NewBroadcaster(0, nil, nil)

	var updates, alerts int
	if _, err := b.Subscribe(event.EventTicketUpdate, func(Event) { updates++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Subscribe(event.EventSystemAlert, func(Event) { alerts++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(Event{Type: event.EventTicketUpdate})
	b.Publish(Event{Type: event.EventTicketUpdate})
	b.Publish(Event{Type: event.EventSystemAlert})

	if updates != 2 {
		t.Errorf("ticket_update subscriber called %d times, want 2", updates)
	}
	if alerts != 1 {
		t.Errorf("system_alert subscriber called %d times, want 1", alerts)
	}
}

func TestBroadcasterUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(0, nil, nil)

	var calls int
	unsub, err := b.Subscribe(event.EventTicketUpdate, func(Event) { calls++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var other int
	if _, err := b.Subscribe(event.EventTicketUpdate, func(Event) { other++ }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(Event{Type: event.EventTicketUpdate})
	unsub()
	unsub()
	b.Publish(Event{Type: event.EventTicketUpdate})

	if calls != 1 {
		t.Errorf("unsubscribed callback called %d times, want 1", calls)
	}
	if other != 2 {
		t.Errorf("surviving subscriber called %d times, want 2", other)
	}
}

func TestBroadcasterUnsubscribeFromWithinCallback(t *testing.T) {
	b := NewBroadcaster(0, nil, nil)

	var calls int
	var unsub UnsubscribeFunc
	unsub, err := b.Subscribe(event.EventTicketUpdate, func(Event) {
		calls++
		unsub()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(Event{Type: event.EventTicketUpdate})
	b.Publish(Event{Type: event.EventTicketUpdate})

	if calls != 1 {
		t.Errorf("self-unsubscribing callback called %d times, want 1", calls)
	}
}

func TestBroadcasterCachesSnapshots(t *testing.T) {
	b := NewBroadcaster(0, nil, nil)

	ticket := &Ticket{ID: uuid.New(), Station: "grill", Status: "pending"}
	order := &Order{ID: uuid.New(), Number: "7", Status: "pending"}
	b.Publish(Event{Type: event.EventNewOrder, Ticket: ticket, Order: order})

	if got := b.CachedTicket(ticket.ID); got == nil || got.ID != ticket.ID {
		t.Error("ticket snapshot not cached")
	}
	if got := b.CachedOrder(order.ID); got == nil || got.ID != order.ID {
		t.Error("order snapshot not cached")
	}
	if got := b.CachedTicket(uuid.New()); got != nil {
		t.Error("unknown ticket should read as nil")
	}

	b.Evict(ticket.ID)
	if got := b.CachedTicket(ticket.ID); got != nil {
		t.Error("evicted ticket still cached")
	}
}

func TestBroadcasterStaleness(t *testing.T) {
	clock := newTestClock()
	b := NewBroadcaster(time.Minute, clock.Now, nil)

	if !b.Stale() {
		t.Error("broadcaster with no writes should be stale")
	}

	b.Publish(Event{Type: event.EventTicketUpdate})
	if b.Stale() {
		t.Error("fresh write should clear staleness")
	}

	clock.Advance(59 * time.Second)
	if b.Stale() {
		t.Error("write within max age should not be stale")
	}

	clock.Advance(2 * time.Second)
	if !b.Stale() {
		t.Error("write older than max age should be stale")
	}

	// Cached data stays readable while stale.
	b.SetMetrics(&Metrics{TotalActiveTickets: 3})
	if b.Stale() {
		t.Error("metrics write should refresh staleness")
	}
	if got := b.CachedMetrics(); got == nil || got.TotalActiveTickets != 3 {
		t.Error("metrics snapshot not readable")
	}
}
