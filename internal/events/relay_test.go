package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

func newRelayFixture(t *testing.T) (*kds.Engine, *MockOrderRepo, *MockTicketRepo, *MockPublisher, *Relay) {
	t.Helper()
	engine := kds.NewEngine(kds.EngineDeps{}, apt.NewNoopLogger())
	orders := NewMockOrderRepo()
	tickets := NewMockTicketRepo()
	publisher := NewMockPublisher()
	relay := NewRelay(engine, publisher, &MockSubscriber{}, orders, tickets, apt.NewNoopLogger())
	return engine, orders, tickets, publisher, relay
}

func placeTestOrder(t *testing.T, engine *kds.Engine) (*kds.Order, []*kds.Ticket) {
	t.Helper()
	order, ticketSet, err := engine.PlaceOrder(&kds.Order{
		Number:      "301",
		TableNumber: "4",
		ServerName:  "dana",
		Items: []kds.OrderItem{
			{Name: "Burger", Quantity: 1, CookTime: 8},
			{Name: "Fries", Quantity: 1, CookTime: 5},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	return order, ticketSet
}

func TestNewRelay(t *testing.T) {
	engine := kds.NewEngine(kds.EngineDeps{}, nil)

	tests := []struct {
		name   string
		logger apt.Logger
	}{
		{name: "withLogger", logger: apt.NewNoopLogger()},
		{name: "withNilLogger", logger: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRelay(engine, NewMockPublisher(), &MockSubscriber{}, nil, nil, tt.logger)
			if r == nil {
				t.Error("NewRelay() returned nil")
			}
		})
	}
}

func TestRelayWarm(t *testing.T) {
	engine, orders, tickets, _, relay := newRelayFixture(t)

	orderID := uuid.New()
	ticketID := uuid.New()
	orders.AddOrder(&kds.Order{ID: orderID, Number: "401", Status: "preparing", Priority: "normal"})
	tickets.AddTicket(&kds.Ticket{ID: ticketID, OrderID: orderID, Station: "grill", Status: "preparing"})

	if err := relay.Warm(context.Background()); err != nil {
		t.Fatalf("Warm: %v", err)
	}

	if _, err := engine.GetOrder(orderID); err != nil {
		t.Errorf("order not restored: %v", err)
	}
	if _, err := engine.GetTicket(ticketID); err != nil {
		t.Errorf("ticket not restored: %v", err)
	}
}

func TestRelayWarmWithoutRepos(t *testing.T) {
	engine := kds.NewEngine(kds.EngineDeps{}, nil)
	relay := NewRelay(engine, nil, nil, nil, nil, nil)

	if err := relay.Warm(context.Background()); err != nil {
		t.Errorf("Warm without repos should be a no-op, got %v", err)
	}
}

func TestRelayPublishesEngineEvents(t *testing.T) {
	engine, _, _, publisher, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop(ctx)

	order, _ := placeTestOrder(t, engine)

	published := publisher.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
	if published[0].Topic != event.KDSTopic {
		t.Errorf("topic = %q, want %q", published[0].Topic, event.KDSTopic)
	}

	var wire event.OrderEvent
	if err := json.Unmarshal(published[0].Data, &wire); err != nil {
		t.Fatalf("published payload is not an order event: %v", err)
	}
	if wire.EventType != event.EventNewOrder {
		t.Errorf("event type = %q, want new_order", wire.EventType)
	}
	if wire.OrderID != order.ID.String() {
		t.Errorf("order id = %q, want %q", wire.OrderID, order.ID)
	}
	if wire.Source == "" {
		t.Error("published event carries no source tag")
	}
	if wire.OrderNumber != "301" {
		t.Errorf("order number = %q, want 301", wire.OrderNumber)
	}
	if wire.TicketCount != 2 {
		t.Errorf("ticket count = %d, want 2", wire.TicketCount)
	}
}

func TestRelayPublishesTicketTransitions(t *testing.T) {
	engine, _, _, publisher, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop(ctx)

	_, ticketSet := placeTestOrder(t, engine)
	if _, err := engine.Bump(ticketSet[0].ID); err != nil {
		t.Fatalf("Bump: %v", err)
	}

	published := publisher.Published()
	if len(published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(published))
	}

	var wire event.TicketEvent
	if err := json.Unmarshal(published[1].Data, &wire); err != nil {
		t.Fatalf("published payload is not a ticket event: %v", err)
	}
	if wire.EventType != event.EventTicketUpdate {
		t.Errorf("event type = %q, want ticket_update", wire.EventType)
	}
	if wire.NewStatus != "completed" || wire.PreviousStatus != "pending" {
		t.Errorf("status transition = %q -> %q, want pending -> completed", wire.PreviousStatus, wire.NewStatus)
	}
	if wire.TicketID != ticketSet[0].ID.String() {
		t.Errorf("ticket id = %q, want %q", wire.TicketID, ticketSet[0].ID)
	}
	if wire.CompletedAt == nil {
		t.Error("completed ticket event carries no completion time")
	}
}

func TestRelayPersistsSnapshots(t *testing.T) {
	engine, orders, tickets, _, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop(ctx)

	order, ticketSet := placeTestOrder(t, engine)
	if _, err := engine.Bump(ticketSet[0].ID); err != nil {
		t.Fatalf("Bump: %v", err)
	}

	if got := orders.Get(order.ID); got == nil {
		t.Error("order not persisted")
	}
	// Placement persists the whole cut, before any transition.
	for _, tk := range ticketSet {
		if tickets.Get(tk.ID) == nil {
			t.Errorf("placed ticket %s not persisted", tk.ID)
		}
	}
	persisted := tickets.Get(ticketSet[0].ID)
	if persisted == nil {
		t.Fatal("bumped ticket not persisted")
	}
	if persisted.Status != "completed" {
		t.Errorf("persisted ticket status = %q, want completed", persisted.Status)
	}
}

func TestRelayDeletesTicketsOnCancel(t *testing.T) {
	engine, orders, tickets, _, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop(ctx)

	order, ticketSet := placeTestOrder(t, engine)
	if _, err := engine.Cancel(order.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	persisted := orders.Get(order.ID)
	if persisted == nil || persisted.Status != "cancelled" {
		t.Error("cancelled order not persisted as cancelled")
	}
	for _, tk := range ticketSet {
		if tickets.Get(tk.ID) != nil {
			t.Errorf("ticket %s survived its order's cancellation", tk.ID)
		}
	}
}

// TestRelayUpsertCreatesBrandNewRecords routes the mock's not-found
// miss through the same bounded retry the mongo adapters use, so it
// proves the miss keeps its kind end to end and first writes fall
// through to Create.
func TestRelayUpsertCreatesBrandNewRecords(t *testing.T) {
	_, orders, tickets, _, relay := newRelayFixture(t)
	ctx := context.Background()

	orderCreates := 0
	orders.UpdateFunc = func(ctx context.Context, o *kds.Order) error {
		return kds.WithRetry(ctx, func(context.Context) error {
			return fmt.Errorf("%w: order %s", kds.ErrNotFound, o.ID)
		})
	}
	orders.CreateFunc = func(context.Context, *kds.Order) error {
		orderCreates++
		return nil
	}
	if err := relay.upsertOrder(ctx, &kds.Order{ID: uuid.New()}); err != nil {
		t.Fatalf("upsertOrder: %v", err)
	}
	if orderCreates != 1 {
		t.Errorf("order Create called %d times, want 1", orderCreates)
	}

	ticketCreates := 0
	tickets.UpdateFunc = func(ctx context.Context, tk *kds.Ticket) error {
		return kds.WithRetry(ctx, func(context.Context) error {
			return fmt.Errorf("%w: ticket %s", kds.ErrNotFound, tk.ID)
		})
	}
	tickets.CreateFunc = func(context.Context, *kds.Ticket) error {
		ticketCreates++
		return nil
	}
	if err := relay.upsertTicket(ctx, &kds.Ticket{ID: uuid.New()}); err != nil {
		t.Fatalf("upsertTicket: %v", err)
	}
	if ticketCreates != 1 {
		t.Errorf("ticket Create called %d times, want 1", ticketCreates)
	}
}

func TestRelayUpsertDoesNotCreateWhenBackendDown(t *testing.T) {
	_, orders, _, _, relay := newRelayFixture(t)

	orders.UpdateFunc = func(ctx context.Context, o *kds.Order) error {
		return fmt.Errorf("%w: mongo down", kds.ErrUnavailable)
	}
	orders.CreateFunc = func(context.Context, *kds.Order) error {
		t.Error("Create attempted while the backend is down")
		return nil
	}
	err := relay.upsertOrder(context.Background(), &kds.Order{ID: uuid.New()})
	if !errors.Is(err, kds.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestRelayResyncAdmitsSiblingOrders(t *testing.T) {
	// The sibling instance placed an order and persisted it; only a
	// repository scan can surface it here, order payloads are not
	// pushed over the wire.
	sibling := kds.NewEngine(kds.EngineDeps{}, apt.NewNoopLogger())
	order, ticketSet, err := sibling.PlaceOrder(&kds.Order{
		Number:      "302",
		TableNumber: "7",
		ServerName:  "maya",
		Items: []kds.OrderItem{
			{Name: "Caesar Salad", Quantity: 1, CookTime: 4},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	engine, orders, tickets, _, relay := newRelayFixture(t)
	orders.AddOrder(order)
	for _, tk := range ticketSet {
		tickets.AddTicket(tk)
	}

	relay.resync(context.Background())

	if _, err := engine.GetOrder(order.ID); err != nil {
		t.Fatalf("resynced order not live: %v", err)
	}
	for _, tk := range ticketSet {
		if _, err := engine.GetTicket(tk.ID); err != nil {
			t.Errorf("resynced ticket not live: %v", err)
		}
	}

	// Another pass over unchanged persistence admits nothing new.
	relay.resync(context.Background())
	if live := engine.ListTickets(kds.TicketFilter{}); len(live) != len(ticketSet) {
		t.Errorf("repeat resync duplicated tickets: %d live", len(live))
	}
}

func TestRelayResyncSurvivesListFailure(t *testing.T) {
	engine, orders, _, _, relay := newRelayFixture(t)
	orders.ListFunc = func(context.Context, kds.OrderFilter) ([]kds.Order, error) {
		return nil, fmt.Errorf("%w: mongo down", kds.ErrUnavailable)
	}

	relay.resync(context.Background())

	if live := engine.ListTickets(kds.TicketFilter{}); len(live) != 0 {
		t.Errorf("failed resync mutated the engine: %d tickets", len(live))
	}
}

func TestRelayHandleRemoteAppliesTicketEvent(t *testing.T) {
	engine, _, _, _, relay := newRelayFixture(t)
	_, ticketSet := placeTestOrder(t, engine)

	payload, _ := json.Marshal(event.TicketEvent{
		Metadata: event.Metadata{
			EventType: event.EventTicketUpdate,
			Source:    "sibling-instance",
			TicketID:  ticketSet[0].ID.String(),
		},
		NewStatus: "completed",
	})

	if err := relay.handleRemote(context.Background(), payload); err != nil {
		t.Fatalf("handleRemote: %v", err)
	}

	got, _ := engine.GetTicket(ticketSet[0].ID)
	if got.Status != "completed" {
		t.Errorf("remote bump not applied: status = %q", got.Status)
	}

	// Redelivery is a no-op.
	if err := relay.handleRemote(context.Background(), payload); err != nil {
		t.Errorf("duplicate delivery surfaced an error: %v", err)
	}
}

func TestRelayHandleRemoteSkipsOwnEcho(t *testing.T) {
	engine, _, _, _, relay := newRelayFixture(t)
	_, ticketSet := placeTestOrder(t, engine)

	payload, _ := json.Marshal(event.TicketEvent{
		Metadata: event.Metadata{
			EventType: event.EventTicketUpdate,
			Source:    relay.source,
			TicketID:  ticketSet[0].ID.String(),
		},
		NewStatus: "completed",
	})

	if err := relay.handleRemote(context.Background(), payload); err != nil {
		t.Fatalf("handleRemote: %v", err)
	}

	got, _ := engine.GetTicket(ticketSet[0].ID)
	if got.Status != "pending" {
		t.Errorf("own echo mutated the engine: status = %q", got.Status)
	}
}

func TestRelayHandleRemoteIgnoresNoise(t *testing.T) {
	_, _, _, _, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.handleRemote(ctx, []byte("{not json")); err != nil {
		t.Errorf("malformed payload should not error, got %v", err)
	}

	orderPayload, _ := json.Marshal(event.OrderEvent{
		Metadata: event.Metadata{EventType: event.EventNewOrder, Source: "sibling-instance"},
	})
	if err := relay.handleRemote(ctx, orderPayload); err != nil {
		t.Errorf("order-level event should be ignored, got %v", err)
	}

	emptyTicket, _ := json.Marshal(event.TicketEvent{
		Metadata: event.Metadata{EventType: event.EventTicketUpdate, Source: "sibling-instance"},
	})
	if err := relay.handleRemote(ctx, emptyTicket); err != nil {
		t.Errorf("ticket event without ticket id should be ignored, got %v", err)
	}
}

func TestRelayReplayAppliesRetainedEvents(t *testing.T) {
	engine, _, _, _, relay := newRelayFixture(t)
	_, ticketSet := placeTestOrder(t, engine)

	bump, _ := json.Marshal(event.TicketEvent{
		Metadata: event.Metadata{
			EventType: event.EventTicketUpdate,
			Source:    "pre-restart-instance",
			TicketID:  ticketSet[0].ID.String(),
		},
		NewStatus: "completed",
	})
	fetcher := &MockStreamFetcher{Messages: []aptevents.StreamMessage{
		{Data: []byte("{not json"), Sequence: 1},
		{Data: bump, Sequence: 2},
		{Data: bump, Sequence: 3},
	}}

	if err := relay.Replay(context.Background(), fetcher); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	got, _ := engine.GetTicket(ticketSet[0].ID)
	if got.Status != "completed" {
		t.Errorf("retained bump not applied: status = %q", got.Status)
	}
}

func TestRelayReplayFetchError(t *testing.T) {
	_, _, _, _, relay := newRelayFixture(t)
	fetcher := &MockStreamFetcher{
		FetchFunc: func(context.Context, int) ([]aptevents.StreamMessage, error) {
			return nil, errors.New("stream offline")
		},
	}
	if err := relay.Replay(context.Background(), fetcher); err == nil {
		t.Error("expected error when fetch fails")
	}
}

func TestRelayStopDetachesFromEngine(t *testing.T) {
	engine, _, _, publisher, relay := newRelayFixture(t)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := relay.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	placeTestOrder(t, engine)
	if got := publisher.Published(); len(got) != 0 {
		t.Errorf("stopped relay still published %d events", len(got))
	}
}

func TestRelaySubscribesToTopic(t *testing.T) {
	engine := kds.NewEngine(kds.EngineDeps{}, nil)
	sub := &MockSubscriber{}
	relay := NewRelay(engine, NewMockPublisher(), sub, nil, nil, nil)
	ctx := context.Background()

	if err := relay.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer relay.Stop(ctx)

	if sub.Topic != event.KDSTopic {
		t.Errorf("subscribed topic = %q, want %q", sub.Topic, event.KDSTopic)
	}
	if sub.Handler == nil {
		t.Error("no handler registered with the subscriber")
	}
}
