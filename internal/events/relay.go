package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

const (
	HeartbeatInterval = 30 * time.Second
	PollInterval      = 5 * time.Second
)

// Relay connects the engine's in-process broadcaster to the outside
// world: every engine event is persisted and published to NATS, remote
// events from sibling instances feed back in through the idempotent
// ApplyEvent path, and two background loops cover heartbeat and the
// polling fallback. Transport loss never mutates engine state; the
// broadcaster cache simply goes stale until events flow again.
type Relay struct {
	engine     *kds.Engine
	publisher  aptevents.Publisher
	subscriber aptevents.Subscriber
	orders     kds.OrderRepository
	tickets    kds.TicketRepository
	logger     apt.Logger

	// source tags published events so this relay skips its own echoes.
	source string

	unsubs []kds.UnsubscribeFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRelay(
	engine *kds.Engine,
	publisher aptevents.Publisher,
	subscriber aptevents.Subscriber,
	orders kds.OrderRepository,
	tickets kds.TicketRepository,
	logger apt.Logger,
) *Relay {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Relay{
		engine:     engine,
		publisher:  publisher,
		subscriber: subscriber,
		orders:     orders,
		tickets:    tickets,
		logger:     logger,
		source:     uuid.NewString(),
		stop:       make(chan struct{}),
	}
}

// Warm restores the engine's live set from persistence. Skipped when no
// repositories are wired (single-display dev setups).
func (r *Relay) Warm(ctx context.Context) error {
	if r.orders == nil || r.tickets == nil {
		r.logger.Info("No repositories configured, engine starts empty")
		return nil
	}

	orders, err := r.orders.List(ctx, kds.OrderFilter{})
	if err != nil {
		return fmt.Errorf("cannot load orders: %w", err)
	}
	tickets, err := r.tickets.List(ctx, kds.TicketRepoFilter{})
	if err != nil {
		return fmt.Errorf("cannot load tickets: %w", err)
	}
	r.engine.Restore(orders, tickets)
	return nil
}

// StreamFetcher retrieves retained messages for startup replay.
type StreamFetcher interface {
	Fetch(ctx context.Context, limit int) ([]aptevents.StreamMessage, error)
}

// Replay applies retained stream events on top of the warmed state,
// covering transitions that happened after the last repository write.
// ApplyEvent is idempotent, so replaying already-persisted events is a
// no-op.
func (r *Relay) Replay(ctx context.Context, fetcher StreamFetcher) error {
	msgs, err := fetcher.Fetch(ctx, 0)
	if err != nil {
		return fmt.Errorf("cannot fetch retained events: %w", err)
	}
	for _, msg := range msgs {
		if err := r.handleRemote(ctx, msg.Data); err != nil {
			r.logger.Errorf("Skipping unreplayable event at seq %d: %v", msg.Sequence, err)
		}
	}
	return nil
}

func (r *Relay) Start(ctx context.Context) error {
	for _, eventType := range event.Types() {
		unsub, err := r.engine.Broadcaster().Subscribe(eventType, func(evt kds.Event) {
			r.handleEngineEvent(ctx, evt)
		})
		if err != nil {
			return fmt.Errorf("cannot subscribe to %s: %w", eventType, err)
		}
		r.unsubs = append(r.unsubs, unsub)
	}

	if r.subscriber != nil {
		if err := r.subscriber.Subscribe(ctx, event.KDSTopic, r.handleRemote); err != nil {
			return fmt.Errorf("cannot subscribe to %s: %w", event.KDSTopic, err)
		}
	}

	r.wg.Add(2)
	go r.heartbeatLoop(ctx)
	go r.pollLoop(ctx)

	r.logger.Info("Relay started")
	return nil
}

func (r *Relay) Stop(ctx context.Context) error {
	close(r.stop)
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.wg.Wait()
	r.logger.Info("Relay stopped")
	return nil
}

// handleEngineEvent persists the event's snapshots and pushes the event
// to displays. Failures are logged and surfaced as alerts; the engine's
// state is already committed and stays untouched.
func (r *Relay) handleEngineEvent(ctx context.Context, evt kds.Event) {
	r.persist(ctx, evt)

	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(r.toWire(evt))
	if err != nil {
		r.logger.Errorf("Cannot marshal %s event: %v", evt.Type, err)
		return
	}
	if err := r.publisher.Publish(ctx, event.KDSTopic, payload); err != nil {
		r.logger.Errorf("Failed to publish %s event: %v", evt.Type, err)
	}
}

func (r *Relay) persist(ctx context.Context, evt kds.Event) {
	if evt.Order != nil && r.orders != nil {
		if err := r.upsertOrder(ctx, evt.Order); err != nil {
			r.logger.Errorf("Failed to persist order %s: %v", evt.Order.ID, err)
		}
	}
	if evt.Ticket != nil && r.tickets != nil {
		if err := r.upsertTicket(ctx, evt.Ticket); err != nil {
			r.logger.Errorf("Failed to persist ticket %s: %v", evt.Ticket.ID, err)
		}
	}
	if r.tickets != nil {
		for _, t := range evt.Tickets {
			if err := r.upsertTicket(ctx, t); err != nil {
				r.logger.Errorf("Failed to persist ticket %s: %v", t.ID, err)
			}
		}
	}
	// A cancelled order's tickets left the live queue; drop the stored
	// copies too so reloads match.
	if evt.Order != nil && r.tickets != nil && evt.Order.Status == ticketstatus.Statuses.Cancelled.Code() {
		if err := r.tickets.DeleteByOrderID(ctx, evt.Order.ID); err != nil {
			r.logger.Errorf("Failed to delete tickets for cancelled order %s: %v", evt.Order.ID, err)
		}
	}
}

// upsertOrder and upsertTicket first try Update because most events are
// transitions on already-stored records. A not-found miss means this is
// the record's first write, so it falls through to Create. Any other
// failure is terminal for this delivery.
func (r *Relay) upsertOrder(ctx context.Context, o *kds.Order) error {
	err := r.orders.Update(ctx, o)
	if errors.Is(err, kds.ErrNotFound) {
		return r.orders.Create(ctx, o)
	}
	return err
}

func (r *Relay) upsertTicket(ctx context.Context, t *kds.Ticket) error {
	err := r.tickets.Update(ctx, t)
	if errors.Is(err, kds.ErrNotFound) {
		return r.tickets.Create(ctx, t)
	}
	return err
}

func (r *Relay) toWire(evt kds.Event) interface{} {
	meta := event.Metadata{
		EventType:  evt.Type,
		OccurredAt: evt.OccurredAt,
		Source:     r.source,
	}
	if evt.Order != nil {
		meta.OrderID = evt.Order.ID.String()
		meta.OrderNumber = evt.Order.Number
		meta.TableNumber = evt.Order.TableNumber
		meta.ServerName = evt.Order.ServerName
	}
	if evt.Ticket != nil {
		meta.TicketID = evt.Ticket.ID.String()
		meta.Station = evt.Ticket.Station
		if meta.OrderID == "" {
			meta.OrderID = evt.Ticket.OrderID.String()
		}
		if meta.OrderNumber == "" {
			meta.OrderNumber = evt.Ticket.OrderNumber
		}
	}

	switch evt.Type {
	case event.EventSystemAlert:
		return event.AlertEvent{Metadata: meta, Severity: "warning", Message: evt.Message}
	case event.EventNewOrder, event.EventOrderComplete:
		out := event.OrderEvent{Metadata: meta, TicketCount: len(evt.Tickets)}
		if evt.Order != nil {
			out.Status = evt.Order.Status
			out.Priority = evt.Order.Priority
		}
		return out
	default:
		out := event.TicketEvent{Metadata: meta, PreviousStatus: evt.Previous}
		if evt.Ticket != nil {
			out.NewStatus = evt.Ticket.Status
			out.Priority = evt.Ticket.Priority
			out.IsFired = evt.Ticket.IsFired
			out.IsRecalled = evt.Ticket.IsRecalled
			out.CompletedAt = evt.Ticket.CompletedTime
		}
		return out
	}
}

// handleRemote feeds events from sibling engine instances through the
// idempotent ApplyEvent path. Duplicate deliveries (push racing the
// polling fallback) are harmless by construction.
func (r *Relay) handleRemote(ctx context.Context, msg []byte) error {
	var meta event.Metadata
	if err := json.Unmarshal(msg, &meta); err != nil {
		r.logger.Errorf("Cannot unmarshal remote event: %v", err)
		return nil
	}
	if meta.Source == r.source {
		return nil
	}

	switch meta.EventType {
	case event.EventTicketUpdate, event.EventStationChange:
		var evt event.TicketEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			r.logger.Errorf("Cannot unmarshal ticket event: %v", err)
			return nil
		}
		if evt.TicketID == "" {
			return nil
		}
		if err := r.engine.ApplyEvent(evt); err != nil {
			r.logger.Errorf("Cannot apply remote ticket event: %v", err)
		}
	default:
		// new_order and order_complete need the full order payload,
		// which the poll loop picks up from persistence.
		return nil
	}
	return nil
}

func (r *Relay) heartbeatLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.publisher == nil {
				continue
			}
			payload, _ := json.Marshal(event.AlertEvent{
				Metadata: event.Metadata{
					EventType:  event.EventSystemAlert,
					OccurredAt: time.Now().UTC(),
					Source:     r.source,
				},
				Severity: "info",
				Message:  "heartbeat",
			})
			if err := r.publisher.Publish(ctx, event.KDSTopic, payload); err != nil {
				r.logger.Errorf("Heartbeat publish failed: %v", err)
			}
		}
	}
}

// pollLoop is the fallback refresh: every tick it scans urgency
// thresholds (emitting one-shot alerts), refreshes the metrics
// snapshot, and resyncs from the repository so orders placed on a
// sibling instance surface here even when push delivery stalls.
func (r *Relay) pollLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fired := r.engine.ScanUrgency(); fired > 0 {
				r.logger.Infof("Urgency scan raised %d alerts", fired)
			}
			r.engine.Metrics()
			r.resync(ctx)
		}
	}
}

// resync lists the persisted orders and tickets and admits the ones the
// engine has never seen. Admission is idempotent, so racing a pushed
// event is harmless.
func (r *Relay) resync(ctx context.Context) {
	if r.orders == nil || r.tickets == nil {
		return
	}

	var orders []kds.Order
	err := kds.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		orders, err = r.orders.List(ctx, kds.OrderFilter{})
		return err
	})
	if err != nil {
		r.logger.Errorf("Resync cannot list orders: %v", err)
		return
	}

	var tickets []kds.Ticket
	err = kds.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		tickets, err = r.tickets.List(ctx, kds.TicketRepoFilter{})
		return err
	})
	if err != nil {
		r.logger.Errorf("Resync cannot list tickets: %v", err)
		return
	}

	r.engine.Resync(orders, tickets)
}
