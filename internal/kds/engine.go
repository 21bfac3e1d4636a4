package kds

import (
	"fmt"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/enums/priority"
	"github.com/appetiteclub/kds/pkg/enums/sortmode"
	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// Engine owns the live order and ticket set and is the only writer to
// it. It is a constructed instance, not package state: tests run several
// isolated engines side by side.
//
// Locking: every transition takes the owning order's mutex first, then
// the engine lock for index mutation. Two actions racing on the same
// ticket therefore serialize; the second sees the first one's result and
// either succeeds validly or fails with ErrInvalidTransition. Readers
// take the engine lock shared and copy out, so they never observe a
// partially applied transition.
type Engine struct {
	mu        sync.RWMutex
	orders    map[OrderID]*Order
	tickets   map[TicketID]*Ticket
	byOrder   map[OrderID][]TicketID
	byStation map[string][]TicketID

	lockMu     sync.Mutex
	orderLocks map[OrderID]*sync.Mutex

	router      *Router
	registry    *StationRegistry
	broadcaster *Broadcaster
	alerts      *AlertTracker
	thresholds  Thresholds
	clock       func() time.Time
	logger      apt.Logger
}

// EngineDeps gathers the collaborators an Engine needs.
type EngineDeps struct {
	Router      *Router
	Registry    *StationRegistry
	Broadcaster *Broadcaster
	Thresholds  Thresholds
	Clock       func() time.Time
}

func NewEngine(deps EngineDeps, logger apt.Logger) *Engine {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if deps.Router == nil {
		deps.Router = DefaultRouter()
	}
	if deps.Registry == nil {
		deps.Registry, _ = NewStationRegistry(DefaultStations())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = NewBroadcaster(DefaultCacheMaxAge, deps.Clock, logger)
	}
	if deps.Thresholds.Warning <= 0 || deps.Thresholds.Urgent <= 0 {
		deps.Thresholds = DefaultThresholds()
	}
	return &Engine{
		orders:      make(map[OrderID]*Order),
		tickets:     make(map[TicketID]*Ticket),
		byOrder:     make(map[OrderID][]TicketID),
		byStation:   make(map[string][]TicketID),
		orderLocks:  make(map[OrderID]*sync.Mutex),
		router:      deps.Router,
		registry:    deps.Registry,
		broadcaster: deps.Broadcaster,
		alerts:      NewAlertTracker(),
		thresholds:  deps.Thresholds,
		clock:       deps.Clock,
		logger:      logger,
	}
}

// Broadcaster exposes the engine's broadcaster for subscription wiring.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.broadcaster
}

// Registry exposes the station registry for display surfaces.
func (e *Engine) Registry() *StationRegistry {
	return e.registry
}

// Thresholds returns the engine's urgency thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

func (e *Engine) orderLock(id OrderID) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.orderLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.orderLocks[id] = l
	}
	return l
}

// PlaceOrder admits a new order: routes every item, cuts one ticket per
// station touched and emits a single new_order event.
func (e *Engine) PlaceOrder(order *Order) (*Order, []*Ticket, error) {
	if order == nil || len(order.Items) == 0 {
		return nil, nil, fmt.Errorf("%w: order must carry at least one item", ErrInvalidArgument)
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: item %q quantity must be positive", ErrInvalidArgument, item.Name)
		}
	}
	if order.Priority == "" {
		order.Priority = priority.Priorities.Normal.Code()
	} else if priority.ByName(order.Priority) == nil {
		return nil, nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, order.Priority)
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.clock()
	}
	order.Status = ticketstatus.Statuses.Pending.Code()
	order.AllergenWarnings = CollectAllergens(order.Items)

	lock := e.orderLock(order.ID)
	lock.Lock()
	defer lock.Unlock()

	tickets := BuildTickets(order, e.router)

	e.mu.Lock()
	if _, exists := e.orders[order.ID]; exists {
		e.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: order %s already placed", ErrInvalidArgument, order.ID)
	}
	e.orders[order.ID] = order
	for _, t := range tickets {
		e.tickets[t.ID] = t
		e.byOrder[order.ID] = append(e.byOrder[order.ID], t.ID)
		e.byStation[t.Station] = append(e.byStation[t.Station], t.ID)
	}
	e.mu.Unlock()

	e.logger.Infof("Placed order %s with %d tickets", order.Number, len(tickets))

	snapshots := make([]*Ticket, len(tickets))
	published := make([]*Ticket, len(tickets))
	for i, t := range tickets {
		snapshots[i] = t.Clone()
		published[i] = t.Clone()
	}
	e.publish(Event{
		Type:       event.EventNewOrder,
		OccurredAt: e.clock(),
		Order:      cloneOrder(order),
		Tickets:    published,
	})
	return cloneOrder(order), snapshots, nil
}

// Start moves a pending ticket to preparing. The first start also moves
// the owning order to preparing.
func (e *Engine) Start(ticketID TicketID) (*Ticket, error) {
	return e.transition(ticketID, func(t *Ticket, o *Order) (string, error) {
		if t.Status != ticketstatus.Statuses.Pending.Code() {
			return "", fmt.Errorf("%w: cannot start ticket in status %q", ErrInvalidTransition, t.Status)
		}
		t.Status = ticketstatus.Statuses.Preparing.Code()
		if o.Status == ticketstatus.Statuses.Pending.Code() {
			o.Status = ticketstatus.Statuses.Preparing.Code()
		}
		return event.EventTicketUpdate, nil
	})
}

// Ready moves a preparing ticket to ready.
func (e *Engine) Ready(ticketID TicketID) (*Ticket, error) {
	return e.transition(ticketID, func(t *Ticket, o *Order) (string, error) {
		if t.Status != ticketstatus.Statuses.Preparing.Code() {
			return "", fmt.Errorf("%w: cannot ready ticket in status %q", ErrInvalidTransition, t.Status)
		}
		t.Status = ticketstatus.Statuses.Ready.Code()
		return event.EventTicketUpdate, nil
	})
}

// Bump completes a ticket at its station. Bumping an already-completed
// ticket is an invalid transition; duplicate deliveries of the same bump
// go through ApplyEvent instead, which treats them as no-ops.
func (e *Engine) Bump(ticketID TicketID) (*Ticket, error) {
	return e.transition(ticketID, func(t *Ticket, o *Order) (string, error) {
		if t.Status == ticketstatus.Statuses.Completed.Code() {
			return "", fmt.Errorf("%w: ticket already completed", ErrInvalidTransition)
		}
		now := e.clock()
		t.Status = ticketstatus.Statuses.Completed.Code()
		t.CompletedTime = &now

		if e.allTicketsCompletedLocked(o.ID) {
			o.Status = ticketstatus.Statuses.Completed.Code()
			return event.EventOrderComplete, nil
		}
		return event.EventTicketUpdate, nil
	})
}

// Recall reopens a completed ticket: back to preparing, completion time
// cleared, recall flag set. A recall does not revert a fire-escalated
// order priority.
func (e *Engine) Recall(ticketID TicketID) (*Ticket, error) {
	return e.transition(ticketID, func(t *Ticket, o *Order) (string, error) {
		if t.Status != ticketstatus.Statuses.Completed.Code() {
			return "", fmt.Errorf("%w: only completed tickets can be recalled", ErrInvalidTransition)
		}
		t.Status = ticketstatus.Statuses.Preparing.Code()
		t.CompletedTime = nil
		t.IsRecalled = true
		if o.Status == ticketstatus.Statuses.Completed.Code() {
			o.Status = ticketstatus.Statuses.Preparing.Code()
		}
		return event.EventTicketUpdate, nil
	})
}

// Fire escalates a ticket to cook-now. Idempotent: firing a fired
// ticket changes nothing and emits nothing. A first fire raises the
// owning order's priority to fire, which fans out to sibling tickets.
func (e *Engine) Fire(ticketID TicketID) (*Ticket, error) {
	orderID, err := e.ticketOrder(ticketID)
	if err != nil {
		return nil, err
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	t, ok := e.tickets[ticketID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	if t.IsFired {
		snapshot := t.Clone()
		e.mu.Unlock()
		return snapshot, nil
	}
	t.IsFired = true
	o := e.orders[orderID]
	o.Priority = priority.Priorities.Fire.Code()
	for _, sibID := range e.byOrder[orderID] {
		e.tickets[sibID].Priority = o.Priority
	}
	snapshot := t.Clone()
	orderSnapshot := cloneOrder(o)
	e.mu.Unlock()

	e.publish(Event{
		Type:       event.EventTicketUpdate,
		OccurredAt: e.clock(),
		Ticket:     snapshot,
		Order:      orderSnapshot,
	})
	return snapshot, nil
}

// SetPriority changes an order's priority and propagates it to every
// ticket cut from that order, not just the one the caller acted on.
// A fired ticket only stays fired while its order is at fire or rush;
// lowering the order below that clears the flag on its tickets.
func (e *Engine) SetPriority(orderID OrderID, p string) (*Order, error) {
	if priority.ByName(p) == nil {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidArgument, p)
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	o, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	o.Priority = p
	clearFired := p != priority.Priorities.Fire.Code() && p != priority.Priorities.Rush.Code()
	for _, tID := range e.byOrder[orderID] {
		t := e.tickets[tID]
		t.Priority = p
		if clearFired {
			t.IsFired = false
		}
	}
	snapshot := cloneOrder(o)
	e.mu.Unlock()

	e.publish(Event{
		Type:       event.EventTicketUpdate,
		OccurredAt: e.clock(),
		Order:      snapshot,
	})
	return snapshot, nil
}

// TransferStation moves a ticket to another active station.
func (e *Engine) TransferStation(ticketID TicketID, stationCode string) (*Ticket, error) {
	if !e.registry.IsActive(stationCode) {
		return nil, fmt.Errorf("%w: station %q is unknown or inactive", ErrInvalidArgument, stationCode)
	}

	orderID, err := e.ticketOrder(ticketID)
	if err != nil {
		return nil, err
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	t, ok := e.tickets[ticketID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	if t.Station != stationCode {
		e.removeFromStationLocked(t.Station, ticketID)
		t.Station = stationCode
		e.byStation[stationCode] = append(e.byStation[stationCode], ticketID)
	}
	snapshot := t.Clone()
	e.mu.Unlock()

	e.publish(Event{
		Type:       event.EventStationChange,
		OccurredAt: e.clock(),
		Ticket:     snapshot,
	})
	return snapshot, nil
}

// Cancel terminates a live order. Its tickets are the only tickets ever
// removed from memory; bumped tickets stay resident so they can be
// recalled.
func (e *Engine) Cancel(orderID OrderID) (*Order, error) {
	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	o, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	if o.Status == ticketstatus.Statuses.Completed.Code() || o.Status == ticketstatus.Statuses.Cancelled.Code() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: order is already %s", ErrInvalidTransition, o.Status)
	}
	o.Status = ticketstatus.Statuses.Cancelled.Code()
	removed := e.byOrder[orderID]
	for _, tID := range removed {
		if t, ok := e.tickets[tID]; ok {
			e.removeFromStationLocked(t.Station, tID)
			delete(e.tickets, tID)
		}
	}
	delete(e.byOrder, orderID)
	snapshot := cloneOrder(o)
	e.mu.Unlock()

	for _, tID := range removed {
		e.alerts.Forget(tID)
		e.broadcaster.Evict(tID)
	}

	// The order accepts no further actions, so its lock entry can go.
	// A racer already holding the pointer still serializes and then
	// fails the lookup with ErrNotFound or ErrInvalidTransition.
	e.lockMu.Lock()
	delete(e.orderLocks, orderID)
	e.lockMu.Unlock()

	e.publish(Event{
		Type:       event.EventOrderComplete,
		OccurredAt: e.clock(),
		Order:      snapshot,
	})
	return snapshot, nil
}

// transition runs a per-ticket state change under the order lock and
// emits the single event the mutation function names. A failed mutation
// leaves no partial state and emits nothing.
func (e *Engine) transition(ticketID TicketID, mutate func(*Ticket, *Order) (string, error)) (*Ticket, error) {
	orderID, err := e.ticketOrder(ticketID)
	if err != nil {
		return nil, err
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	t, ok := e.tickets[ticketID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	o := e.orders[orderID]
	previous := t.Status
	eventType, err := mutate(t, o)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snapshot := t.Clone()
	orderSnapshot := cloneOrder(o)
	e.mu.Unlock()

	e.publish(Event{
		Type:       eventType,
		OccurredAt: e.clock(),
		Ticket:     snapshot,
		Order:      orderSnapshot,
		Previous:   previous,
	})
	return snapshot, nil
}

func (e *Engine) ticketOrder(ticketID TicketID) (OrderID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickets[ticketID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	return t.OrderID, nil
}

func (e *Engine) allTicketsCompletedLocked(orderID OrderID) bool {
	for _, tID := range e.byOrder[orderID] {
		if e.tickets[tID].Status != ticketstatus.Statuses.Completed.Code() {
			return false
		}
	}
	return true
}

func (e *Engine) removeFromStationLocked(stationCode string, ticketID TicketID) {
	ids := e.byStation[stationCode]
	for i, id := range ids {
		if id == ticketID {
			e.byStation[stationCode] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func (e *Engine) publish(evt Event) {
	e.broadcaster.Publish(evt)
}

// TicketFilter narrows ListTickets output. Zero value lists every live
// ticket on every station, completed ones excluded.
type TicketFilter struct {
	Stations      []string
	ShowCompleted bool
	SortMode      sortmode.SortMode
}

// ListTickets returns a sorted snapshot of the live queue. Cancelled
// orders never appear (their tickets leave the live set on cancel);
// completed tickets appear only when ShowCompleted is set.
func (e *Engine) ListTickets(filter TicketFilter) []*Ticket {
	wanted := map[string]bool{}
	for _, s := range filter.Stations {
		wanted[s] = true
	}

	e.mu.RLock()
	result := make([]*Ticket, 0, len(e.tickets))
	for _, t := range e.tickets {
		if len(wanted) > 0 && !wanted[t.Station] {
			continue
		}
		if !filter.ShowCompleted && t.Status == ticketstatus.Statuses.Completed.Code() {
			continue
		}
		result = append(result, t.Clone())
	}
	e.mu.RUnlock()

	mode := filter.SortMode
	if mode.Code() == "" {
		mode = sortmode.Modes.Time
	}
	SortTickets(result, mode)
	return result
}

// GetTicket returns a snapshot of one live ticket.
func (e *Engine) GetTicket(ticketID TicketID) (*Ticket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickets[ticketID]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	return t.Clone(), nil
}

// GetOrder returns a snapshot of one live order.
func (e *Engine) GetOrder(orderID OrderID) (*Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return cloneOrder(o), nil
}

// Orders returns a snapshot of every live order, the aggregator's input.
func (e *Engine) Orders() []*Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

// ScanUrgency walks the open tickets, and for each first crossing of a
// threshold publishes one system_alert. Callers run it on a tick; the
// tracker guarantees a given ticket announces a given tier once.
func (e *Engine) ScanUrgency() int {
	now := e.clock()

	e.mu.RLock()
	type candidate struct {
		ticket *Ticket
		tier   string
	}
	var candidates []candidate
	for _, t := range e.tickets {
		if t.Status == ticketstatus.Statuses.Completed.Code() {
			continue
		}
		tier := t.Urgency(now, e.thresholds)
		candidates = append(candidates, candidate{ticket: t.Clone(), tier: tier})
	}
	e.mu.RUnlock()

	fired := 0
	for _, c := range candidates {
		if e.alerts.Crossed(c.ticket.ID, c.tier) {
			fired++
			e.publish(Event{
				Type:       event.EventSystemAlert,
				OccurredAt: now,
				Ticket:     c.ticket,
				Message:    fmt.Sprintf("ticket %s on %s is %s", c.ticket.OrderNumber, c.ticket.Station, c.tier),
			})
		}
	}
	return fired
}

// Resync admits persisted orders this instance has never seen, covering
// new_order events lost in transit; sibling instances only push ticket
// transitions over the wire, so the order payload comes from the
// repository. Known IDs stay untouched, the event path owns their
// state, which makes repeated resyncs of the same data no-ops. Each
// admitted order is announced with a new_order event carrying its
// tickets, mirroring PlaceOrder. Returns the number of orders admitted.
func (e *Engine) Resync(orders []Order, tickets []Ticket) int {
	grouped := make(map[OrderID][]Ticket, len(orders))
	for i := range tickets {
		grouped[tickets[i].OrderID] = append(grouped[tickets[i].OrderID], tickets[i])
	}

	var admitted []Event

	e.mu.Lock()
	for i := range orders {
		o := orders[i]
		if o.Status == ticketstatus.Statuses.Cancelled.Code() {
			continue
		}
		if _, known := e.orders[o.ID]; known {
			continue
		}
		e.orders[o.ID] = &o

		var cut []*Ticket
		for _, t := range grouped[o.ID] {
			t := t
			if _, known := e.tickets[t.ID]; known {
				continue
			}
			e.tickets[t.ID] = &t
			e.byOrder[t.OrderID] = append(e.byOrder[t.OrderID], t.ID)
			e.byStation[t.Station] = append(e.byStation[t.Station], t.ID)
			cut = append(cut, t.Clone())
		}
		admitted = append(admitted, Event{
			Type:    event.EventNewOrder,
			Order:   cloneOrder(&o),
			Tickets: cut,
		})
	}
	e.mu.Unlock()

	now := e.clock()
	for i := range admitted {
		admitted[i].OccurredAt = now
		e.publish(admitted[i])
	}
	if len(admitted) > 0 {
		e.logger.Infof("Resync admitted %d orders from persistence", len(admitted))
	}
	return len(admitted)
}

// Restore loads persisted orders and tickets back into the live set on
// startup, without re-routing or emitting events. Cancelled orders are
// skipped; their tickets left the live queue when they were cancelled.
func (e *Engine) Restore(orders []Order, tickets []Ticket) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range orders {
		o := orders[i]
		if o.Status == ticketstatus.Statuses.Cancelled.Code() {
			continue
		}
		e.orders[o.ID] = &o
	}
	for i := range tickets {
		t := tickets[i]
		if _, ok := e.orders[t.OrderID]; !ok {
			continue
		}
		e.tickets[t.ID] = &t
		e.byOrder[t.OrderID] = append(e.byOrder[t.OrderID], t.ID)
		e.byStation[t.Station] = append(e.byStation[t.Station], t.ID)
	}
	e.logger.Infof("Restored %d orders and %d tickets", len(e.orders), len(e.tickets))
}

func cloneOrder(o *Order) *Order {
	cp := *o
	return &cp
}
