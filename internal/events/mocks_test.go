package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/google/uuid"
)

// MockOrderRepo implements kds.OrderRepository for testing
type MockOrderRepo struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*kds.Order
	CreateFunc func(ctx context.Context, o *kds.Order) error
	UpdateFunc func(ctx context.Context, o *kds.Order) error
	ListFunc   func(ctx context.Context, filter kds.OrderFilter) ([]kds.Order, error)
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[uuid.UUID]*kds.Order)}
}

func (m *MockOrderRepo) Create(ctx context.Context, o *kds.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepo) Update(ctx context.Context, o *kds.Order) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; !exists {
		return fmt.Errorf("%w: order %s", kds.ErrNotFound, o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, id kds.OrderID) (*kds.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, exists := m.orders[id]
	if !exists {
		return nil, errors.New("order not found")
	}
	return o, nil
}

func (m *MockOrderRepo) List(ctx context.Context, filter kds.OrderFilter) ([]kds.Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]kds.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		result = append(result, *o)
	}
	return result, nil
}

// AddOrder is a helper to seed the mock repository
func (m *MockOrderRepo) AddOrder(o *kds.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderRepo) Get(id uuid.UUID) *kds.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

// MockTicketRepo implements kds.TicketRepository for testing
type MockTicketRepo struct {
	mu         sync.Mutex
	tickets    map[uuid.UUID]*kds.Ticket
	CreateFunc func(ctx context.Context, t *kds.Ticket) error
	UpdateFunc func(ctx context.Context, t *kds.Ticket) error
	ListFunc   func(ctx context.Context, filter kds.TicketRepoFilter) ([]kds.Ticket, error)
}

func NewMockTicketRepo() *MockTicketRepo {
	return &MockTicketRepo{tickets: make(map[uuid.UUID]*kds.Ticket)}
}

func (m *MockTicketRepo) Create(ctx context.Context, t *kds.Ticket) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
	return nil
}

func (m *MockTicketRepo) Update(ctx context.Context, t *kds.Ticket) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tickets[t.ID]; !exists {
		return fmt.Errorf("%w: ticket %s", kds.ErrNotFound, t.ID)
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *MockTicketRepo) FindByID(ctx context.Context, id kds.TicketID) (*kds.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, exists := m.tickets[id]
	if !exists {
		return nil, errors.New("ticket not found")
	}
	return t, nil
}

func (m *MockTicketRepo) List(ctx context.Context, filter kds.TicketRepoFilter) ([]kds.Ticket, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]kds.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if filter.Station != nil && t.Station != *filter.Station {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.OrderID != nil && t.OrderID != *filter.OrderID {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

func (m *MockTicketRepo) DeleteByOrderID(ctx context.Context, id kds.OrderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tid, t := range m.tickets {
		if t.OrderID == id {
			delete(m.tickets, tid)
		}
	}
	return nil
}

// AddTicket is a helper to seed the mock repository
func (m *MockTicketRepo) AddTicket(t *kds.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

func (m *MockTicketRepo) Get(id uuid.UUID) *kds.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id]
}

// PublishedEvent records one Publish call
type PublishedEvent struct {
	Topic string
	Data  []byte
}

// MockPublisher implements events.Publisher for testing
type MockPublisher struct {
	mu              sync.Mutex
	publishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedEvents = append(m.publishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

func (m *MockPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.publishedEvents))
	copy(out, m.publishedEvents)
	return out
}

// MockSubscriber implements events.Subscriber for testing
type MockSubscriber struct {
	SubscribeFunc func(ctx context.Context, topic string, handler aptevents.HandlerFunc) error
	Handler       aptevents.HandlerFunc
	Topic         string
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler aptevents.HandlerFunc) error {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, topic, handler)
	}
	m.Topic = topic
	m.Handler = handler
	return nil
}

// MockStreamFetcher implements StreamFetcher for testing
type MockStreamFetcher struct {
	FetchFunc func(ctx context.Context, limit int) ([]aptevents.StreamMessage, error)
	Messages  []aptevents.StreamMessage
}

func (m *MockStreamFetcher) Fetch(ctx context.Context, limit int) ([]aptevents.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, limit)
	}
	return m.Messages, nil
}
