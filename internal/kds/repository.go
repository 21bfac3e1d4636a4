package kds

import (
	"context"
	"fmt"
	"time"
)

type OrderFilter struct {
	Status *string
	Limit  int
	Offset int
}

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id OrderID) (*Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
}

type TicketRepoFilter struct {
	Station *string
	Status  *string
	OrderID *OrderID
	Limit   int
	Offset  int
}

type TicketRepository interface {
	Create(ctx context.Context, t *Ticket) error
	Update(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, id TicketID) (*Ticket, error)
	List(ctx context.Context, filter TicketRepoFilter) ([]Ticket, error)
	DeleteByOrderID(ctx context.Context, id OrderID) error
}

const (
	retryAttempts = 3
	retryBaseWait = 200 * time.Millisecond
)

// WithRetry runs fn with bounded exponential backoff. Transient port
// failures are retried; after the budget is spent the terminal failure
// surfaces as ErrUnavailable so callers stop retrying and report it.
// Deterministic failures (not found, invalid input) abort on the first
// attempt and keep their kind, so callers can still classify them.
func WithRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(wait):
			}
			wait *= 2
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if kind := Kind(err); kind != nil && kind != ErrUnavailable {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
