package kds

import (
	"time"

	"github.com/google/uuid"
)

// Ticket is the subset of one order routed to one station, tracked and
// displayed independently. One ticket exists per (order, station) pair.
type Ticket struct {
	ID      TicketID `bson:"_id" json:"id"`
	OrderID OrderID  `bson:"order_id" json:"order_id"`
	Station string   `bson:"station" json:"station"`

	Items  []OrderItem `bson:"items" json:"items"`
	Status string      `bson:"status" json:"status"`
	// Priority mirrors the owning order; it is propagated by the engine
	// after every priority-affecting transition, never set directly.
	Priority string `bson:"priority" json:"priority"`

	// StartTime is the order's creation time; elapsed time and urgency
	// derive from it against the wall clock, never from a stored counter.
	StartTime time.Time `bson:"start_time" json:"start_time"`
	// CookTime is the max item cook time at this station, in minutes.
	CookTime      int        `bson:"cook_time" json:"cook_time"`
	IsFired       bool       `bson:"is_fired" json:"is_fired"`
	IsRecalled    bool       `bson:"is_recalled" json:"is_recalled"`
	CompletedTime *time.Time `bson:"completed_time,omitempty" json:"completed_time,omitempty"`
	Position      int        `bson:"position" json:"position"`

	// Denormalized data for display purposes
	OrderNumber string `bson:"order_number,omitempty" json:"order_number,omitempty"`
	TableNumber string `bson:"table_number,omitempty" json:"table_number,omitempty"`
	ServerName  string `bson:"server_name,omitempty" json:"server_name,omitempty"`
}

// Elapsed returns how long the ticket has been open, never negative.
func (t *Ticket) Elapsed(now time.Time) time.Duration {
	if now.Before(t.StartTime) {
		return 0
	}
	return now.Sub(t.StartTime)
}

// Urgency derives the escalation tier from elapsed time and thresholds.
func (t *Ticket) Urgency(now time.Time, th Thresholds) string {
	return UrgencyFromElapsed(t.Elapsed(now), th)
}

// Completed reports whether the ticket has been bumped.
func (t *Ticket) Completed() bool {
	return t.CompletedTime != nil
}

// Clone returns a copy safe to hand to readers while writers keep
// mutating the original under the engine lock. Item slices are shared:
// items are immutable after placement.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	if t.CompletedTime != nil {
		completed := *t.CompletedTime
		cp.CompletedTime = &completed
	}
	return &cp
}

func newTicketID() TicketID {
	return uuid.New()
}
