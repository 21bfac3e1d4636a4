package kds

import (
	"errors"
	"fmt"

	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// Action is a closed set of engine operations with typed payloads,
// dispatched exhaustively in Apply. Batch update endpoints build these
// instead of routing on raw action-name strings.
type Action interface {
	isAction()
}

type BumpAction struct {
	TicketID TicketID
}

type RecallAction struct {
	TicketID TicketID
}

type FireAction struct {
	TicketID TicketID
}

type StartAction struct {
	TicketID TicketID
}

type ReadyAction struct {
	TicketID TicketID
}

type SetPriorityAction struct {
	OrderID  OrderID
	Priority string
}

type TransferAction struct {
	TicketID TicketID
	Station  string
}

type CancelAction struct {
	OrderID OrderID
}

func (BumpAction) isAction()        {}
func (RecallAction) isAction()      {}
func (FireAction) isAction()        {}
func (StartAction) isAction()       {}
func (ReadyAction) isAction()       {}
func (SetPriorityAction) isAction() {}
func (TransferAction) isAction()    {}
func (CancelAction) isAction()      {}

// ActionResult reports one action's outcome within a batch.
type ActionResult struct {
	Action Action
	Ticket *Ticket
	Order  *Order
	Err    error
}

// Apply dispatches a single action to its engine operation.
func (e *Engine) Apply(a Action) ActionResult {
	res := ActionResult{Action: a}
	switch a := a.(type) {
	case BumpAction:
		res.Ticket, res.Err = e.Bump(a.TicketID)
	case RecallAction:
		res.Ticket, res.Err = e.Recall(a.TicketID)
	case FireAction:
		res.Ticket, res.Err = e.Fire(a.TicketID)
	case StartAction:
		res.Ticket, res.Err = e.Start(a.TicketID)
	case ReadyAction:
		res.Ticket, res.Err = e.Ready(a.TicketID)
	case SetPriorityAction:
		res.Order, res.Err = e.SetPriority(a.OrderID, a.Priority)
	case TransferAction:
		res.Ticket, res.Err = e.TransferStation(a.TicketID, a.Station)
	case CancelAction:
		res.Order, res.Err = e.Cancel(a.OrderID)
	default:
		res.Err = fmt.Errorf("%w: unknown action %T", ErrInvalidArgument, a)
	}
	return res
}

// ApplyBatch runs actions in order and reports each outcome. One failed
// action does not stop the rest.
func (e *Engine) ApplyBatch(actions []Action) []ActionResult {
	results := make([]ActionResult, len(actions))
	for i, a := range actions {
		results[i] = e.Apply(a)
	}
	return results
}

// ApplyEvent ingests a remote ticket event, the duplicate-delivery path:
// push and poll may both hand the engine the same transition, so an
// already-applied event is a no-op, never an error. Events for tickets
// no longer live (cancelled and evicted) are ignored the same way.
func (e *Engine) ApplyEvent(evt event.TicketEvent) error {
	ticketID, err := uuid.Parse(evt.TicketID)
	if err != nil {
		return fmt.Errorf("%w: bad ticket id %q", ErrInvalidArgument, evt.TicketID)
	}

	current, err := e.GetTicket(ticketID)
	if err != nil {
		return nil
	}

	if evt.IsFired && !current.IsFired {
		if _, err := e.Fire(ticketID); err != nil {
			return err
		}
	}

	if evt.NewStatus == "" || evt.NewStatus == current.Status {
		return nil
	}

	switch evt.NewStatus {
	case ticketstatus.Statuses.Completed.Code():
		_, err = e.Bump(ticketID)
	case ticketstatus.Statuses.Preparing.Code():
		if evt.IsRecalled && current.Status == ticketstatus.Statuses.Completed.Code() {
			_, err = e.Recall(ticketID)
		} else if current.Status == ticketstatus.Statuses.Pending.Code() {
			_, err = e.Start(ticketID)
		}
	case ticketstatus.Statuses.Ready.Code():
		if current.Status == ticketstatus.Statuses.Pending.Code() {
			if _, err = e.Start(ticketID); err != nil {
				return err
			}
		}
		_, err = e.Ready(ticketID)
	default:
		// Cancellation arrives as an order-level event; other statuses
		// have no ticket transition to replay.
		return nil
	}
	if errors.Is(err, ErrInvalidTransition) {
		// A concurrent duplicate won the race; if the ticket landed in
		// the event's target state the delivery still counts as applied.
		if t, getErr := e.GetTicket(ticketID); getErr == nil && t.Status == evt.NewStatus {
			return nil
		}
	}
	return err
}
