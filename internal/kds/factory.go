package kds

import (
	"github.com/appetiteclub/kds/pkg/enums/priority"
	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
)

// BuildTickets cuts one ticket per station the order touches. Station
// first-appearance order becomes the ticket position. Pure transform:
// persistence and queue admission are the engine's concern.
func BuildTickets(order *Order, router *Router) []*Ticket {
	byStation := make(map[string]*Ticket)
	var stations []string

	for _, item := range order.Items {
		code := router.Resolve(item)
		ticket, ok := byStation[code]
		if !ok {
			ticket = &Ticket{
				ID:          newTicketID(),
				OrderID:     order.ID,
				Station:     code,
				Status:      ticketstatus.Statuses.Pending.Code(),
				Priority:    order.Priority,
				StartTime:   order.CreatedAt,
				IsFired:     firesOnPlacement(order.Priority),
				Position:    len(stations),
				OrderNumber: order.Number,
				TableNumber: order.TableNumber,
				ServerName:  order.ServerName,
			}
			byStation[code] = ticket
			stations = append(stations, code)
		}
		ticket.Items = append(ticket.Items, item)
		if item.CookTime > ticket.CookTime {
			ticket.CookTime = item.CookTime
		}
	}

	tickets := make([]*Ticket, 0, len(stations))
	for _, code := range stations {
		tickets = append(tickets, byStation[code])
	}
	return tickets
}

// firesOnPlacement reports whether an order priority starts its tickets
// fired. Fired tickets jump the queue from the moment they print.
func firesOnPlacement(p string) bool {
	return p == priority.Priorities.Fire.Code() || p == priority.Priorities.Rush.Code()
}
