package event

import "time"

const (
	KDSTopic = "kds.events"

	EventNewOrder      = "new_order"
	EventTicketUpdate  = "ticket_update"
	EventOrderComplete = "order_complete"
	EventStationChange = "station_change"
	EventSystemAlert   = "system_alert"
)

// Types returns every event type the engine emits, in a fixed order.
func Types() []string {
	return []string{
		EventNewOrder,
		EventTicketUpdate,
		EventOrderComplete,
		EventStationChange,
		EventSystemAlert,
	}
}

type Metadata struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Source identifies the emitting engine instance so a relay can
	// skip events it published itself.
	Source     string    `json:"source,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	TicketID   string    `json:"ticket_id,omitempty"`
	Station    string    `json:"station,omitempty"`

	// Denormalized data for display headers
	OrderNumber string `json:"order_number,omitempty"`
	TableNumber string `json:"table_number,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
}

type TicketEvent struct {
	Metadata
	NewStatus      string     `json:"new_status,omitempty"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	IsFired        bool       `json:"is_fired,omitempty"`
	IsRecalled     bool       `json:"is_recalled,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type OrderEvent struct {
	Metadata
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	TicketCount int    `json:"ticket_count,omitempty"`
}

type AlertEvent struct {
	Metadata
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
}
