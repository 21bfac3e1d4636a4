package kds

import (
	"time"

	"github.com/google/uuid"
)

type OrderID = uuid.UUID
type OrderItemID = uuid.UUID
type TicketID = uuid.UUID

type Modifier struct {
	Name     string  `bson:"name" json:"name"`
	Price    float64 `bson:"price" json:"price"`
	Optional bool    `bson:"optional" json:"optional"`
}

// OrderItem is a single line of an order. Immutable after placement:
// re-routing an item means cutting a new ticket, never mutating the
// item in place.
type OrderItem struct {
	ID       OrderItemID `bson:"_id" json:"id"`
	OrderID  OrderID     `bson:"order_id" json:"order_id"`
	Name     string      `bson:"name" json:"name"`
	Quantity int         `bson:"quantity" json:"quantity"`
	Category string      `bson:"category,omitempty" json:"category,omitempty"`
	// Station is the pre-tagged destination; empty means the router decides.
	Station             string     `bson:"station,omitempty" json:"station,omitempty"`
	CookTime            int        `bson:"cook_time" json:"cook_time"`
	Modifiers           []Modifier `bson:"modifiers,omitempty" json:"modifiers,omitempty"`
	SpecialInstructions string     `bson:"special_instructions,omitempty" json:"special_instructions,omitempty"`
	Allergens           []string   `bson:"allergens,omitempty" json:"allergens,omitempty"`
	IsRush              bool       `bson:"is_rush" json:"is_rush"`
}

// Order aggregates the items of one guest check. Status and priority
// mutate only through engine transitions; everything else is fixed at
// placement.
type Order struct {
	ID       OrderID `bson:"_id" json:"id"`
	Number   string  `bson:"number" json:"number"`
	Status   string  `bson:"status" json:"status"`
	Priority string  `bson:"priority" json:"priority"`
	// Channel is the order source: dine-in, takeout, delivery, drive-thru.
	Channel             string      `bson:"channel,omitempty" json:"channel,omitempty"`
	CustomerName        string      `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	TableNumber         string      `bson:"table_number,omitempty" json:"table_number,omitempty"`
	ServerName          string      `bson:"server_name,omitempty" json:"server_name,omitempty"`
	Items               []OrderItem `bson:"items" json:"items"`
	AllergenWarnings    []string    `bson:"allergen_warnings,omitempty" json:"allergen_warnings,omitempty"`
	SpecialInstructions string      `bson:"special_instructions,omitempty" json:"special_instructions,omitempty"`
	CreatedAt           time.Time   `bson:"created_at" json:"created_at"`
}

// CollectAllergens returns the union of item allergens, deduplicated in
// first appearance order. Stored on the order as its aggregate warning set.
func CollectAllergens(items []OrderItem) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		for _, a := range item.Allergens {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}
