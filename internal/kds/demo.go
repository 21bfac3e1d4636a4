package kds

import (
	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/enums/priority"
	"github.com/google/uuid"
)

// ApplyDemoOrders places a deterministic batch of sample orders so a
// freshly started display has something to show. Enabled with kds.demo.
func ApplyDemoOrders(engine *Engine, config *apt.Config, logger apt.Logger) error {
	if config == nil {
		return nil
	}
	if enabled, _ := config.GetString("kds.demo"); enabled != "true" {
		return nil
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	logger.Info("Applying demo orders")
	for _, order := range buildDemoOrders() {
		if _, _, err := engine.PlaceOrder(order); err != nil {
			logger.Errorf("Failed to place demo order %s: %v", order.Number, err)
			return err
		}
	}
	logger.Infof("Demo orders applied, %d orders live", len(engine.Orders()))
	return nil
}

func buildDemoOrders() []*Order {
	return []*Order{
		{
			ID:          uuid.MustParse("9a1f0000-0000-0000-0000-000000000001"),
			Number:      "101",
			Priority:    priority.Priorities.Normal.Code(),
			Channel:     "dine-in",
			TableNumber: "4",
			ServerName:  "dana",
			Items: []OrderItem{
				{ID: uuid.New(), Name: "Smash Burger", Quantity: 2, Category: "grill", CookTime: 8,
					Modifiers: []Modifier{{Name: "no onion"}, {Name: "extra cheese", Price: 1.5}},
					Allergens: []string{"dairy", "gluten"}},
				{ID: uuid.New(), Name: "Fries", Quantity: 1, Category: "fried", CookTime: 5},
			},
		},
		{
			ID:         uuid.MustParse("9a1f0000-0000-0000-0000-000000000002"),
			Number:     "102",
			Priority:   priority.Priorities.Rush.Code(),
			Channel:    "takeout",
			ServerName: "li",
			Items: []OrderItem{
				{ID: uuid.New(), Name: "Caesar Salad", Quantity: 1, Category: "salads", CookTime: 4,
					Modifiers: []Modifier{{Name: "no croutons"}}, Allergens: []string{"egg"}},
				{ID: uuid.New(), Name: "Chocolate Cake", Quantity: 1, Category: "desserts", CookTime: 3,
					Allergens: []string{"dairy", "gluten"}},
			},
		},
		{
			ID:          uuid.MustParse("9a1f0000-0000-0000-0000-000000000003"),
			Number:      "103",
			Priority:    priority.Priorities.Normal.Code(),
			Channel:     "dine-in",
			TableNumber: "7",
			ServerName:  "dana",
			Items: []OrderItem{
				{ID: uuid.New(), Name: "Wings", Quantity: 3, Category: "fried", CookTime: 12,
					Modifiers: []Modifier{{Name: "extra hot"}}},
				{ID: uuid.New(), Name: "Iced Tea", Quantity: 2, Category: "drinks", CookTime: 1},
			},
		},
	}
}
