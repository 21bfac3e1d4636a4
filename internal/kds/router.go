package kds

import (
	"strings"

	"github.com/appetiteclub/kds/pkg/enums/station"
)

// routeRule maps a lookup key to a station code. Rules live in slices,
// not maps: substring matching scans in declaration order and the first
// hit wins, which a map cannot guarantee.
type routeRule struct {
	Key     string
	Station string
}

// Router assigns order items to stations. Routing is pure and total:
// the same tables and item always produce the same station, and an item
// nothing matches lands on expo.
type Router struct {
	nameRules     []routeRule
	categoryRules []routeRule
	fallback      string
}

func NewRouter(nameRules, categoryRules []routeRule) *Router {
	return &Router{
		nameRules:     nameRules,
		categoryRules: categoryRules,
		fallback:      station.Stations.Expo.Code(),
	}
}

// DefaultRouter carries the house routing tables.
func DefaultRouter() *Router {
	grill := station.Stations.Grill.Code()
	fryer := station.Stations.Fryer.Code()
	salad := station.Stations.Salad.Code()
	pantry := station.Stations.Pantry.Code()
	dessert := station.Stations.Dessert.Code()
	beverage := station.Stations.Beverage.Code()

	nameRules := []routeRule{
		{Key: "burger", Station: grill},
		{Key: "steak", Station: grill},
		{Key: "chicken breast", Station: grill},
		{Key: "ribs", Station: grill},
		{Key: "hot dog", Station: grill},
		{Key: "fries", Station: fryer},
		{Key: "wings", Station: fryer},
		{Key: "onion rings", Station: fryer},
		{Key: "mozzarella sticks", Station: fryer},
		{Key: "tenders", Station: fryer},
		{Key: "caesar", Station: salad},
		{Key: "salad", Station: salad},
		{Key: "coleslaw", Station: salad},
		{Key: "sandwich", Station: pantry},
		{Key: "wrap", Station: pantry},
		{Key: "soup", Station: pantry},
		{Key: "cake", Station: dessert},
		{Key: "pie", Station: dessert},
		{Key: "sundae", Station: dessert},
		{Key: "ice cream", Station: dessert},
		{Key: "soda", Station: beverage},
		{Key: "coffee", Station: beverage},
		{Key: "tea", Station: beverage},
		{Key: "shake", Station: beverage},
	}

	categoryRules := []routeRule{
		{Key: "grill", Station: grill},
		{Key: "fried", Station: fryer},
		{Key: "salads", Station: salad},
		{Key: "cold", Station: pantry},
		{Key: "desserts", Station: dessert},
		{Key: "drinks", Station: beverage},
		{Key: "beverages", Station: beverage},
	}

	return NewRouter(nameRules, categoryRules)
}

// Route resolves the destination station for an item. Match order:
// exact name, name substring, exact category, category substring, expo.
func (r *Router) Route(item OrderItem) string {
	name := normalizeKey(item.Name)
	if name != "" {
		for _, rule := range r.nameRules {
			if normalizeKey(rule.Key) == name {
				return rule.Station
			}
		}
		for _, rule := range r.nameRules {
			if strings.Contains(name, normalizeKey(rule.Key)) {
				return rule.Station
			}
		}
	}

	category := normalizeKey(item.Category)
	if category != "" {
		for _, rule := range r.categoryRules {
			if normalizeKey(rule.Key) == category {
				return rule.Station
			}
		}
		for _, rule := range r.categoryRules {
			if strings.Contains(category, normalizeKey(rule.Key)) {
				return rule.Station
			}
		}
	}

	return r.fallback
}

// Resolve returns the item's pre-tagged station when set, otherwise routes.
func (r *Router) Resolve(item OrderItem) string {
	if item.Station != "" {
		return item.Station
	}
	return r.Route(item)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
