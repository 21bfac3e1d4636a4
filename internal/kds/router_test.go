package kds

import (
	"testing"

	"github.com/appetiteclub/kds/pkg/enums/station"
)

func TestRouterRoute(t *testing.T) {
	router := DefaultRouter()

	tests := []struct {
		name     string
		item     OrderItem
		expected string
	}{
		{
			name:     "exactNameMatch",
			item:     OrderItem{Name: "Fries"},
			expected: "fryer",
		},
		{
			name:     "exactNameMatchTrimsAndLowercases",
			item:     OrderItem{Name: "  STEAK  "},
			expected: "grill",
		},
		{
			name:     "nameSubstringMatch",
			item:     OrderItem{Name: "Double Bacon Burger"},
			expected: "grill",
		},
		{
			name:     "nameSubstringFirstDeclaredWins",
			item:     OrderItem{Name: "burger with fries"},
			expected: "grill",
		},
		{
			name:     "categoryExactMatch",
			item:     OrderItem{Name: "Mystery Special", Category: "fried"},
			expected: "fryer",
		},
		{
			name:     "categorySubstringMatch",
			item:     OrderItem{Name: "Mystery Special", Category: "house drinks"},
			expected: "beverage",
		},
		{
			name:     "nameBeatsCategory",
			item:     OrderItem{Name: "Caesar Salad", Category: "drinks"},
			expected: "salad",
		},
		{
			name:     "unroutableFallsBackToExpo",
			item:     OrderItem{Name: "Chef Surprise", Category: "specials"},
			expected: "expo",
		},
		{
			name:     "emptyItemFallsBackToExpo",
			item:     OrderItem{},
			expected: "expo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := router.Route(tt.item)
			if got != tt.expected {
				t.Errorf("Route(%q/%q) = %q, want %q", tt.item.Name, tt.item.Category, got, tt.expected)
			}
		})
	}
}

func TestRouterRouteIsDeterministic(t *testing.T) {
	router := DefaultRouter()
	item := OrderItem{Name: "chicken tenders wrap"}

	first := router.Route(item)
	for i := 0; i < 100; i++ {
		if got := router.Route(item); got != first {
			t.Fatalf("Route() not deterministic: got %q then %q", first, got)
		}
	}
}

func TestRouterRouteIsTotal(t *testing.T) {
	// Every item resolves to some configured station, whatever the input.
	router := DefaultRouter()
	items := []OrderItem{
		{Name: "burger"},
		{Name: "???", Category: "???"},
		{Name: "", Category: ""},
		{Name: "   "},
		{Name: "BURGER AND FRIES AND CAKE"},
	}

	for _, item := range items {
		code := router.Route(item)
		if station.ByName(code) == nil {
			t.Errorf("Route(%q) = %q, not a known station", item.Name, code)
		}
	}
}

func TestRouterDeclarationOrder(t *testing.T) {
	// Substring scanning walks rules in declaration order; the first
	// declared hit wins even when a later rule also matches.
	router := NewRouter([]routeRule{
		{Key: "special", Station: "pantry"},
		{Key: "burger special", Station: "grill"},
	}, nil)

	if got := router.Route(OrderItem{Name: "burger special deluxe"}); got != "pantry" {
		t.Errorf("Route() = %q, want first-declared rule station %q", got, "pantry")
	}
}

func TestRouterResolve(t *testing.T) {
	router := DefaultRouter()

	tagged := OrderItem{Name: "Fries", Station: "grill"}
	if got := router.Resolve(tagged); got != "grill" {
		t.Errorf("Resolve() = %q, want pre-tagged station %q", got, "grill")
	}

	untagged := OrderItem{Name: "Fries"}
	if got := router.Resolve(untagged); got != "fryer" {
		t.Errorf("Resolve() = %q, want routed station %q", got, "fryer")
	}
}
