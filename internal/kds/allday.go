package kds

import (
	"math"
	"sort"
	"strings"

	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
)

// AllDayItem is a running production total for one item variant: same
// name, same station, same modifier set. Recomputed in full from the
// live order set on every request, so there is no aggregate state to
// drift.
type AllDayItem struct {
	Name     string `json:"name"`
	Station  string `json:"station"`
	// Modifiers is the canonical (sorted) modifier name list that keys
	// this variant.
	Modifiers         []string       `json:"modifiers,omitempty"`
	TotalQuantity     int            `json:"total_quantity"`
	CompletedQuantity int            `json:"completed_quantity"`
	PendingQuantity   int            `json:"pending_quantity"`
	AverageCookTime   float64        `json:"average_cook_time"`
	ModifierCounts    map[string]int `json:"modifier_counts,omitempty"`
	Allergens         []string       `json:"allergens,omitempty"`
	CompletionPercent int            `json:"completion_percent"`
}

// AllDay folds every item of every live order into per-variant totals.
// An empty station filter covers all stations. Output order is stable:
// station position, then item name, then modifier key.
func (e *Engine) AllDay(stationFilter []string) []AllDayItem {
	wanted := map[string]bool{}
	for _, s := range stationFilter {
		wanted[s] = true
	}

	orders := e.Orders()

	type accum struct {
		item      AllDayItem
		cookTotal float64 // quantity-weighted cook time sum
		allergens map[string]bool
	}
	byKey := make(map[string]*accum)

	for _, o := range orders {
		if o.Status == ticketstatus.Statuses.Cancelled.Code() {
			continue
		}
		completed := o.Status == ticketstatus.Statuses.Completed.Code()
		for _, item := range o.Items {
			station := e.router.Resolve(item)
			if len(wanted) > 0 && !wanted[station] {
				continue
			}

			mods := canonicalModifiers(item.Modifiers)
			key := item.Name + "\x00" + station + "\x00" + strings.Join(mods, "\x00")
			acc := byKey[key]
			if acc == nil {
				acc = &accum{
					item: AllDayItem{
						Name:           item.Name,
						Station:        station,
						Modifiers:      mods,
						ModifierCounts: make(map[string]int),
					},
					allergens: make(map[string]bool),
				}
				byKey[key] = acc
			}

			acc.item.TotalQuantity += item.Quantity
			if completed {
				acc.item.CompletedQuantity += item.Quantity
			} else {
				acc.item.PendingQuantity += item.Quantity
			}
			// True quantity-weighted average, not first-contributor's
			// value; see DESIGN.md.
			acc.cookTotal += float64(item.CookTime) * float64(item.Quantity)
			for _, m := range item.Modifiers {
				acc.item.ModifierCounts[m.Name] += item.Quantity
			}
			for _, a := range item.Allergens {
				acc.allergens[a] = true
			}
		}
	}

	items := make([]AllDayItem, 0, len(byKey))
	for _, acc := range byKey {
		it := acc.item
		if it.TotalQuantity > 0 {
			it.AverageCookTime = acc.cookTotal / float64(it.TotalQuantity)
			it.CompletionPercent = int(math.Round(float64(it.CompletedQuantity) / float64(it.TotalQuantity) * 100))
		}
		if len(acc.allergens) > 0 {
			for a := range acc.allergens {
				it.Allergens = append(it.Allergens, a)
			}
			sort.Strings(it.Allergens)
		}
		if len(it.ModifierCounts) == 0 {
			it.ModifierCounts = nil
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		pa, pb := e.registry.Position(a.Station), e.registry.Position(b.Station)
		if pa != pb {
			return pa < pb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return strings.Join(a.Modifiers, ",") < strings.Join(b.Modifiers, ",")
	})
	return items
}

func canonicalModifiers(mods []Modifier) []string {
	if len(mods) == 0 {
		return nil
	}
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Name
	}
	sort.Strings(names)
	return names
}
