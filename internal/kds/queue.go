package kds

import (
	"sort"
	"strconv"

	"github.com/appetiteclub/kds/pkg/enums/priority"
	"github.com/appetiteclub/kds/pkg/enums/sortmode"
)

// SortTickets orders a station queue in place. Fired tickets always
// sort strictly before non-fired tickets; within each partition the
// mode's comparator applies, and start time ascending is the universal
// final tie-break so the ordering is total.
func SortTickets(tickets []*Ticket, mode sortmode.SortMode) {
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]

		if a.IsFired != b.IsFired {
			return a.IsFired
		}

		switch mode.Code() {
		case sortmode.Modes.Priority.Code():
			ra, rb := priority.Rank(a.Priority), priority.Rank(b.Priority)
			if ra != rb {
				return ra < rb
			}
		case sortmode.Modes.Table.Code():
			na, aok := tableNumber(a.TableNumber)
			nb, bok := tableNumber(b.TableNumber)
			switch {
			case aok && bok && na != nb:
				return na < nb
			case aok != bok:
				// Numeric tables sort before walk-ins and to-go tickets.
				return aok
			}
		case sortmode.Modes.Server.Code():
			if a.ServerName != b.ServerName {
				return a.ServerName < b.ServerName
			}
		}

		return a.StartTime.Before(b.StartTime)
	})
}

func tableNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LoadPercentage expresses queue depth against station capacity, capped
// at 100 for display gauges.
func LoadPercentage(ticketCount, maxCapacity int) int {
	if maxCapacity <= 0 {
		return 0
	}
	pct := ticketCount * 100 / maxCapacity
	if pct > 100 {
		return 100
	}
	return pct
}

// OverCapacity is advisory: it drives display alerts and never blocks
// ticket creation.
func OverCapacity(ticketCount, maxCapacity int) bool {
	return maxCapacity > 0 && ticketCount > maxCapacity
}
