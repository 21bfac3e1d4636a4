package kds

import (
	"sort"

	"github.com/appetiteclub/kds/pkg/enums/ticketstatus"
)

// StationMetrics is one station's live load picture. Wait times are in
// seconds; over-capacity is advisory and never blocks ticket creation.
type StationMetrics struct {
	Station        string  `json:"station"`
	TicketCount    int     `json:"ticket_count"`
	LoadPercentage int     `json:"load_percentage"`
	OverCapacity   bool    `json:"over_capacity"`
	AverageWait    float64 `json:"average_wait_seconds"`
}

type Metrics struct {
	TotalActiveTickets int              `json:"total_active_tickets"`
	AverageTicketTime  float64          `json:"average_ticket_time_seconds"`
	LongestWaitTime    float64          `json:"longest_wait_time_seconds"`
	Stations           []StationMetrics `json:"stations"`
}

// Metrics computes the live load snapshot and refreshes the broadcaster
// cache with it.
func (e *Engine) Metrics() *Metrics {
	now := e.clock()

	e.mu.RLock()
	type stationAccum struct {
		count int
		total float64
	}
	perStation := make(map[string]*stationAccum)
	m := &Metrics{}
	var totalWait float64
	for _, t := range e.tickets {
		if t.Status == ticketstatus.Statuses.Completed.Code() {
			continue
		}
		wait := t.Elapsed(now).Seconds()
		m.TotalActiveTickets++
		totalWait += wait
		if wait > m.LongestWaitTime {
			m.LongestWaitTime = wait
		}
		acc := perStation[t.Station]
		if acc == nil {
			acc = &stationAccum{}
			perStation[t.Station] = acc
		}
		acc.count++
		acc.total += wait
	}
	e.mu.RUnlock()

	if m.TotalActiveTickets > 0 {
		m.AverageTicketTime = totalWait / float64(m.TotalActiveTickets)
	}

	for _, cfg := range e.registry.All() {
		acc := perStation[cfg.Code]
		sm := StationMetrics{Station: cfg.Code}
		if acc != nil {
			sm.TicketCount = acc.count
			sm.AverageWait = acc.total / float64(acc.count)
		}
		sm.LoadPercentage = LoadPercentage(sm.TicketCount, cfg.MaxCapacity)
		sm.OverCapacity = OverCapacity(sm.TicketCount, cfg.MaxCapacity)
		m.Stations = append(m.Stations, sm)
	}
	// Stations not in the registry can still hold transferred legacy
	// tickets; surface them so their load is not invisible.
	var extra []string
	for code := range perStation {
		if e.registry.Get(code) == nil {
			extra = append(extra, code)
		}
	}
	sort.Strings(extra)
	for _, code := range extra {
		acc := perStation[code]
		m.Stations = append(m.Stations, StationMetrics{
			Station:     code,
			TicketCount: acc.count,
			AverageWait: acc.total / float64(acc.count),
		})
	}

	e.broadcaster.SetMetrics(m)
	return m
}
