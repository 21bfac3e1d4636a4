package kds

import (
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/enums/urgency"
	"github.com/google/uuid"
)

const (
	DefaultWarningThreshold = 600 * time.Second
	DefaultUrgentThreshold  = 900 * time.Second
)

// Thresholds are the two elapsed-time cutoffs a station view escalates
// at. Independently configurable per view.
type Thresholds struct {
	Warning time.Duration
	Urgent  time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warning: DefaultWarningThreshold, Urgent: DefaultUrgentThreshold}
}

// LoadThresholds reads per-deployment overrides in seconds.
func LoadThresholds(config *apt.Config) Thresholds {
	th := DefaultThresholds()
	if config == nil {
		return th
	}
	if v, _ := config.GetString("kds.warning_threshold"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			th.Warning = d
		}
	}
	if v, _ := config.GetString("kds.urgent_threshold"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			th.Urgent = d
		}
	}
	return th
}

// UrgencyFromElapsed maps elapsed time to an escalation tier. Monotonic
// by construction: the urgent check runs before the warning check, so a
// growing elapsed value can only move the result upward.
func UrgencyFromElapsed(elapsed time.Duration, th Thresholds) string {
	switch {
	case elapsed >= th.Urgent:
		return urgency.Urgencies.Urgent.Code()
	case elapsed >= th.Warning:
		return urgency.Urgencies.Warning.Code()
	default:
		return urgency.Urgencies.Normal.Code()
	}
}

// AlertTracker remembers which urgency thresholds each ticket has
// already crossed, so the one-shot sound/alert side effect fires exactly
// once per ticket per threshold instead of on every tick.
type AlertTracker struct {
	mu      sync.Mutex
	crossed map[uuid.UUID]map[string]bool
}

func NewAlertTracker() *AlertTracker {
	return &AlertTracker{crossed: make(map[uuid.UUID]map[string]bool)}
}

// Crossed records that the ticket reached the given urgency tier and
// reports whether this is the first time. The normal tier never alerts.
func (a *AlertTracker) Crossed(ticketID TicketID, tier string) bool {
	if tier == urgency.Urgencies.Normal.Code() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	tiers := a.crossed[ticketID]
	if tiers == nil {
		tiers = make(map[string]bool)
		a.crossed[ticketID] = tiers
	}
	if tiers[tier] {
		return false
	}
	tiers[tier] = true
	return true
}

// Forget drops a ticket's crossing state. Called when the ticket leaves
// the live queue; a recalled ticket keeps its history so it does not
// re-alert thresholds it already announced.
func (a *AlertTracker) Forget(ticketID TicketID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.crossed, ticketID)
}
