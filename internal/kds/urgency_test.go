package kds

import (
	"testing"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/urgency"
	"github.com/google/uuid"
)

func TestUrgencyFromElapsed(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name     string
		elapsed  time.Duration
		expected string
	}{
		{name: "zeroIsNormal", elapsed: 0, expected: "normal"},
		{name: "justUnderWarning", elapsed: 599 * time.Second, expected: "normal"},
		{name: "atWarningThreshold", elapsed: 600 * time.Second, expected: "warning"},
		{name: "betweenThresholds", elapsed: 750 * time.Second, expected: "warning"},
		{name: "justUnderUrgent", elapsed: 899 * time.Second, expected: "warning"},
		{name: "atUrgentThreshold", elapsed: 900 * time.Second, expected: "urgent"},
		{name: "wellPastUrgent", elapsed: 2 * time.Hour, expected: "urgent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UrgencyFromElapsed(tt.elapsed, th); got != tt.expected {
				t.Errorf("UrgencyFromElapsed(%v) = %q, want %q", tt.elapsed, got, tt.expected)
			}
		})
	}
}

func TestUrgencyMonotonicity(t *testing.T) {
	// Urgency never decreases as elapsed time grows under fixed thresholds.
	th := Thresholds{Warning: 120 * time.Second, Urgent: 300 * time.Second}

	prev := -1
	for elapsed := time.Duration(0); elapsed <= 400*time.Second; elapsed += time.Second {
		tier := urgency.ByName(UrgencyFromElapsed(elapsed, th))
		if tier == nil {
			t.Fatalf("UrgencyFromElapsed(%v) returned unknown tier", elapsed)
		}
		if tier.Level < prev {
			t.Fatalf("urgency decreased at %v: level %d after %d", elapsed, tier.Level, prev)
		}
		prev = tier.Level
	}
}

func TestTicketElapsedNeverNegative(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ticket := &Ticket{StartTime: start}

	if got := ticket.Elapsed(start.Add(-time.Minute)); got != 0 {
		t.Errorf("Elapsed() before start = %v, want 0", got)
	}
	if got := ticket.Elapsed(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 90s", got)
	}
}

func TestAlertTrackerFiresOncePerTierPerTicket(t *testing.T) {
	tracker := NewAlertTracker()
	ticketID := uuid.New()

	if !tracker.Crossed(ticketID, "warning") {
		t.Error("first warning crossing should fire")
	}
	for i := 0; i < 5; i++ {
		if tracker.Crossed(ticketID, "warning") {
			t.Fatal("repeat warning crossing fired again")
		}
	}
	if !tracker.Crossed(ticketID, "urgent") {
		t.Error("first urgent crossing should fire")
	}
	if tracker.Crossed(ticketID, "urgent") {
		t.Error("repeat urgent crossing fired again")
	}

	other := uuid.New()
	if !tracker.Crossed(other, "warning") {
		t.Error("crossing state leaked between tickets")
	}
}

func TestAlertTrackerNormalNeverFires(t *testing.T) {
	tracker := NewAlertTracker()
	if tracker.Crossed(uuid.New(), "normal") {
		t.Error("normal tier must never raise an alert")
	}
}

func TestAlertTrackerForget(t *testing.T) {
	tracker := NewAlertTracker()
	ticketID := uuid.New()

	tracker.Crossed(ticketID, "warning")
	tracker.Forget(ticketID)

	if !tracker.Crossed(ticketID, "warning") {
		t.Error("Forget() should reset crossing state")
	}
}
