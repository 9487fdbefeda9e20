package alert

import (
	"context"
	"testing"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
	"github.com/hedgewatch/hedgewatch/internal/storage"
)

type recordingNotifier struct {
	sends    []string
	requires []bool
}

func (n *recordingNotifier) Send(_ context.Context, _ models.Severity, message string, requireAck bool) error {
	n.sends = append(n.sends, message)
	n.requires = append(n.requires, requireAck)
	return nil
}

func newTestGovernor(t *testing.T) (*Governor, *recordingNotifier, *time.Time) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notifier := &recordingNotifier{}
	gov := NewGovernor(store, notifier, Config{
		OpportunityDedupe: 6 * time.Hour,
		OpportunityRefire: 10,
		CriticalResend:    15 * time.Minute,
		InfoDedupe:        6 * time.Hour,
	})
	now := time.Date(2025, 8, 29, 14, 0, 0, 0, time.UTC)
	gov.now = func() time.Time { return now }
	return gov, notifier, &now
}

func TestOpportunityDedupeWindow(t *testing.T) {
	gov, notifier, now := newTestGovernor(t)
	ctx := context.Background()

	sent, err := gov.Trigger(ctx, models.SeverityOpportunity, "HOOD", "switch to HOOD", "opportunity:HOOD", 25)
	if err != nil || !sent {
		t.Fatalf("first trigger: sent=%v err=%v", sent, err)
	}

	// Same condition 1h later, advantage barely moved: suppressed.
	*now = now.Add(time.Hour)
	sent, err = gov.Trigger(ctx, models.SeverityOpportunity, "HOOD", "switch to HOOD", "opportunity:HOOD", 27)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if sent {
		t.Error("expected dedupe within 6h window")
	}

	// Advantage grew by 10 points: refire overrides the window.
	sent, err = gov.Trigger(ctx, models.SeverityOpportunity, "HOOD", "switch to HOOD", "opportunity:HOOD", 35)
	if err != nil || !sent {
		t.Errorf("refire on grown advantage: sent=%v err=%v", sent, err)
	}

	// Past the window a plain re-trigger sends again.
	*now = now.Add(7 * time.Hour)
	sent, err = gov.Trigger(ctx, models.SeverityOpportunity, "HOOD", "switch to HOOD", "opportunity:HOOD", 36)
	if err != nil || !sent {
		t.Errorf("re-trigger after window: sent=%v err=%v", sent, err)
	}

	if len(notifier.sends) != 3 {
		t.Errorf("expected 3 deliveries, got %d", len(notifier.sends))
	}
}

func TestInfoDedupe(t *testing.T) {
	gov, notifier, now := newTestGovernor(t)
	ctx := context.Background()

	gov.Trigger(ctx, models.SeverityInfo, "HOOD", "approaching hurdle", "approach:HOOD", 12)
	*now = now.Add(time.Hour)
	gov.Trigger(ctx, models.SeverityInfo, "HOOD", "approaching hurdle", "approach:HOOD", 14)
	if len(notifier.sends) != 1 {
		t.Fatalf("expected 1 delivery inside window, got %d", len(notifier.sends))
	}

	*now = now.Add(6 * time.Hour)
	gov.Trigger(ctx, models.SeverityInfo, "HOOD", "approaching hurdle", "approach:HOOD", 14)
	if len(notifier.sends) != 2 {
		t.Errorf("expected second delivery after window, got %d", len(notifier.sends))
	}
}

func TestCriticalResendUntilAcknowledged(t *testing.T) {
	gov, notifier, now := newTestGovernor(t)
	ctx := context.Background()

	sent, err := gov.Trigger(ctx, models.SeverityCritical, "TSLA", "TSLA failed safety gates", "critical:TSLA:gates", 0)
	if err != nil || !sent {
		t.Fatalf("critical trigger: sent=%v err=%v", sent, err)
	}
	if !notifier.requires[0] {
		t.Error("expected CRITICAL delivery to require ack")
	}

	// Three resend cadences elapse without acknowledgement.
	for i := 0; i < 3; i++ {
		*now = now.Add(15 * time.Minute)
		if err := gov.Pump(ctx); err != nil {
			t.Fatalf("pump %d: %v", i, err)
		}
	}
	if len(notifier.sends) != 4 {
		t.Fatalf("expected initial send + 3 resends, got %d", len(notifier.sends))
	}

	// Re-trigger of the same condition never appends a second event.
	sent, _ = gov.Trigger(ctx, models.SeverityCritical, "TSLA", "TSLA failed safety gates", "critical:TSLA:gates", 0)
	if sent {
		t.Error("expected duplicate CRITICAL condition to be suppressed")
	}

	// Acknowledge, then no further resends for that condition.
	events, err := gov.store.UnacknowledgedCriticals()
	if err != nil || len(events) != 1 {
		t.Fatalf("unacked criticals: %v %d", err, len(events))
	}
	if err := gov.Acknowledge(events[0].ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	*now = now.Add(time.Hour)
	gov.Pump(ctx)
	if len(notifier.sends) != 4 {
		t.Errorf("expected no resends after acknowledgement, got %d", len(notifier.sends))
	}

	// A different dedupe key is a new, independent condition.
	sent, err = gov.Trigger(ctx, models.SeverityCritical, "TSLA", "TSLA divergence breached", "critical:TSLA:divergence", 0)
	if err != nil || !sent {
		t.Errorf("independent critical: sent=%v err=%v", sent, err)
	}
}

func TestPumpRespectsCadence(t *testing.T) {
	gov, notifier, now := newTestGovernor(t)
	ctx := context.Background()

	gov.Trigger(ctx, models.SeverityCritical, "TSLA", "TSLA failed safety gates", "critical:TSLA:gates", 0)

	// 5 minutes in, cadence not yet elapsed.
	*now = now.Add(5 * time.Minute)
	gov.Pump(ctx)
	if len(notifier.sends) != 1 {
		t.Errorf("expected no resend before cadence, got %d sends", len(notifier.sends))
	}
}
