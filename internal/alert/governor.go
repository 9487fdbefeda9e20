// Package alert governs notification emission: deduplication windows per
// severity, CRITICAL escalation until acknowledged, and the append-only alert
// log that makes every decision reconstructable after a restart.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hedgewatch/hedgewatch/internal/logger"
	"github.com/hedgewatch/hedgewatch/internal/models"
)

// Notifier delivers one message. requireAck selects the escalated delivery
// path for CRITICAL resends.
type Notifier interface {
	Send(ctx context.Context, severity models.Severity, message string, requireAck bool) error
}

// Store is the slice of the persistence layer the governor needs. The alert
// log is its only state; nothing here survives in memory across restarts.
type Store interface {
	AppendAlert(a *models.AlertEvent) error
	TouchAlert(id string, sentAt time.Time) error
	LatestAlertByKey(key string) (*models.AlertEvent, error)
	UnacknowledgedCriticals() ([]*models.AlertEvent, error)
	AcknowledgeAlert(id string) error
}

// Config holds the dedupe and escalation windows.
type Config struct {
	OpportunityDedupe time.Duration
	OpportunityRefire models.APR // advantage growth that overrides the window
	CriticalResend    time.Duration
	InfoDedupe        time.Duration
}

// Governor decides whether a triggering condition becomes a send.
type Governor struct {
	store    Store
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewGovernor creates a governor over the given alert log and transport.
func NewGovernor(store Store, notifier Notifier, cfg Config) *Governor {
	return &Governor{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// Trigger evaluates one condition against the log and sends when dedupe rules
// permit. Returns whether a notification was attempted. Delivery failures do
// not roll the log back; the transport owns its own retries.
func (g *Governor) Trigger(ctx context.Context, severity models.Severity, ticker, message, dedupeKey string, advantage models.APR) (bool, error) {
	prior, err := g.store.LatestAlertByKey(dedupeKey)
	if err != nil {
		return false, err
	}
	now := g.now()

	if prior != nil && !g.permits(severity, prior, advantage, now) {
		return false, nil
	}

	event := &models.AlertEvent{
		ID:           uuid.New().String(),
		Severity:     severity,
		Ticker:       ticker,
		Message:      message,
		DedupeKey:    dedupeKey,
		AdvantageAPR: advantage,
		CreatedAt:    now,
		LastSentAt:   now,
		SendCount:    1,
	}
	if err := g.store.AppendAlert(event); err != nil {
		return false, err
	}

	g.deliver(ctx, severity, message)
	return true, nil
}

// permits applies the per-severity dedupe policy against the latest event for
// the same key.
func (g *Governor) permits(severity models.Severity, prior *models.AlertEvent, advantage models.APR, now time.Time) bool {
	switch severity {
	case models.SeverityOpportunity:
		if now.Sub(prior.LastSentAt) >= g.cfg.OpportunityDedupe {
			return true
		}
		return advantage-prior.AdvantageAPR >= g.cfg.OpportunityRefire
	case models.SeverityInfo:
		return now.Sub(prior.LastSentAt) >= g.cfg.InfoDedupe
	case models.SeverityCritical:
		// An unacknowledged CRITICAL is resent by Pump, not re-appended.
		// Once acknowledged the same condition stays quiet; only a new
		// dedupe key (different reason or ticker) alerts again.
		return false
	}
	return false
}

// Pump resends every unacknowledged CRITICAL whose resend cadence has
// elapsed. Called from the fast refresh loop so the cadence holds between
// decision cycles.
func (g *Governor) Pump(ctx context.Context) error {
	criticals, err := g.store.UnacknowledgedCriticals()
	if err != nil {
		return err
	}
	now := g.now()
	for _, event := range criticals {
		if now.Sub(event.LastSentAt) < g.cfg.CriticalResend {
			continue
		}
		if err := g.store.TouchAlert(event.ID, now); err != nil {
			return err
		}
		g.deliver(ctx, models.SeverityCritical, event.Message)
	}
	return nil
}

// Acknowledge marks a CRITICAL event acknowledged, stopping its resends.
func (g *Governor) Acknowledge(eventID string) error {
	return g.store.AcknowledgeAlert(eventID)
}

// deliver attempts transport delivery. The governor transitions to sent
// optimistically; a failed delivery is logged and retried only by the
// transport's own contract or the next resend cadence.
func (g *Governor) deliver(ctx context.Context, severity models.Severity, message string) {
	if g.notifier == nil {
		return
	}
	requireAck := severity == models.SeverityCritical
	if err := g.notifier.Send(ctx, severity, message, requireAck); err != nil {
		logger.Warn("Notification delivery failed (%s): %v", severity, err)
	}
}
