package models

import "time"

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo        Severity = "INFO"
	SeverityOpportunity Severity = "OPPORTUNITY"
	SeverityCritical    Severity = "CRITICAL"
)

// AlertEvent is one row of the append-only alert log. The log is both the
// audit trail and the sole source of truth for deduplication: the governor
// keeps no in-memory state that cannot be rebuilt from these rows after a
// restart.
type AlertEvent struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Ticker       string    `json:"ticker,omitempty"`
	Message      string    `json:"message"`
	DedupeKey    string    `json:"dedupe_key"`
	AdvantageAPR APR       `json:"advantage_apr"` // tracked for OPPORTUNITY refire
	CreatedAt    time.Time `json:"created_at"`
	LastSentAt   time.Time `json:"last_sent_at"`
	SendCount    int       `json:"send_count"`
	Acknowledged bool      `json:"acknowledged"` // CRITICAL only
}
