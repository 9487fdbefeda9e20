// Package models defines the core domain entities: market snapshots, funding
// epochs, EMA state, allocations, and alert events.
package models

import (
	"errors"
	"fmt"
	"time"
)

// APR is an annualized rate in percentage points (20.0 means 20% per year).
// Fractional (0–1) rates must never be stored in this type; convert at the
// boundary where raw venue data is parsed.
type APR float64

// Funding epochs are 8 hours long, so one realized rate annualizes as
// rate × 3 × 365, expressed in percentage points.
func EpochAPR(rate8h float64) APR {
	return APR(rate8h * 3 * 365 * 100)
}

// MarketSnapshot is one per-ticker observation from the 60-second market
// refresh. Snapshots are immutable once recorded; a newer snapshot supersedes
// an older one, it never mutates it.
type MarketSnapshot struct {
	Ticker       string    `json:"ticker"`        // display symbol, e.g. "TSLA"
	Coin         string    `json:"coin"`          // venue identifier, e.g. "xyz:TSLA"
	MarkPx       float64   `json:"mark_px"`
	MidPx        float64   `json:"mid_px"`
	FundingRate  float64   `json:"funding_rate"`  // instantaneous 8h rate, fractional
	FundingAPR   APR       `json:"funding_apr"`
	OpenInterest float64   `json:"open_interest"` // contracts
	OIUSD        float64   `json:"oi_usd"`
	Volume24h    float64   `json:"volume_24h"` // notional USD
	MaxLeverage  int       `json:"max_leverage"`
	Timestamp    time.Time `json:"timestamp"`
}

// Validate checks snapshot field constraints.
func (s *MarketSnapshot) Validate() error {
	if s.Ticker == "" {
		return errors.New("ticker must not be empty")
	}
	if s.Coin == "" {
		return errors.New("coin must not be empty")
	}
	if s.MarkPx < 0 {
		return errors.New("mark price must not be negative")
	}
	if s.MidPx < 0 {
		return errors.New("mid price must not be negative")
	}
	if s.OpenInterest < 0 {
		return errors.New("open interest must not be negative")
	}
	if s.Volume24h < 0 {
		return errors.New("24h volume must not be negative")
	}
	if s.MaxLeverage < 0 {
		return errors.New("max leverage must not be negative")
	}
	if s.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	return nil
}

// FundingEpoch is one realized 8-hour funding settlement for a ticker.
// Epochs are append-only and keyed by (ticker, epoch end time); re-ingesting
// the same epoch is a no-op.
type FundingEpoch struct {
	Ticker   string    `json:"ticker"`
	EpochEnd time.Time `json:"epoch_end"`
	Rate8h   float64   `json:"rate_8h"` // fractional realized rate
	APR      APR       `json:"apr"`
}

// Key returns the idempotency key for this epoch.
func (e FundingEpoch) Key() string {
	return fmt.Sprintf("%s:%d", e.Ticker, e.EpochEnd.Unix())
}

// EmaWindow is the number of epochs the funding EMA smooths over.
// Alpha derives from it as 2/(window+1) = 0.2.
const EmaWindow = 9

// EmaState is the decision-relevant smoothed funding state for one ticker.
// Below EmaWindow folded epochs the value is a plain running average and is
// advisory only; it must not drive a switch decision.
type EmaState struct {
	Ticker       string    `json:"ticker"`
	Value        APR       `json:"value"`
	EpochsFolded int       `json:"epochs_folded"`
	LastEpoch    time.Time `json:"last_epoch"`
}

// Complete reports whether enough epochs have been folded for the EMA to be
// usable in switch decisions.
func (s *EmaState) Complete() bool {
	return s.EpochsFolded >= EmaWindow
}

// EligibilityResult records the outcome of the safety gates for one ticker in
// one decision cycle. All failing gates are recorded, not just the first,
// because CRITICAL messages must name every broken gate.
type EligibilityResult struct {
	Ticker   string   `json:"ticker"`
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons,omitempty"` // failure reasons, empty when eligible
}

// Candidate is one row of the ranked eligible-candidate table served to the
// dashboard.
type Candidate struct {
	Ticker         string  `json:"ticker"`
	InstantAPR     APR     `json:"instant_apr"`
	EmaAPR         APR     `json:"ema_apr"`
	EmaComplete    bool    `json:"ema_complete"`
	Volume24h      float64 `json:"volume_24h"`
	OIUSD          float64 `json:"oi_usd"`
	RecommendedCap float64 `json:"recommended_cap"` // 5% of OI in USD
	AdvantageAPR   APR     `json:"advantage_apr"`   // EMA edge over the active ticker
}

// RejectedMarket records why a focus-set ticker did not make the candidate
// table this cycle.
type RejectedMarket struct {
	Ticker  string   `json:"ticker"`
	Reasons []string `json:"reasons"`
}
