package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// Status is the dashboard view: the last successfully persisted allocation
// with its reconciliation checklist and overall health. It always reflects
// persisted state, never a cycle in flight.
type Status struct {
	Allocation      *models.TargetAllocation `json:"allocation"` // nil before the first cycle
	Items           []models.ActionItem      `json:"items"`
	RebalanceNeeded bool                     `json:"rebalance_needed"`
	Health          models.Health            `json:"health"`
	ConfigComplete  bool                     `json:"config_complete"`
	Stale           bool                     `json:"stale"` // allocation older than two cycles
	Criticals       []*models.AlertEvent     `json:"criticals"`
}

// TargetAllocation returns the last persisted allocation, nil before the
// first successful cycle.
func (e *Engine) TargetAllocation() (*models.TargetAllocation, error) {
	return e.store.LoadAllocation()
}

// Candidates returns the ranked eligible-candidate table from the last cycle.
func (e *Engine) Candidates() ([]models.Candidate, error) {
	return e.store.Candidates()
}

// Rejected returns the focus-set tickers that failed gating last cycle.
func (e *Engine) Rejected() ([]models.RejectedMarket, error) {
	return e.store.Rejected()
}

// Status assembles the full dashboard view from persisted state.
func (e *Engine) Status() (*Status, error) {
	allocation, err := e.store.LoadAllocation()
	if err != nil {
		return nil, err
	}
	current, err := e.store.LoadCurrentState()
	if err != nil {
		return nil, err
	}
	userCfg, err := e.store.LoadUserConfig()
	if err != nil {
		return nil, err
	}
	criticals, err := e.store.UnacknowledgedCriticals()
	if err != nil {
		return nil, err
	}

	status := &Status{
		Allocation:     allocation,
		ConfigComplete: userCfg.Complete(),
		Criticals:      criticals,
	}

	currentEligible := true
	if current.StockTicker != "" {
		rejected, err := e.store.Rejected()
		if err != nil {
			return nil, err
		}
		for _, r := range rejected {
			if r.Ticker == current.StockTicker {
				currentEligible = false
				break
			}
		}
	}

	openOpportunity := false
	if allocation != nil {
		report := ComputeDrift(allocation, current, DriftConfig{
			MaterialDeltaUSD:  e.cfg.MaterialDeltaUSD,
			RebalanceDeltaUSD: e.cfg.RebalanceDeltaUSD,
		})
		status.Items = report.Items
		status.RebalanceNeeded = report.RebalanceNeeded
		status.Stale = time.Since(allocation.ComputedAt) > 2*e.cfg.CycleInterval
		openOpportunity = current.StockTicker != "" && allocation.Ticker != current.StockTicker
	}

	status.Health = ComputeHealth(currentEligible, len(criticals),
		status.RebalanceNeeded, openOpportunity, userCfg.Complete())
	return status, nil
}

// AcknowledgeCritical marks a CRITICAL alert acknowledged, stopping its
// resend cadence.
func (e *Engine) AcknowledgeCritical(eventID string) error {
	return e.governor.Acknowledge(eventID)
}

// UpdateCurrentState sets one actual-holdings bucket to a user-reported
// value.
func (e *Engine) UpdateCurrentState(bucket models.Bucket, value float64) error {
	current, err := e.store.LoadCurrentState()
	if err != nil {
		return err
	}
	switch bucket {
	case models.BucketCoinbaseTotal:
		current.CoinbaseUSD = value
	case models.BucketPerpCollateral:
		current.PerpCollateralUSD = value
	case models.BucketStockLong:
		current.StockMarketValueUSD = value
	case models.BucketPerpShort:
		current.PerpShortNotionalUSD = value
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	current.UpdatedAt = time.Now()
	return e.store.SaveCurrentState(current)
}

// UpdateStockTicker records which equity the operator actually holds.
func (e *Engine) UpdateStockTicker(ticker string) error {
	current, err := e.store.LoadCurrentState()
	if err != nil {
		return err
	}
	current.StockTicker = ticker
	current.UpdatedAt = time.Now()
	return e.store.SaveCurrentState(current)
}

// ApplyActionItem checks off one checklist item: the bucket's actual value
// becomes its target, and for the stock bucket the held ticker follows the
// allocation.
func (e *Engine) ApplyActionItem(bucket models.Bucket) error {
	allocation, err := e.store.LoadAllocation()
	if err != nil {
		return err
	}
	if allocation == nil {
		return fmt.Errorf("no allocation computed yet")
	}
	current, err := e.store.LoadCurrentState()
	if err != nil {
		return err
	}
	if bucket == models.BucketStockLong {
		current.StockTicker = allocation.Ticker
	}
	switch bucket {
	case models.BucketCoinbaseTotal:
		current.CoinbaseUSD = allocation.CoinbaseTotalUSD
	case models.BucketPerpCollateral:
		current.PerpCollateralUSD = allocation.PerpCollateralUSD
	case models.BucketStockLong:
		current.StockMarketValueUSD = allocation.StockLongUSD
	case models.BucketPerpShort:
		current.PerpShortNotionalUSD = allocation.PerpShortNotionalUSD
	default:
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	current.UpdatedAt = time.Now()
	return e.store.SaveCurrentState(current)
}

// UpdateUserConfig sets one operator-supplied input by field name.
func (e *Engine) UpdateUserConfig(field string, value string) error {
	userCfg, err := e.store.LoadUserConfig()
	if err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, field, err)
	}
	switch field {
	case "nav_usd":
		userCfg.NAVUSD = parsed
	case "emergency_buffer_usd":
		userCfg.EmergencyBufferUSD = parsed
	case "coinbase_apr":
		userCfg.CoinbaseAPR = models.APR(parsed)
	case "insurance_budget_pct":
		userCfg.InsuranceBudgetPct = parsed
	case "equity_volume_min":
		userCfg.EquityVolumeMin = parsed
	default:
		return fmt.Errorf("unknown user config field %q", field)
	}
	userCfg.UpdatedAt = time.Now()
	return e.store.SaveUserConfig(userCfg)
}
