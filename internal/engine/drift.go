package engine

import (
	"fmt"
	"math"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// DriftConfig holds the action-item thresholds.
type DriftConfig struct {
	MaterialDeltaUSD  float64 // minimum abs delta that produces an item
	RebalanceDeltaUSD float64 // abs delta that flips RebalanceNeeded
}

// DriftReport is the reconciliation checklist for one cycle.
type DriftReport struct {
	Items           []models.ActionItem
	RebalanceNeeded bool
}

// ComputeDrift diffs the target allocation against the operator's actual
// holdings bucket by bucket.
func ComputeDrift(target *models.TargetAllocation, current *models.CurrentState, cfg DriftConfig) DriftReport {
	var report DriftReport
	for _, bucket := range models.Buckets {
		delta := target.Target(bucket) - current.Current(bucket)
		if math.Abs(delta) > cfg.RebalanceDeltaUSD {
			report.RebalanceNeeded = true
		}
		if math.Abs(delta) < cfg.MaterialDeltaUSD {
			continue
		}
		report.Items = append(report.Items, models.ActionItem{
			Bucket:      bucket,
			DeltaUSD:    delta,
			Instruction: instruction(bucket, delta, target, current),
			Material:    true,
		})
	}
	return report
}

// instruction words each delta directionally for the operator.
func instruction(bucket models.Bucket, delta float64, target *models.TargetAllocation, current *models.CurrentState) string {
	amount := math.Abs(delta)
	switch bucket {
	case models.BucketCoinbaseTotal:
		if delta > 0 {
			return fmt.Sprintf("Transfer $%.0f into Coinbase USDC", amount)
		}
		return fmt.Sprintf("Transfer $%.0f out of Coinbase USDC", amount)
	case models.BucketPerpCollateral:
		if delta > 0 {
			return fmt.Sprintf("Transfer $%.0f into perp collateral", amount)
		}
		return fmt.Sprintf("Withdraw $%.0f from perp collateral", amount)
	case models.BucketStockLong:
		if current.StockTicker != "" && current.StockTicker != target.Ticker {
			return fmt.Sprintf("Sell %s position, buy $%.0f of %s", current.StockTicker, target.StockLongUSD, target.Ticker)
		}
		if delta > 0 {
			return fmt.Sprintf("Buy $%.0f of %s", amount, target.Ticker)
		}
		return fmt.Sprintf("Sell $%.0f of %s", amount, target.Ticker)
	case models.BucketPerpShort:
		if delta > 0 {
			return fmt.Sprintf("Increase %s perp short by $%.0f notional", target.Ticker, amount)
		}
		return fmt.Sprintf("Close $%.0f of %s perp short notional", amount, target.Ticker)
	}
	return ""
}

// ComputeHealth derives the overall advisor state. CRITICAL when any gate is
// broken on the active ticker or an unacknowledged CRITICAL alert exists;
// ACTION when a rebalance or unresolved opportunity is pending or the
// configuration is incomplete; OPTIMIZED otherwise.
func ComputeHealth(currentEligible bool, unackedCriticals int, rebalanceNeeded, openOpportunity, configComplete bool) models.Health {
	if !currentEligible || unackedCriticals > 0 {
		return models.HealthCritical
	}
	if rebalanceNeeded || openOpportunity || !configComplete {
		return models.HealthAction
	}
	return models.HealthOptimized
}
