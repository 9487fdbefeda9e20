package engine

import (
	"strings"
	"testing"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

func testDrift() DriftConfig {
	return DriftConfig{MaterialDeltaUSD: 1_000, RebalanceDeltaUSD: 5_000}
}

func TestComputeDrift(t *testing.T) {
	target := &models.TargetAllocation{
		Ticker:               "TSLA",
		StockLongUSD:         470_000,
		PerpShortNotionalUSD: 470_000,
		PerpCollateralUSD:    120_000,
		CoinbaseTotalUSD:     50_000,
	}
	current := &models.CurrentState{
		CoinbaseUSD:          50_000,  // aligned
		StockTicker:          "TSLA",
		StockMarketValueUSD:  468_000, // $2k short, material, below rebalance bar
		PerpCollateralUSD:    100_000, // $20k short, rebalance
		PerpShortNotionalUSD: 470_500, // $500 over, immaterial
	}

	report := ComputeDrift(target, current, testDrift())
	if !report.RebalanceNeeded {
		t.Error("expected RebalanceNeeded on a $20k gap")
	}
	if len(report.Items) != 2 {
		t.Fatalf("expected 2 material items, got %+v", report.Items)
	}

	byBucket := make(map[models.Bucket]models.ActionItem)
	for _, item := range report.Items {
		byBucket[item.Bucket] = item
	}
	if item := byBucket[models.BucketStockLong]; item.DeltaUSD != 2_000 {
		t.Errorf("stock delta = %v, want 2000", item.DeltaUSD)
	} else if !strings.HasPrefix(item.Instruction, "Buy") {
		t.Errorf("positive stock delta should word as buy: %q", item.Instruction)
	}
	if item := byBucket[models.BucketPerpCollateral]; item.DeltaUSD != 20_000 {
		t.Errorf("collateral delta = %v, want 20000", item.DeltaUSD)
	}
}

func TestComputeDriftAligned(t *testing.T) {
	target := &models.TargetAllocation{
		Ticker:               "TSLA",
		StockLongUSD:         470_000,
		PerpShortNotionalUSD: 470_000,
		PerpCollateralUSD:    120_000,
		CoinbaseTotalUSD:     50_000,
	}
	current := &models.CurrentState{
		CoinbaseUSD:          50_000,
		StockTicker:          "TSLA",
		StockMarketValueUSD:  470_000,
		PerpCollateralUSD:    120_000,
		PerpShortNotionalUSD: 470_000,
	}
	report := ComputeDrift(target, current, testDrift())
	if len(report.Items) != 0 || report.RebalanceNeeded {
		t.Errorf("aligned book must produce no items, got %+v", report)
	}
}

func TestDriftInstructionOnTickerSwitch(t *testing.T) {
	target := &models.TargetAllocation{Ticker: "HOOD", StockLongUSD: 460_000}
	current := &models.CurrentState{StockTicker: "TSLA", StockMarketValueUSD: 470_000}

	report := ComputeDrift(target, current, testDrift())
	found := false
	for _, item := range report.Items {
		if item.Bucket == models.BucketStockLong {
			found = true
			if !strings.Contains(item.Instruction, "Sell TSLA") || !strings.Contains(item.Instruction, "HOOD") {
				t.Errorf("switch instruction should name both tickers: %q", item.Instruction)
			}
		}
	}
	if !found {
		t.Fatal("expected a stock action item")
	}
}

func TestComputeHealth(t *testing.T) {
	tests := []struct {
		name            string
		currentEligible bool
		criticals       int
		rebalance       bool
		opportunity     bool
		configComplete  bool
		want            models.Health
	}{
		{"all clear", true, 0, false, false, true, models.HealthOptimized},
		{"rebalance pending", true, 0, true, false, true, models.HealthAction},
		{"open opportunity", true, 0, false, true, true, models.HealthAction},
		{"config incomplete", true, 0, false, false, false, models.HealthAction},
		{"gate broken", false, 0, false, false, true, models.HealthCritical},
		{"unacked critical", true, 1, false, false, true, models.HealthCritical},
		{"critical beats action", false, 0, true, true, true, models.HealthCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHealth(tt.currentEligible, tt.criticals, tt.rebalance, tt.opportunity, tt.configComplete)
			if got != tt.want {
				t.Errorf("ComputeHealth = %s, want %s", got, tt.want)
			}
		})
	}
}
