package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

func testSizing() SizingConfig {
	return SizingConfig{OICapFraction: 0.05, CollateralFraction: 0.25, OpsReserveUSD: 2500}
}

func TestMaxNotional(t *testing.T) {
	tests := []struct {
		name         string
		openInterest float64
		markPx       float64
		deployable   float64
		want         float64
	}{
		// Collateral cap binds: (590000-2500)/1.25 = 470000 vs OI cap 1M.
		{"collateral cap binds", 100_000, 200, 590_000, 470_000},
		// OI cap binds: 0.05 × 1000 × 300 = 15000.
		{"oi cap binds", 1_000, 300, 590_000, 15_000},
		// Deployable below the reserve: zero, not negative.
		{"deployable below reserve", 100_000, 200, 2_000, 0},
		{"deployable equals reserve", 100_000, 200, 2_500, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxNotional(tt.openInterest, tt.markPx, tt.deployable, testSizing())
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("MaxNotional = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxNotionalRespectsCollateralBudget(t *testing.T) {
	cfg := testSizing()
	for _, deployable := range []float64{10_000, 100_000, 590_000, 5_000_000} {
		nMax := MaxNotional(1e9, 100, deployable, cfg)
		if nMax*(1+cfg.CollateralFraction) > deployable-cfg.OpsReserveUSD+1e-6 {
			t.Errorf("deployable %v: nMax %v exceeds collateral budget", deployable, nMax)
		}
	}
}

func TestBuildAllocationWorkedExample(t *testing.T) {
	// NAV 640k, buffer 50k, deployable 590k, OI cap not binding.
	nMax := MaxNotional(100_000, 200, 590_000, testSizing())
	a, err := BuildAllocation("TSLA", nMax, 590_000, 50_000, testSizing(), time.Now())
	if err != nil {
		t.Fatalf("BuildAllocation: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"stock long", a.StockLongUSD, 470_000},
		{"perp short", a.PerpShortNotionalUSD, 470_000},
		{"perp collateral", a.PerpCollateralUSD, 120_000},
		{"treasury", a.CoinbaseTreasuryUSD, 0},
		{"coinbase total", a.CoinbaseTotalUSD, 50_000},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-6 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if a.PerpLeverage == nil {
		t.Fatal("expected leverage to be set")
	}
	if lev := *a.PerpLeverage; math.Abs(lev-470_000.0/120_000.0) > 1e-9 {
		t.Errorf("leverage = %v, want %v", lev, 470_000.0/120_000.0)
	}
	if a.ZeroSized {
		t.Error("sized allocation must not be flagged zero-sized")
	}
}

func TestBuildAllocationZeroSized(t *testing.T) {
	a, err := BuildAllocation("TSLA", 0, 2_000, 50_000, testSizing(), time.Now())
	if err != nil {
		t.Fatalf("zero size must not be an error: %v", err)
	}
	if !a.ZeroSized || a.ZeroSizedReason == "" {
		t.Error("expected zero-sized flag with a reason")
	}
	if a.StockLongUSD != 0 || a.PerpShortNotionalUSD != 0 {
		t.Error("zero-sized allocation must carry zero positions")
	}
	// Collateral is just the reserve; treasury absorbs the remainder.
	if a.PerpCollateralUSD != 2_500 {
		t.Errorf("collateral = %v, want 2500", a.PerpCollateralUSD)
	}
	if err := a.CheckSum(2_000); err != nil {
		t.Errorf("zero-sized allocation must still sum: %v", err)
	}
}

func TestBuildAllocationRejectsNegativeNotional(t *testing.T) {
	_, err := BuildAllocation("TSLA", -1, 590_000, 50_000, testSizing(), time.Now())
	var violation *InvariantViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
}

func TestEstimateYield(t *testing.T) {
	a := &models.TargetAllocation{
		PerpShortNotionalUSD: 470_000,
		CoinbaseTotalUSD:     50_000,
	}
	EstimateYield(a, 40, 640_000, YieldConfig{
		CoinbaseAPR:        4.1,
		InsuranceBudgetPct: 1.0,
		FeeDragAPR:         4.7,
	})

	// 40×(470000/640000) + 4.1×(50000/640000) − 1.0 − 4.7
	want := 40*(470_000.0/640_000.0) + 4.1*(50_000.0/640_000.0) - 1.0 - 4.7
	if got := float64(a.EstimatedNetAPR); math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimatedNetAPR = %v, want %v", got, want)
	}
	wantDaily := (want / 100) * 640_000 / 365
	if math.Abs(a.EstimatedNetUSDPerDay-wantDaily) > 1e-9 {
		t.Errorf("EstimatedNetUSDPerDay = %v, want %v", a.EstimatedNetUSDPerDay, wantDaily)
	}
}

func TestEstimateYieldSkipsZeroNAV(t *testing.T) {
	a := &models.TargetAllocation{}
	EstimateYield(a, 40, 0, YieldConfig{})
	if a.EstimatedNetAPR != 0 || a.EstimatedNetUSDPerDay != 0 {
		t.Error("zero NAV must leave estimates untouched")
	}
}
