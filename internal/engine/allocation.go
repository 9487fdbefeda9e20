package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// SizingConfig holds the capacity-cap constants.
type SizingConfig struct {
	OICapFraction      float64 // share of open interest one position may absorb
	CollateralFraction float64 // adverse-move + maintenance buffer on notional
	OpsReserveUSD      float64 // fixed collateral reserve
}

// MaxNotional computes the position size under the two independent caps:
// a share of the market's open interest, and what deployable capital can
// collateralize after the fixed reserve. Never negative; zero is a valid
// "cannot size a position" outcome.
func MaxNotional(openInterest, markPx, deployable float64, cfg SizingConfig) float64 {
	oiCap := cfg.OICapFraction * openInterest * markPx
	collateralCap := (deployable - cfg.OpsReserveUSD) / (1 + cfg.CollateralFraction)
	nMax := math.Min(oiCap, collateralCap)
	if nMax < 0 {
		return 0
	}
	return nMax
}

// BuildAllocation turns a sizing decision into the four target buckets.
// A zero nMax produces a zero-size allocation with an explanatory flag, not
// an error. Returns InvariantViolation when the buckets fail to sum back to
// deployable; that allocation must never be persisted.
func BuildAllocation(ticker string, nMax, deployable, emergencyBuffer float64, cfg SizingConfig, now time.Time) (*models.TargetAllocation, error) {
	if nMax < 0 {
		return nil, &InvariantViolation{Detail: fmt.Sprintf("negative max notional %.2f for %s", nMax, ticker)}
	}

	a := &models.TargetAllocation{
		Ticker:               ticker,
		StockLongUSD:         nMax,
		PerpShortNotionalUSD: nMax,
		PerpCollateralUSD:    cfg.CollateralFraction*nMax + cfg.OpsReserveUSD,
		ComputedAt:           now,
	}
	a.CoinbaseTreasuryUSD = deployable - a.StockLongUSD - a.PerpCollateralUSD
	a.CoinbaseTotalUSD = emergencyBuffer + a.CoinbaseTreasuryUSD

	if a.PerpCollateralUSD > 0 {
		lev := a.PerpShortNotionalUSD / a.PerpCollateralUSD
		a.PerpLeverage = &lev
	}
	if nMax == 0 {
		a.ZeroSized = true
		a.ZeroSizedReason = "deployable capital does not cover the collateral reserve, or the market has no viable size"
	}

	if err := a.CheckSum(deployable); err != nil {
		return nil, &InvariantViolation{Detail: err.Error()}
	}
	return a, nil
}

// YieldConfig holds the yield-estimate inputs that are not per-market.
type YieldConfig struct {
	CoinbaseAPR        models.APR
	InsuranceBudgetPct float64    // percent of NAV per year
	FeeDragAPR         models.APR // fixed conservative constant
}

// EstimateYield fills the net-APR and daily-dollar estimates on an allocation.
// Every rate stays in APR percentage points; the only fractional conversion
// happens in the final dollars-per-day step.
func EstimateYield(a *models.TargetAllocation, fundingEma models.APR, navUSD float64, cfg YieldConfig) {
	if navUSD <= 0 {
		return
	}
	netAPR := float64(fundingEma)*(a.PerpShortNotionalUSD/navUSD) +
		float64(cfg.CoinbaseAPR)*(a.CoinbaseTotalUSD/navUSD) -
		cfg.InsuranceBudgetPct -
		float64(cfg.FeeDragAPR)
	a.EstimatedNetAPR = models.APR(netAPR)
	a.EstimatedNetUSDPerDay = (netAPR / 100) * navUSD / 365
}
