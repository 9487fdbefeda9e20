package models

import (
	"fmt"
	"math"
	"time"
)

// Bucket identifies one of the four dollar buckets the advisor reconciles.
type Bucket string

const (
	BucketCoinbaseTotal  Bucket = "coinbase_total"
	BucketPerpCollateral Bucket = "perp_collateral"
	BucketStockLong      Bucket = "stock_long"
	BucketPerpShort      Bucket = "perp_short_notional"
)

// Buckets lists all buckets in the order action items are generated.
var Buckets = []Bucket{BucketCoinbaseTotal, BucketPerpCollateral, BucketStockLong, BucketPerpShort}

// TargetAllocation is the ideal position the engine recommends. It is replaced
// wholesale each decision cycle, never partially updated.
type TargetAllocation struct {
	Ticker                string    `json:"ticker"`
	StockLongUSD          float64   `json:"stock_long_usd"`
	PerpShortNotionalUSD  float64   `json:"perp_short_notional_usd"`
	PerpCollateralUSD     float64   `json:"perp_collateral_usd"`
	CoinbaseTreasuryUSD   float64   `json:"coinbase_treasury_usd"`
	CoinbaseTotalUSD      float64   `json:"coinbase_total_usd"`
	PerpLeverage          *float64  `json:"perp_leverage"` // nil when collateral is 0
	EstimatedNetAPR       APR       `json:"estimated_net_apr"`
	EstimatedNetUSDPerDay float64   `json:"estimated_net_usd_per_day"`
	ZeroSized             bool      `json:"zero_sized"`
	ZeroSizedReason       string    `json:"zero_sized_reason,omitempty"`
	ComputedAt            time.Time `json:"computed_at"`
}

// Target returns the target dollar amount for the given bucket.
func (a *TargetAllocation) Target(b Bucket) float64 {
	switch b {
	case BucketCoinbaseTotal:
		return a.CoinbaseTotalUSD
	case BucketPerpCollateral:
		return a.PerpCollateralUSD
	case BucketStockLong:
		return a.StockLongUSD
	case BucketPerpShort:
		return a.PerpShortNotionalUSD
	}
	return 0
}

// CheckSum verifies that the three deployable buckets sum back to the
// deployable capital within relative floating-point tolerance.
func (a *TargetAllocation) CheckSum(deployable float64) error {
	sum := a.StockLongUSD + a.PerpCollateralUSD + a.CoinbaseTreasuryUSD
	tol := 1e-6 * math.Max(math.Abs(deployable), 1)
	if math.Abs(sum-deployable) > tol {
		return fmt.Errorf("allocation buckets sum to %.6f, want deployable %.6f", sum, deployable)
	}
	return nil
}

// CurrentState holds the operator's actual balances. It is owned by the
// user/UI: the engine only reads it.
type CurrentState struct {
	CoinbaseUSD          float64   `json:"coinbase_usd"` // USDC balance
	BrokerageCashUSD     float64   `json:"brokerage_cash_usd"`
	StockTicker          string    `json:"stock_ticker"` // currently held hedge ticker
	StockMarketValueUSD  float64   `json:"stock_market_value_usd"`
	PerpCollateralUSD    float64   `json:"perp_collateral_usd"`
	PerpShortNotionalUSD float64   `json:"perp_short_notional_usd"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Current returns the operator's actual dollar amount for the given bucket.
func (c *CurrentState) Current(b Bucket) float64 {
	switch b {
	case BucketCoinbaseTotal:
		return c.CoinbaseUSD
	case BucketPerpCollateral:
		return c.PerpCollateralUSD
	case BucketStockLong:
		return c.StockMarketValueUSD
	case BucketPerpShort:
		return c.PerpShortNotionalUSD
	}
	return 0
}

// UserConfig holds the operator-supplied inputs the engine cannot derive.
type UserConfig struct {
	NAVUSD             float64   `json:"nav_usd"`
	EmergencyBufferUSD float64   `json:"emergency_buffer_usd"`
	CoinbaseAPR        APR       `json:"coinbase_apr"`
	InsuranceBudgetPct float64   `json:"insurance_budget_pct"` // percent of NAV per year
	EquityVolumeMin    float64   `json:"equity_volume_min"`    // 0 disables the equity-side volume gate
	UpdatedAt          time.Time `json:"updated_at"`
}

// Deployable is the capital eligible for hedge deployment.
func (u *UserConfig) Deployable() float64 {
	return u.NAVUSD - u.EmergencyBufferUSD
}

// Complete reports whether allocation computation can run at all.
func (u *UserConfig) Complete() bool {
	return u.NAVUSD > 0 && u.EmergencyBufferUSD >= 0 && u.EmergencyBufferUSD < u.NAVUSD
}

// ActionItem is one line of the manual reconciliation checklist.
type ActionItem struct {
	Bucket      Bucket  `json:"bucket"`
	DeltaUSD    float64 `json:"delta_usd"` // target − current, signed
	Instruction string  `json:"instruction"`
	Material    bool    `json:"material"` // abs(delta) >= materiality threshold
}

// Health is the overall advisor state shown to the operator.
type Health string

const (
	HealthOptimized Health = "OPTIMIZED"
	HealthAction    Health = "ACTION"
	HealthCritical  Health = "CRITICAL"
)
