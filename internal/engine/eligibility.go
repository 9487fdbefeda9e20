package engine

import (
	"fmt"
	"math"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// GateConfig holds the hard safety thresholds a market must clear before it
// can carry the hedge.
type GateConfig struct {
	MinMaxLeverage    int
	VolumeMin         float64 // 24h notional USD
	MaxDivergence     float64 // fractional, perp mid vs equity last
	OICapFraction     float64
	MinViableNotional float64
	EquityVolumeMin   float64 // 0 disables the equity-side gate
}

// CheckEligibility runs every safety gate against one snapshot and records
// all failures. Gates never short-circuit: a CRITICAL message for the active
// ticker must name every broken gate, not just the first.
// equityPx <= 0 means no equity quote was available; the divergence gate is
// then skipped rather than failed, since quote outages are transient.
func CheckEligibility(snap *models.MarketSnapshot, listed bool, equityPx, equityVol float64, cfg GateConfig) models.EligibilityResult {
	res := models.EligibilityResult{Ticker: snap.Ticker}

	if !listed {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("%s is not a listed public equity", snap.Ticker))
	}
	if snap.MaxLeverage < cfg.MinMaxLeverage {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("max leverage %dx below required %dx", snap.MaxLeverage, cfg.MinMaxLeverage))
	}
	if snap.Volume24h < cfg.VolumeMin {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("liquidity: 24h volume $%.0f below $%.0f minimum", snap.Volume24h, cfg.VolumeMin))
	}
	if equityPx > 0 {
		div := math.Abs(snap.MidPx-equityPx) / equityPx
		if div > cfg.MaxDivergence {
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("price divergence %.2f%% exceeds %.2f%% limit (perp %.2f vs equity %.2f)",
					div*100, cfg.MaxDivergence*100, snap.MidPx, equityPx))
		}
	}
	if cfg.EquityVolumeMin > 0 && equityVol > 0 && equityVol < cfg.EquityVolumeMin {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("equity-side volume $%.0f below $%.0f minimum", equityVol, cfg.EquityVolumeMin))
	}
	if cfg.OICapFraction*snap.OIUSD < cfg.MinViableNotional {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("not tradable for size: %.0f%% of open interest is $%.0f, below $%.0f",
				cfg.OICapFraction*100, cfg.OICapFraction*snap.OIUSD, cfg.MinViableNotional))
	}

	res.Eligible = len(res.Reasons) == 0
	return res
}
