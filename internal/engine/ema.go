package engine

import (
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// emaAlpha is the smoothing factor 2/(window+1) for the 9-epoch funding EMA.
const emaAlpha = 2.0 / (models.EmaWindow + 1)

// FoldEpoch folds one funding epoch into the ticker's EMA state. Epochs must
// arrive in strictly increasing timestamp order; an out-of-order or duplicate
// epoch returns false and leaves the state untouched, so re-ingesting history
// after a crash is safe.
//
// Until EmaWindow epochs have been folded the value is a plain running
// average, meaningful but advisory. From the window onward it follows the
// standard recurrence value = alpha*x + (1-alpha)*value.
func FoldEpoch(state *models.EmaState, epoch models.FundingEpoch) bool {
	if !epoch.EpochEnd.After(state.LastEpoch) {
		return false
	}

	if state.EpochsFolded < models.EmaWindow {
		n := float64(state.EpochsFolded)
		state.Value = models.APR((float64(state.Value)*n + float64(epoch.APR)) / (n + 1))
	} else {
		state.Value = models.APR(emaAlpha*float64(epoch.APR) + (1-emaAlpha)*float64(state.Value))
	}
	state.EpochsFolded++
	state.LastEpoch = epoch.EpochEnd
	return true
}

// NewEmaState returns an empty tracker for a ticker first seen now.
func NewEmaState(ticker string) *models.EmaState {
	return &models.EmaState{Ticker: ticker, LastEpoch: time.Time{}}
}
