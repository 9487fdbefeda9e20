package engine

import (
	"sort"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// Signal classifies the outcome of one selection pass.
type Signal string

const (
	SignalHold        Signal = "HOLD"        // no better market worth mentioning
	SignalApproaching Signal = "APPROACHING" // within the approach band, below the hurdle
	SignalSwitch      Signal = "SWITCH"      // hurdle cleared, switch recommended
	SignalForced      Signal = "FORCED"      // active ticker failed a safety gate
)

// Selection is the result of ranking the eligible candidates against the
// active ticker.
type Selection struct {
	Signal       Signal
	Best         string     // switch target, empty when no complete-EMA candidate exists
	BestEma      models.APR
	CurrentEma   models.APR // zero when the active ticker has no complete EMA
	AdvantageAPR models.APR // BestEma − CurrentEma
	Chosen       string     // ticker the allocation should be built on
}

// SelectBest picks the best eligible candidate by complete-EMA APR and decides
// whether switching clears the hurdle. Candidates with incomplete EMAs never
// become best. Exact EMA ties break lexicographically by ticker so the choice
// is deterministic across cycles.
//
// The active ticker keeps the allocation unless the hurdle is cleared or it
// has itself become ineligible, in which case the best candidate is the
// forced switch target regardless of margin.
func SelectBest(candidates []models.Candidate, current string, currentEligible bool, hurdle, approach models.APR) Selection {
	sel := Selection{Signal: SignalHold, Chosen: current}

	ranked := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.EmaComplete {
			ranked = append(ranked, c)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].EmaAPR != ranked[j].EmaAPR {
			return ranked[i].EmaAPR > ranked[j].EmaAPR
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	if len(ranked) == 0 {
		if current != "" && !currentEligible {
			// Nothing to switch to; the gate failure alone drives CRITICAL.
			sel.Signal = SignalForced
			sel.Chosen = ""
		}
		return sel
	}

	best := ranked[0]
	sel.Best = best.Ticker
	sel.BestEma = best.EmaAPR

	for _, c := range ranked {
		if c.Ticker == current {
			sel.CurrentEma = c.EmaAPR
			break
		}
	}

	if current == "" {
		// No active hedge yet; adopt the best candidate outright.
		sel.Signal = SignalSwitch
		sel.Chosen = best.Ticker
		sel.AdvantageAPR = best.EmaAPR
		return sel
	}

	sel.AdvantageAPR = best.EmaAPR - sel.CurrentEma

	if !currentEligible {
		sel.Signal = SignalForced
		sel.Chosen = best.Ticker
		return sel
	}
	if best.Ticker == current {
		return sel
	}
	switch {
	case sel.AdvantageAPR >= hurdle:
		sel.Signal = SignalSwitch
		sel.Chosen = best.Ticker
	case sel.AdvantageAPR >= approach:
		sel.Signal = SignalApproaching
	}
	return sel
}
