package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hedgewatch/hedgewatch/internal/alert"
	"github.com/hedgewatch/hedgewatch/internal/config"
	"github.com/hedgewatch/hedgewatch/internal/logger"
	"github.com/hedgewatch/hedgewatch/internal/models"
	"github.com/hedgewatch/hedgewatch/internal/storage"
)

// MarketSource provides perp market data.
type MarketSource interface {
	FetchMarkets(ctx context.Context) ([]models.MarketSnapshot, error)
	FetchFundingHistory(ctx context.Context, coin string, startTime time.Time) ([]models.FundingEpoch, error)
}

// ListingOracle answers whether a ticker is a listed public equity.
type ListingOracle interface {
	IsListed(ctx context.Context, ticker string) bool
}

// QuoteSource provides the equity-side price for divergence checks.
type QuoteSource interface {
	Quote(ctx context.Context, ticker string) (float64, error)
}

// Engine runs the two periodic pipelines, the 60-second market refresh and
// the 10-minute decision cycle, and serves the dashboard read surface from
// the last persisted state.
type Engine struct {
	store    *storage.Storage
	markets  MarketSource
	listings ListingOracle
	quotes   QuoteSource
	governor *alert.Governor
	cfg      config.EngineConfig
	owner    string

	// Consecutive fetch misses per ticker. Reset on restart; the first
	// cycle after a restart refetches everything anyway.
	staleCycles map[string]int
}

// New creates an engine with a fresh cycle-lease owner identity.
func New(store *storage.Storage, markets MarketSource, listings ListingOracle, quotes QuoteSource, governor *alert.Governor, cfg config.EngineConfig) *Engine {
	return &Engine{
		store:       store,
		markets:     markets,
		listings:    listings,
		quotes:      quotes,
		governor:    governor,
		cfg:         cfg,
		owner:       uuid.New().String(),
		staleCycles: make(map[string]int),
	}
}

// RefreshSnapshots is the fast loop: poll the venue, persist fresh snapshots,
// and keep the CRITICAL resend cadence running between decision cycles.
func (e *Engine) RefreshSnapshots(ctx context.Context) error {
	// The resend cadence must survive venue outages, so pump before
	// touching the network.
	if err := e.governor.Pump(ctx); err != nil {
		logger.Error("Failed to pump critical resends: %v", err)
	}

	snaps, err := e.markets.FetchMarkets(ctx)
	if err != nil {
		logger.Warn("Market refresh failed: %v", err)
		return &TransientDataError{Ticker: "*", Err: err}
	}

	saved := 0
	for i := range snaps {
		snap := snaps[i]
		if e.cfg.StockOnly && !strings.Contains(snap.Coin, ":") {
			continue
		}
		if mapped, ok := e.cfg.HedgeMap[snap.Coin]; ok {
			snap.Ticker = mapped
		}
		if err := e.store.SaveSnapshot(&snap); err != nil {
			logger.Warn("Failed to save snapshot for %s: %v", snap.Ticker, err)
			continue
		}
		saved++
	}
	logger.Debug("Market refresh saved %d snapshots", saved)
	return nil
}

// RunCycle is the decision cycle: acquire the lease, fold funding history,
// gate and rank candidates, decide on switching, size and persist the target
// allocation, and evaluate alerts. Safe to repeat after an interruption; its
// persistent effects are idempotent.
func (e *Engine) RunCycle(ctx context.Context) error {
	acquired, err := e.store.AcquireLease(e.owner, e.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire cycle lease: %w", err)
	}
	if !acquired {
		return ErrCycleLeaseHeld
	}
	defer func() {
		if err := e.store.ReleaseLease(e.owner); err != nil {
			logger.Warn("Failed to release cycle lease: %v", err)
		}
	}()

	started := time.Now()

	snaps, err := e.store.Snapshots()
	if err != nil {
		return fmt.Errorf("failed to load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		logger.Info("No market snapshots yet, skipping decision cycle")
		return nil
	}

	focus := snaps
	if len(focus) > e.cfg.FocusSetSize {
		focus = focus[:e.cfg.FocusSetSize]
	}

	current, err := e.store.LoadCurrentState()
	if err != nil {
		return fmt.Errorf("failed to load current state: %w", err)
	}

	// The active ticker is gated even when it has fallen out of the focus
	// set; its broken gates are what drive forced switches.
	if current.StockTicker != "" && !containsTicker(focus, current.StockTicker) {
		for i := range snaps {
			if snaps[i].Ticker == current.StockTicker {
				focus = append(focus, snaps[i])
				break
			}
		}
	}

	emaStates, err := e.store.LoadEmaStates()
	if err != nil {
		return fmt.Errorf("failed to load EMA states: %w", err)
	}
	e.foldFundingHistory(ctx, focus, emaStates)

	userCfg, err := e.store.LoadUserConfig()
	if err != nil {
		return fmt.Errorf("failed to load user config: %w", err)
	}

	candidates, rejected, currentResult := e.gateAndRank(ctx, focus, emaStates, current.StockTicker)

	currentEligible := true
	if currentResult != nil {
		currentEligible = currentResult.Eligible
	}

	currentEma := models.APR(0)
	if state, ok := emaStates[current.StockTicker]; ok && state.Complete() {
		currentEma = state.Value
	}
	for i := range candidates {
		candidates[i].AdvantageAPR = candidates[i].EmaAPR - currentEma
	}

	sel := SelectBest(candidates, current.StockTicker, currentEligible,
		models.APR(e.cfg.HurdleAPRPoints), models.APR(e.cfg.ApproachAPRPoints))

	if err := e.store.ReplaceCandidates(candidates); err != nil {
		return fmt.Errorf("failed to persist candidates: %w", err)
	}
	if err := e.store.ReplaceRejected(rejected); err != nil {
		return fmt.Errorf("failed to persist rejections: %w", err)
	}

	e.evaluateAlerts(ctx, sel, currentResult, current.StockTicker)

	if !userCfg.Complete() {
		logger.Info("User configuration incomplete, allocation not computed")
		return ErrConfigIncomplete
	}

	if err := e.computeAllocation(ctx, sel, focus, emaStates, userCfg); err != nil {
		return err
	}

	logger.Info("Decision cycle complete in %s: %d candidates, signal %s, chosen %s",
		time.Since(started).Round(time.Millisecond), len(candidates), sel.Signal, sel.Chosen)
	return nil
}

// foldFundingHistory fetches realized funding for each focus ticker and folds
// previously-unseen epochs into its EMA state. Per-ticker failures degrade
// the cycle, they never abort it.
func (e *Engine) foldFundingHistory(ctx context.Context, focus []models.MarketSnapshot, emaStates map[string]*models.EmaState) {
	lookback := time.Duration(2*models.EmaWindow) * 8 * time.Hour

	for i := range focus {
		snap := &focus[i]
		state, ok := emaStates[snap.Ticker]
		if !ok {
			state = NewEmaState(snap.Ticker)
			emaStates[snap.Ticker] = state
		}

		start := state.LastEpoch
		if start.IsZero() {
			start = time.Now().Add(-lookback)
		}

		epochs, err := e.markets.FetchFundingHistory(ctx, snap.Coin, start)
		if err != nil {
			e.recordStale(ctx, snap.Ticker, err)
			continue
		}
		delete(e.staleCycles, snap.Ticker)

		folded := 0
		for _, epoch := range epochs {
			epoch.Ticker = snap.Ticker
			inserted, err := e.store.AppendEpoch(epoch)
			if err != nil {
				logger.Warn("Failed to append funding epoch %s: %v", epoch.Key(), err)
				continue
			}
			if inserted && FoldEpoch(state, epoch) {
				folded++
			}
		}
		if folded > 0 {
			if err := e.store.SaveEmaState(state); err != nil {
				logger.Error("Failed to save EMA state for %s: %v", snap.Ticker, err)
			}
		}
	}
}

// recordStale counts consecutive fetch misses for a ticker and surfaces a
// run of them as INFO.
func (e *Engine) recordStale(ctx context.Context, ticker string, cause error) {
	e.staleCycles[ticker]++
	logger.Warn("Funding history fetch failed for %s (%d consecutive): %v", ticker, e.staleCycles[ticker], cause)
	if e.staleCycles[ticker] < e.cfg.StaleCycleLimit {
		return
	}
	msg := fmt.Sprintf("Funding data stale for %s: %d consecutive fetch failures", ticker, e.staleCycles[ticker])
	if _, err := e.governor.Trigger(ctx, models.SeverityInfo, ticker, msg, "stale:"+ticker, 0); err != nil {
		logger.Warn("Failed to record staleness alert for %s: %v", ticker, err)
	}
}

// gateAndRank runs the safety gates over the focus set and splits it into the
// candidate table and the rejection list. The active ticker's result is
// returned separately whether or not it passed.
func (e *Engine) gateAndRank(ctx context.Context, focus []models.MarketSnapshot, emaStates map[string]*models.EmaState, currentTicker string) ([]models.Candidate, []models.RejectedMarket, *models.EligibilityResult) {
	gates := GateConfig{
		MinMaxLeverage:    e.cfg.MinMaxLeverage,
		VolumeMin:         e.cfg.VolumeMin,
		MaxDivergence:     e.cfg.MaxDivergence,
		OICapFraction:     e.cfg.OICapFraction,
		MinViableNotional: e.cfg.MinViableNotional,
	}
	if userCfg, err := e.store.LoadUserConfig(); err == nil {
		gates.EquityVolumeMin = userCfg.EquityVolumeMin
	}

	var candidates []models.Candidate
	var rejected []models.RejectedMarket
	var currentResult *models.EligibilityResult

	for i := range focus {
		snap := &focus[i]

		listed := e.listings.IsListed(ctx, snap.Ticker)
		equityPx := 0.0
		if listed {
			px, err := e.quotes.Quote(ctx, snap.Ticker)
			if err != nil {
				logger.Debug("Equity quote unavailable for %s: %v", snap.Ticker, err)
			} else {
				equityPx = px
			}
		}

		result := CheckEligibility(snap, listed, equityPx, 0, gates)
		if snap.Ticker == currentTicker {
			r := result
			currentResult = &r
		}

		if !result.Eligible {
			rejected = append(rejected, models.RejectedMarket{Ticker: snap.Ticker, Reasons: result.Reasons})
			continue
		}

		cand := models.Candidate{
			Ticker:         snap.Ticker,
			InstantAPR:     snap.FundingAPR,
			Volume24h:      snap.Volume24h,
			OIUSD:          snap.OIUSD,
			RecommendedCap: e.cfg.OICapFraction * snap.OIUSD,
		}
		if state, ok := emaStates[snap.Ticker]; ok {
			cand.EmaAPR = state.Value
			cand.EmaComplete = state.Complete()
		}
		candidates = append(candidates, cand)
	}
	return candidates, rejected, currentResult
}

// evaluateAlerts turns the selection outcome into governor triggers.
func (e *Engine) evaluateAlerts(ctx context.Context, sel Selection, currentResult *models.EligibilityResult, currentTicker string) {
	switch sel.Signal {
	case SignalForced:
		reasons := "market data unavailable"
		if currentResult != nil {
			reasons = strings.Join(currentResult.Reasons, "; ")
		}
		msg := fmt.Sprintf("%s failed safety gates: %s.", currentTicker, reasons)
		if sel.Best != "" {
			msg += fmt.Sprintf(" Switch to %s (EMA %.1f%% APR).", sel.Best, float64(sel.BestEma))
		} else {
			msg += " No eligible replacement found."
		}
		key := fmt.Sprintf("critical:%s:%s", currentTicker, gateKey(currentResult))
		e.trigger(ctx, models.SeverityCritical, currentTicker, msg, key, 0)

	case SignalSwitch:
		msg := fmt.Sprintf("Switch opportunity: %s EMA %.1f%% APR is %.1f points above %s. %s",
			sel.Best, float64(sel.BestEma), float64(sel.AdvantageAPR), displayCurrent(currentTicker),
			executionHint(time.Now()))
		e.trigger(ctx, models.SeverityOpportunity, sel.Best, msg, "opportunity:"+sel.Best, sel.AdvantageAPR)

	case SignalApproaching:
		msg := fmt.Sprintf("%s is approaching the switch hurdle: %.1f points above %s.",
			sel.Best, float64(sel.AdvantageAPR), displayCurrent(currentTicker))
		e.trigger(ctx, models.SeverityInfo, sel.Best, msg, "approach:"+sel.Best, sel.AdvantageAPR)
	}
}

func (e *Engine) trigger(ctx context.Context, severity models.Severity, ticker, msg, key string, advantage models.APR) {
	if _, err := e.governor.Trigger(ctx, severity, ticker, msg, key, advantage); err != nil {
		logger.Error("Failed to record %s alert: %v", severity, err)
	}
}

// computeAllocation sizes the chosen ticker and persists the new target.
// An InvariantViolation retains the prior allocation and raises an internal
// CRITICAL distinct from market-driven ones.
func (e *Engine) computeAllocation(ctx context.Context, sel Selection, focus []models.MarketSnapshot, emaStates map[string]*models.EmaState, userCfg *models.UserConfig) error {
	if sel.Chosen == "" {
		logger.Info("No viable ticker to allocate to, retaining prior allocation")
		return nil
	}

	var snap *models.MarketSnapshot
	for i := range focus {
		if focus[i].Ticker == sel.Chosen {
			snap = &focus[i]
			break
		}
	}
	if snap == nil {
		logger.Warn("No snapshot for chosen ticker %s, retaining prior allocation", sel.Chosen)
		return nil
	}

	sizing := SizingConfig{
		OICapFraction:      e.cfg.OICapFraction,
		CollateralFraction: e.cfg.CollateralFraction,
		OpsReserveUSD:      e.cfg.OpsReserveUSD,
	}
	nMax := MaxNotional(snap.OpenInterest, snap.MarkPx, userCfg.Deployable(), sizing)

	allocation, err := BuildAllocation(sel.Chosen, nMax, userCfg.Deployable(), userCfg.EmergencyBufferUSD, sizing, time.Now())
	if err != nil {
		msg := fmt.Sprintf("Internal allocation error for %s: %v. Prior allocation retained.", sel.Chosen, err)
		e.trigger(ctx, models.SeverityCritical, "", msg, "critical:internal:allocation", 0)
		return err
	}

	chosenEma := models.APR(0)
	if state, ok := emaStates[sel.Chosen]; ok {
		chosenEma = state.Value
	}
	EstimateYield(allocation, chosenEma, userCfg.NAVUSD, YieldConfig{
		CoinbaseAPR:        userCfg.CoinbaseAPR,
		InsuranceBudgetPct: userCfg.InsuranceBudgetPct,
		FeeDragAPR:         models.APR(e.cfg.FeeDragAPR),
	})

	if err := e.store.SaveAllocation(allocation); err != nil {
		return fmt.Errorf("failed to persist allocation: %w", err)
	}
	return nil
}

// gateKey derives a stable dedupe suffix from the set of broken gates, so a
// different failure mix counts as a new, independent CRITICAL condition.
func gateKey(result *models.EligibilityResult) string {
	if result == nil {
		return "nodata"
	}
	names := make([]string, 0, len(result.Reasons))
	for _, reason := range result.Reasons {
		head, _, _ := strings.Cut(reason, ":")
		names = append(names, strings.ReplaceAll(strings.TrimSpace(head), " ", "-"))
	}
	return strings.Join(names, ",")
}

func displayCurrent(ticker string) string {
	if ticker == "" {
		return "holding cash"
	}
	return "current " + ticker
}

func containsTicker(snaps []models.MarketSnapshot, ticker string) bool {
	for i := range snaps {
		if snaps[i].Ticker == ticker {
			return true
		}
	}
	return false
}
