// Package storage provides SQLite-backed persistence for snapshots, funding
// epochs, EMA state, allocations, and the alert log.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/hedgewatch/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "hedgewatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_snapshots (
			ticker        TEXT PRIMARY KEY,
			coin          TEXT NOT NULL,
			mark_px       REAL NOT NULL,
			mid_px        REAL NOT NULL,
			funding_rate  REAL NOT NULL,
			funding_apr   REAL NOT NULL,
			open_interest REAL NOT NULL,
			oi_usd        REAL NOT NULL,
			volume_24h    REAL NOT NULL,
			max_leverage  INTEGER NOT NULL,
			observed_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funding_epochs (
			ticker    TEXT NOT NULL,
			epoch_end INTEGER NOT NULL,
			rate_8h   REAL NOT NULL,
			apr       REAL NOT NULL,
			PRIMARY KEY (ticker, epoch_end)
		)`,
		`CREATE TABLE IF NOT EXISTS ema_state (
			ticker        TEXT PRIMARY KEY,
			value         REAL NOT NULL,
			epochs_folded INTEGER NOT NULL,
			last_epoch    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS target_allocation (
			id                    INTEGER PRIMARY KEY CHECK (id = 1),
			ticker                TEXT NOT NULL,
			stock_long_usd        REAL NOT NULL,
			perp_short_usd        REAL NOT NULL,
			perp_collateral_usd   REAL NOT NULL,
			coinbase_treasury_usd REAL NOT NULL,
			coinbase_total_usd    REAL NOT NULL,
			perp_leverage         REAL,
			est_net_apr           REAL NOT NULL,
			est_net_usd_per_day   REAL NOT NULL,
			zero_sized            INTEGER NOT NULL DEFAULT 0,
			zero_sized_reason     TEXT,
			computed_at           INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS candidates (
			ticker          TEXT PRIMARY KEY,
			instant_apr     REAL NOT NULL,
			ema_apr         REAL NOT NULL,
			ema_complete    INTEGER NOT NULL,
			volume_24h      REAL NOT NULL,
			oi_usd          REAL NOT NULL,
			recommended_cap REAL NOT NULL,
			advantage_apr   REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rejected_markets (
			ticker  TEXT PRIMARY KEY,
			reasons TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS current_state (
			id                  INTEGER PRIMARY KEY CHECK (id = 1),
			coinbase_usd        REAL NOT NULL DEFAULT 0,
			brokerage_cash_usd  REAL NOT NULL DEFAULT 0,
			stock_ticker        TEXT NOT NULL DEFAULT '',
			stock_value_usd     REAL NOT NULL DEFAULT 0,
			perp_collateral_usd REAL NOT NULL DEFAULT 0,
			perp_short_usd      REAL NOT NULL DEFAULT 0,
			updated_at          INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO current_state (id) VALUES (1)`,
		`CREATE TABLE IF NOT EXISTS user_config (
			id                   INTEGER PRIMARY KEY CHECK (id = 1),
			nav_usd              REAL NOT NULL DEFAULT 0,
			emergency_buffer_usd REAL NOT NULL DEFAULT 0,
			coinbase_apr         REAL NOT NULL DEFAULT 0,
			insurance_budget_pct REAL NOT NULL DEFAULT 0,
			equity_volume_min    REAL NOT NULL DEFAULT 0,
			updated_at           INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO user_config (id) VALUES (1)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id            TEXT PRIMARY KEY,
			severity      TEXT NOT NULL,
			ticker        TEXT,
			message       TEXT NOT NULL,
			dedupe_key    TEXT NOT NULL,
			advantage_apr REAL NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			last_sent_at  INTEGER NOT NULL,
			send_count    INTEGER NOT NULL DEFAULT 0,
			acknowledged  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_dedupe ON alert_events(dedupe_key, last_sent_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_severity ON alert_events(severity, acknowledged)`,
		`CREATE TABLE IF NOT EXISTS cycle_lease (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			owner      TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot upserts the latest observation for a ticker.
func (s *Storage) SaveSnapshot(snap *models.MarketSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO market_snapshots
			(ticker, coin, mark_px, mid_px, funding_rate, funding_apr,
			 open_interest, oi_usd, volume_24h, max_leverage, observed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		snap.Ticker, snap.Coin, snap.MarkPx, snap.MidPx, snap.FundingRate, float64(snap.FundingAPR),
		snap.OpenInterest, snap.OIUSD, snap.Volume24h, snap.MaxLeverage, snap.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Snapshots returns all stored snapshots ordered by instantaneous funding APR
// descending, which is the funding-focus ranking order.
func (s *Storage) Snapshots() ([]models.MarketSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT ticker, coin, mark_px, mid_px, funding_rate, funding_apr,
		       open_interest, oi_usd, volume_24h, max_leverage, observed_at
		FROM market_snapshots ORDER BY funding_apr DESC, ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.MarketSnapshot
	for rows.Next() {
		var snap models.MarketSnapshot
		var apr float64
		var observedNano int64
		if err := rows.Scan(
			&snap.Ticker, &snap.Coin, &snap.MarkPx, &snap.MidPx, &snap.FundingRate, &apr,
			&snap.OpenInterest, &snap.OIUSD, &snap.Volume24h, &snap.MaxLeverage, &observedNano,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.FundingAPR = models.APR(apr)
		snap.Timestamp = time.Unix(0, observedNano)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// AppendEpoch inserts a funding epoch if it has not been seen before.
// Returns true if the row was inserted, false if it was a duplicate.
func (s *Storage) AppendEpoch(e models.FundingEpoch) (bool, error) {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO funding_epochs (ticker, epoch_end, rate_8h, apr)
		VALUES (?,?,?,?)`,
		e.Ticker, e.EpochEnd.Unix(), e.Rate8h, float64(e.APR),
	)
	if err != nil {
		return false, fmt.Errorf("failed to append epoch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Epochs returns the stored epochs for a ticker in ascending time order.
func (s *Storage) Epochs(ticker string) ([]models.FundingEpoch, error) {
	rows, err := s.db.Query(`
		SELECT ticker, epoch_end, rate_8h, apr
		FROM funding_epochs WHERE ticker = ? ORDER BY epoch_end ASC`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []models.FundingEpoch
	for rows.Next() {
		var e models.FundingEpoch
		var end int64
		var apr float64
		if err := rows.Scan(&e.Ticker, &end, &e.Rate8h, &apr); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		e.EpochEnd = time.Unix(end, 0).UTC()
		e.APR = models.APR(apr)
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// SaveEmaState upserts the smoothed funding state for a ticker.
func (s *Storage) SaveEmaState(state *models.EmaState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ema_state (ticker, value, epochs_folded, last_epoch)
		VALUES (?,?,?,?)`,
		state.Ticker, float64(state.Value), state.EpochsFolded, state.LastEpoch.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save ema state: %w", err)
	}
	return nil
}

// LoadEmaStates returns all per-ticker EMA states keyed by ticker.
func (s *Storage) LoadEmaStates() (map[string]*models.EmaState, error) {
	rows, err := s.db.Query(`SELECT ticker, value, epochs_folded, last_epoch FROM ema_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ema states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]*models.EmaState)
	for rows.Next() {
		var state models.EmaState
		var value float64
		var lastEpoch int64
		if err := rows.Scan(&state.Ticker, &value, &state.EpochsFolded, &lastEpoch); err != nil {
			return nil, fmt.Errorf("failed to scan ema state: %w", err)
		}
		state.Value = models.APR(value)
		state.LastEpoch = time.Unix(lastEpoch, 0).UTC()
		states[state.Ticker] = &state
	}
	return states, rows.Err()
}

// SaveAllocation replaces the singleton target allocation wholesale.
func (s *Storage) SaveAllocation(a *models.TargetAllocation) error {
	var leverage sql.NullFloat64
	if a.PerpLeverage != nil {
		leverage = sql.NullFloat64{Float64: *a.PerpLeverage, Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO target_allocation
			(id, ticker, stock_long_usd, perp_short_usd, perp_collateral_usd,
			 coinbase_treasury_usd, coinbase_total_usd, perp_leverage,
			 est_net_apr, est_net_usd_per_day, zero_sized, zero_sized_reason, computed_at)
		VALUES (1,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.Ticker, a.StockLongUSD, a.PerpShortNotionalUSD, a.PerpCollateralUSD,
		a.CoinbaseTreasuryUSD, a.CoinbaseTotalUSD, leverage,
		float64(a.EstimatedNetAPR), a.EstimatedNetUSDPerDay,
		boolToInt(a.ZeroSized), a.ZeroSizedReason, a.ComputedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

// LoadAllocation returns the last persisted allocation, or nil if none exists.
func (s *Storage) LoadAllocation() (*models.TargetAllocation, error) {
	row := s.db.QueryRow(`
		SELECT ticker, stock_long_usd, perp_short_usd, perp_collateral_usd,
		       coinbase_treasury_usd, coinbase_total_usd, perp_leverage,
		       est_net_apr, est_net_usd_per_day, zero_sized, zero_sized_reason, computed_at
		FROM target_allocation WHERE id = 1`)

	var a models.TargetAllocation
	var leverage sql.NullFloat64
	var apr float64
	var zeroSized int
	var reason sql.NullString
	var computedNano int64
	err := row.Scan(
		&a.Ticker, &a.StockLongUSD, &a.PerpShortNotionalUSD, &a.PerpCollateralUSD,
		&a.CoinbaseTreasuryUSD, &a.CoinbaseTotalUSD, &leverage,
		&apr, &a.EstimatedNetUSDPerDay, &zeroSized, &reason, &computedNano,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	}
	if leverage.Valid {
		v := leverage.Float64
		a.PerpLeverage = &v
	}
	a.EstimatedNetAPR = models.APR(apr)
	a.ZeroSized = zeroSized != 0
	a.ZeroSizedReason = reason.String
	a.ComputedAt = time.Unix(0, computedNano)
	return &a, nil
}

// ReplaceCandidates swaps in the ranked candidate table for the current cycle.
func (s *Storage) ReplaceCandidates(cands []models.Candidate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM candidates`); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}
	for _, c := range cands {
		if _, err := tx.Exec(`
			INSERT INTO candidates
				(ticker, instant_apr, ema_apr, ema_complete, volume_24h, oi_usd, recommended_cap, advantage_apr)
			VALUES (?,?,?,?,?,?,?,?)`,
			c.Ticker, float64(c.InstantAPR), float64(c.EmaAPR), boolToInt(c.EmaComplete),
			c.Volume24h, c.OIUSD, c.RecommendedCap, float64(c.AdvantageAPR),
		); err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
	}
	return tx.Commit()
}

// Candidates returns the ranked candidate table, best EMA first.
func (s *Storage) Candidates() ([]models.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT ticker, instant_apr, ema_apr, ema_complete, volume_24h, oi_usd, recommended_cap, advantage_apr
		FROM candidates ORDER BY ema_apr DESC, ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var cands []models.Candidate
	for rows.Next() {
		var c models.Candidate
		var instant, ema, advantage float64
		var complete int
		if err := rows.Scan(&c.Ticker, &instant, &ema, &complete, &c.Volume24h, &c.OIUSD, &c.RecommendedCap, &advantage); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.InstantAPR = models.APR(instant)
		c.EmaAPR = models.APR(ema)
		c.EmaComplete = complete != 0
		c.AdvantageAPR = models.APR(advantage)
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// ReplaceRejected swaps in the rejected-markets table for the current cycle.
func (s *Storage) ReplaceRejected(rejected []models.RejectedMarket) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM rejected_markets`); err != nil {
		return fmt.Errorf("failed to clear rejected markets: %w", err)
	}
	for _, r := range rejected {
		reasons, err := json.Marshal(r.Reasons)
		if err != nil {
			return fmt.Errorf("failed to marshal reasons: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO rejected_markets (ticker, reasons) VALUES (?,?)`,
			r.Ticker, string(reasons),
		); err != nil {
			return fmt.Errorf("failed to insert rejected market: %w", err)
		}
	}
	return tx.Commit()
}

// Rejected returns the rejected-markets table from the last cycle.
func (s *Storage) Rejected() ([]models.RejectedMarket, error) {
	rows, err := s.db.Query(`SELECT ticker, reasons FROM rejected_markets ORDER BY ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected markets: %w", err)
	}
	defer rows.Close()

	var rejected []models.RejectedMarket
	for rows.Next() {
		var r models.RejectedMarket
		var reasons string
		if err := rows.Scan(&r.Ticker, &reasons); err != nil {
			return nil, fmt.Errorf("failed to scan rejected market: %w", err)
		}
		if err := json.Unmarshal([]byte(reasons), &r.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
		rejected = append(rejected, r)
	}
	return rejected, rows.Err()
}

// LoadCurrentState returns the operator-maintained balances.
func (s *Storage) LoadCurrentState() (*models.CurrentState, error) {
	row := s.db.QueryRow(`
		SELECT coinbase_usd, brokerage_cash_usd, stock_ticker, stock_value_usd,
		       perp_collateral_usd, perp_short_usd, updated_at
		FROM current_state WHERE id = 1`)
	var c models.CurrentState
	var updatedNano int64
	if err := row.Scan(
		&c.CoinbaseUSD, &c.BrokerageCashUSD, &c.StockTicker, &c.StockMarketValueUSD,
		&c.PerpCollateralUSD, &c.PerpShortNotionalUSD, &updatedNano,
	); err != nil {
		return nil, fmt.Errorf("failed to load current state: %w", err)
	}
	if updatedNano > 0 {
		c.UpdatedAt = time.Unix(0, updatedNano)
	}
	return &c, nil
}

// SaveCurrentState overwrites the operator-maintained balances.
func (s *Storage) SaveCurrentState(c *models.CurrentState) error {
	_, err := s.db.Exec(`
		UPDATE current_state SET
			coinbase_usd=?, brokerage_cash_usd=?, stock_ticker=?, stock_value_usd=?,
			perp_collateral_usd=?, perp_short_usd=?, updated_at=?
		WHERE id = 1`,
		c.CoinbaseUSD, c.BrokerageCashUSD, c.StockTicker, c.StockMarketValueUSD,
		c.PerpCollateralUSD, c.PerpShortNotionalUSD, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save current state: %w", err)
	}
	return nil
}

// LoadUserConfig returns the operator-supplied engine inputs.
func (s *Storage) LoadUserConfig() (*models.UserConfig, error) {
	row := s.db.QueryRow(`
		SELECT nav_usd, emergency_buffer_usd, coinbase_apr, insurance_budget_pct,
		       equity_volume_min, updated_at
		FROM user_config WHERE id = 1`)
	var u models.UserConfig
	var apr float64
	var updatedNano int64
	if err := row.Scan(&u.NAVUSD, &u.EmergencyBufferUSD, &apr, &u.InsuranceBudgetPct, &u.EquityVolumeMin, &updatedNano); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	u.CoinbaseAPR = models.APR(apr)
	if updatedNano > 0 {
		u.UpdatedAt = time.Unix(0, updatedNano)
	}
	return &u, nil
}

// SaveUserConfig overwrites the operator-supplied engine inputs.
func (s *Storage) SaveUserConfig(u *models.UserConfig) error {
	_, err := s.db.Exec(`
		UPDATE user_config SET
			nav_usd=?, emergency_buffer_usd=?, coinbase_apr=?, insurance_budget_pct=?,
			equity_volume_min=?, updated_at=?
		WHERE id = 1`,
		u.NAVUSD, u.EmergencyBufferUSD, float64(u.CoinbaseAPR), u.InsuranceBudgetPct,
		u.EquityVolumeMin, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// AppendAlert inserts a new alert event row.
func (s *Storage) AppendAlert(a *models.AlertEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO alert_events
			(id, severity, ticker, message, dedupe_key, advantage_apr,
			 created_at, last_sent_at, send_count, acknowledged)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, string(a.Severity), a.Ticker, a.Message, a.DedupeKey, float64(a.AdvantageAPR),
		a.CreatedAt.UnixNano(), a.LastSentAt.UnixNano(), a.SendCount, boolToInt(a.Acknowledged),
	)
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// TouchAlert records another send of an existing alert event.
func (s *Storage) TouchAlert(id string, sentAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE alert_events SET last_sent_at=?, send_count=send_count+1 WHERE id=?`,
		sentAt.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// LatestAlertByKey returns the most recently sent alert with the given dedupe
// key, or nil if no such alert was ever sent.
func (s *Storage) LatestAlertByKey(key string) (*models.AlertEvent, error) {
	row := s.db.QueryRow(`
		SELECT `+alertCols+` FROM alert_events
		WHERE dedupe_key = ? ORDER BY last_sent_at DESC LIMIT 1`, key)
	a, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert by key: %w", err)
	}
	return a, nil
}

// UnacknowledgedCriticals returns all CRITICAL alert events awaiting
// acknowledgement, newest first.
func (s *Storage) UnacknowledgedCriticals() ([]*models.AlertEvent, error) {
	rows, err := s.db.Query(`
		SELECT `+alertCols+` FROM alert_events
		WHERE severity = 'CRITICAL' AND acknowledged = 0
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query criticals: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AlertEvent
	for rows.Next() {
		a, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks a CRITICAL alert as acknowledged by the operator.
func (s *Storage) AcknowledgeAlert(id string) error {
	res, err := s.db.Exec(`UPDATE alert_events SET acknowledged=1 WHERE id=? AND severity='CRITICAL'`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("critical alert not found: %s", id)
	}
	return nil
}

// AcquireLease attempts to take the decision-cycle lease for owner until
// now+ttl. It succeeds when no lease exists, the current lease has expired,
// or owner already holds it. Returns true when the lease is held by owner.
func (s *Storage) AcquireLease(owner string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO cycle_lease (id, owner, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner=excluded.owner, expires_at=excluded.expires_at
		WHERE cycle_lease.owner = excluded.owner OR cycle_lease.expires_at <= ?`,
		owner, now.Add(ttl).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (s *Storage) ReleaseLease(owner string) error {
	if _, err := s.db.Exec(`DELETE FROM cycle_lease WHERE id=1 AND owner=?`, owner); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

const alertCols = `id, severity, ticker, message, dedupe_key, advantage_apr,
	created_at, last_sent_at, send_count, acknowledged`

func scanAlert(scan func(...any) error) (*models.AlertEvent, error) {
	var a models.AlertEvent
	var severity string
	var ticker sql.NullString
	var advantage float64
	var createdNano, sentNano int64
	var acked int
	err := scan(
		&a.ID, &severity, &ticker, &a.Message, &a.DedupeKey, &advantage,
		&createdNano, &sentNano, &a.SendCount, &acked,
	)
	if err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.Ticker = ticker.String
	a.AdvantageAPR = models.APR(advantage)
	a.CreatedAt = time.Unix(0, createdNano)
	a.LastSentAt = time.Unix(0, sentNano)
	a.Acknowledged = acked != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
