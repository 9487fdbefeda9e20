// Package hyperliquid queries the Hyperliquid /info endpoint for the TradFi
// perpetuals sub-exchange: market contexts and funding history.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/models"
	"golang.org/x/time/rate"
)

// Client provides access to the Hyperliquid info API.
type Client struct {
	infoURL        string
	dex            string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig tunes retry and rate-limit behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewClient creates a new info-endpoint client for the given sub-exchange.
func NewClient(infoURL, dex string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	return &Client{
		infoURL:        infoURL,
		dex:            dex,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

type assetMeta struct {
	Name        string `json:"name"`
	MaxLeverage int    `json:"maxLeverage"`
}

type assetCtx struct {
	MarkPx       string `json:"markPx"`
	MidPx        string `json:"midPx"`
	Funding      string `json:"funding"` // hourly fractional rate
	OpenInterest string `json:"openInterest"`
	DayNtlVlm    string `json:"dayNtlVlm"`
}

type fundingHistoryRow struct {
	Coin        string `json:"coin"`
	FundingRate string `json:"fundingRate"` // hourly fractional rate
	Time        int64  `json:"time"`        // ms
}

// FetchMarkets retrieves metaAndAssetCtxs for the configured sub-exchange and
// converts each asset into a MarketSnapshot. Assets with unparseable fields
// are skipped, not fatal.
func (c *Client) FetchMarkets(ctx context.Context) ([]models.MarketSnapshot, error) {
	body, err := c.post(ctx, map[string]any{"type": "metaAndAssetCtxs", "dex": c.dex})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}

	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode metaAndAssetCtxs: %w", err)
	}
	if len(payload) < 2 {
		return nil, fmt.Errorf("unexpected metaAndAssetCtxs shape: %d elements", len(payload))
	}

	var meta struct {
		Universe []assetMeta `json:"universe"`
	}
	if err := json.Unmarshal(payload[0], &meta); err != nil {
		return nil, fmt.Errorf("failed to decode universe: %w", err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(payload[1], &ctxs); err != nil {
		return nil, fmt.Errorf("failed to decode asset contexts: %w", err)
	}

	now := time.Now()
	var snaps []models.MarketSnapshot
	for i, m := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		snap, err := buildSnapshot(m, ctxs[i], now)
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func buildSnapshot(meta assetMeta, ctx assetCtx, now time.Time) (models.MarketSnapshot, error) {
	markPx, err := parseFloat(ctx.MarkPx)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	midPx, err := parseFloat(ctx.MidPx)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	hourly, err := parseFloat(ctx.Funding)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	oi, err := parseFloat(ctx.OpenInterest)
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	volume, err := parseFloat(ctx.DayNtlVlm)
	if err != nil {
		return models.MarketSnapshot{}, err
	}

	// The venue reports hourly funding; the engine works in 8h epochs.
	rate8h := hourly * 8
	snap := models.MarketSnapshot{
		Ticker:       DisplayTicker(meta.Name),
		Coin:         meta.Name,
		MarkPx:       markPx,
		MidPx:        midPx,
		FundingRate:  rate8h,
		FundingAPR:   models.EpochAPR(rate8h),
		OpenInterest: oi,
		OIUSD:        oi * markPx,
		Volume24h:    volume,
		MaxLeverage:  meta.MaxLeverage,
		Timestamp:    now,
	}
	if err := snap.Validate(); err != nil {
		return models.MarketSnapshot{}, err
	}
	return snap, nil
}

// FetchFundingHistory retrieves the hourly funding history for a coin since
// startTime and aggregates it into 8-hour epochs aligned on 00:00/08:00/16:00
// UTC. The epoch still accruing at the time of the call is dropped, since its
// realized rate is not final yet.
func (c *Client) FetchFundingHistory(ctx context.Context, coin string, startTime time.Time) ([]models.FundingEpoch, error) {
	body, err := c.post(ctx, map[string]any{
		"type":      "fundingHistory",
		"coin":      coin,
		"startTime": startTime.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch funding history for %s: %w", coin, err)
	}

	var rows []fundingHistoryRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode funding history for %s: %w", coin, err)
	}

	return aggregateEpochs(DisplayTicker(coin), rows, time.Now()), nil
}

// aggregateEpochs buckets hourly rows into 8h epochs. The epoch rate is the
// mean hourly rate in the bucket scaled to 8 hours, so sparse buckets do not
// understate funding.
func aggregateEpochs(ticker string, rows []fundingHistoryRow, now time.Time) []models.FundingEpoch {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[int64]*bucket)
	for _, row := range rows {
		hourly, err := parseFloat(row.FundingRate)
		if err != nil {
			continue
		}
		ts := time.UnixMilli(row.Time).UTC()
		start := ts.Truncate(8 * time.Hour)
		b, ok := buckets[start.Unix()]
		if !ok {
			b = &bucket{}
			buckets[start.Unix()] = b
		}
		b.sum += hourly
		b.count++
	}

	var epochs []models.FundingEpoch
	for startUnix, b := range buckets {
		end := time.Unix(startUnix, 0).UTC().Add(8 * time.Hour)
		if end.After(now) {
			continue // still accruing
		}
		rate8h := (b.sum / float64(b.count)) * 8
		epochs = append(epochs, models.FundingEpoch{
			Ticker:   ticker,
			EpochEnd: end,
			Rate8h:   rate8h,
			APR:      models.EpochAPR(rate8h),
		})
	}

	// Map iteration order is random; the tracker needs ascending time.
	for i := 1; i < len(epochs); i++ {
		for j := i; j > 0 && epochs[j].EpochEnd.Before(epochs[j-1].EpochEnd); j-- {
			epochs[j], epochs[j-1] = epochs[j-1], epochs[j]
		}
	}
	return epochs
}

// DisplayTicker strips the sub-exchange prefix: "xyz:TSLA" → "TSLA".
func DisplayTicker(coin string) string {
	if i := strings.LastIndex(coin, ":"); i >= 0 {
		return coin[i+1:]
	}
	return coin
}

// post performs a rate-limited POST with linear-backoff retry.
func (c *Client) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
