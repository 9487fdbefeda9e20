// Package equity validates hedge symbols against the NASDAQ public symbol
// directories and fetches equity quotes for the price-divergence gate.
package equity

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hedgewatch/hedgewatch/internal/logger"
)

// Directory caches the set of publicly listed US equity symbols.
// On success the cache is refreshed once per CacheTTL; after a failed fetch
// it retries after RetryTTL. With no cache at all it fails open: the hedge
// universe is curated, so an unreachable directory should not halt decisions.
type Directory struct {
	nasdaqURL  string
	otherURL   string
	httpClient *http.Client
	cacheTTL   time.Duration
	retryTTL   time.Duration

	mu          sync.Mutex
	symbols     map[string]struct{}
	lastFetched time.Time
}

// NewDirectory creates a symbol directory backed by the two NASDAQ trader
// symbol files.
func NewDirectory(nasdaqURL, otherURL string, timeout, cacheTTL, retryTTL time.Duration) *Directory {
	return &Directory{
		nasdaqURL:  nasdaqURL,
		otherURL:   otherURL,
		httpClient: &http.Client{Timeout: timeout},
		cacheTTL:   cacheTTL,
		retryTTL:   retryTTL,
	}
}

// IsListed reports whether ticker appears in the public symbol directories,
// refreshing the cache when stale.
func (d *Directory) IsListed(ctx context.Context, ticker string) bool {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	d.mu.Lock()
	fresh := !d.lastFetched.IsZero() && time.Since(d.lastFetched) <= d.ttlLocked()
	if fresh {
		if len(d.symbols) == 0 {
			// Recent fetch failure with no cache; fail open.
			d.mu.Unlock()
			return true
		}
		_, ok := d.symbols[ticker]
		d.mu.Unlock()
		return ok
	}
	d.mu.Unlock()

	d.Refresh(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.symbols) == 0 {
		return true
	}
	_, ok := d.symbols[ticker]
	return ok
}

func (d *Directory) ttlLocked() time.Duration {
	if len(d.symbols) > 0 {
		return d.cacheTTL
	}
	return d.retryTTL
}

// Refresh downloads both symbol files and replaces the cache. A fetch that
// yields zero symbols keeps the previous cache.
func (d *Directory) Refresh(ctx context.Context) {
	combined := make(map[string]struct{})
	for _, url := range []string{d.nasdaqURL, d.otherURL} {
		symbols, err := d.fetchSymbolFile(ctx, url)
		if err != nil {
			logger.Warn("Failed to fetch symbol directory %s: %v", url, err)
			continue
		}
		for sym := range symbols {
			combined[sym] = struct{}{}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Always stamp the attempt so failures do not retry every call.
	d.lastFetched = time.Now()
	if len(combined) > 0 {
		d.symbols = combined
		logger.Info("Loaded %d public symbols", len(combined))
	} else {
		logger.Warn("Symbol directory fetch returned 0 symbols, keeping previous cache")
	}
}

// fetchSymbolFile downloads one pipe-delimited NASDAQ directory file and
// returns the symbol set.
func (d *Directory) fetchSymbolFile(ctx context.Context, url string) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	symbols := make(map[string]struct{})
	scanner := bufio.NewScanner(resp.Body)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false // header row
			continue
		}
		if strings.HasPrefix(line, "File Creation Time") {
			break
		}
		fields := strings.Split(line, "|")
		if len(fields) == 0 {
			continue
		}
		sym := strings.TrimSpace(fields[0])
		if sym != "" && isAlpha(sym) {
			symbols[strings.ToUpper(sym)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return symbols, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return len(s) > 0
}
