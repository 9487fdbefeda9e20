package equity

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// QuoteClient fetches delayed equity quotes from a CSV endpoint. The URL
// template receives the lowercased ticker via %s.
type QuoteClient struct {
	urlTemplate string
	httpClient  *http.Client
}

// NewQuoteClient creates a quote client against the given URL template.
func NewQuoteClient(urlTemplate string, timeout time.Duration) *QuoteClient {
	return &QuoteClient{
		urlTemplate: urlTemplate,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Quote returns the last traded price for ticker. A missing or unparseable
// quote is an error; the caller decides whether the gate fails open.
func (q *QuoteClient) Quote(ctx context.Context, ticker string) (float64, error) {
	url := fmt.Sprintf(q.urlTemplate, strings.ToLower(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote fetch for %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote fetch for %s: unexpected status %d", ticker, resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("quote parse for %s: %w", ticker, err)
	}
	if len(rows) < 2 {
		return 0, fmt.Errorf("quote for %s: no data rows", ticker)
	}

	header := rows[0]
	closeIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "Close") {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 || closeIdx >= len(rows[1]) {
		return 0, fmt.Errorf("quote for %s: no close column", ticker)
	}

	raw := strings.TrimSpace(rows[1][closeIdx])
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("quote for %s: bad close %q", ticker, raw)
	}
	return price, nil
}
