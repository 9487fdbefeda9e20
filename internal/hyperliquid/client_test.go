package hyperliquid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestDisplayTicker(t *testing.T) {
	tests := []struct {
		coin string
		want string
	}{
		{"xyz:TSLA", "TSLA"},
		{"xyz:GOLD", "GOLD"},
		{"BTC", "BTC"},
		{"a:b:C", "C"},
	}
	for _, tt := range tests {
		if got := DisplayTicker(tt.coin); got != tt.want {
			t.Errorf("DisplayTicker(%q) = %q, want %q", tt.coin, got, tt.want)
		}
	}
}

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"universe": [
				{"name": "xyz:TSLA", "maxLeverage": 20},
				{"name": "xyz:NVDA", "maxLeverage": 10},
				{"name": "xyz:BAD", "maxLeverage": 5}
			]},
			[
				{"markPx": "250.0", "midPx": "250.1", "funding": "0.0000125", "openInterest": "40000", "dayNtlVlm": "8000000"},
				{"markPx": "120.0", "midPx": "120.2", "funding": "0.0001", "openInterest": "90000", "dayNtlVlm": "20000000"},
				{"markPx": "not-a-number", "midPx": "1", "funding": "0", "openInterest": "0", "dayNtlVlm": "0"}
			]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "xyz", 5*time.Second, ClientConfig{})
	snaps, err := c.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2 (bad asset skipped)", len(snaps))
	}

	tsla := snaps[0]
	if tsla.Ticker != "TSLA" || tsla.Coin != "xyz:TSLA" {
		t.Errorf("ticker mapping wrong: %+v", tsla)
	}
	// hourly 0.0000125 → 8h rate 0.0001 → APR 10.95 points
	if tsla.FundingRate < 0.0000999 || tsla.FundingRate > 0.0001001 {
		t.Errorf("FundingRate = %v, want 0.0001", tsla.FundingRate)
	}
	if tsla.FundingAPR < 10.94 || tsla.FundingAPR > 10.96 {
		t.Errorf("FundingAPR = %v, want ~10.95", tsla.FundingAPR)
	}
	if tsla.OIUSD != 40000*250.0 {
		t.Errorf("OIUSD = %v", tsla.OIUSD)
	}
	if tsla.MaxLeverage != 20 {
		t.Errorf("MaxLeverage = %d", tsla.MaxLeverage)
	}
}

func TestFetchMarketsRetriesOn500(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"universe": []}, []]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "xyz", 5*time.Second, ClientConfig{MaxRetries: 3, RetryDelayBase: time.Millisecond, RateLimitRPS: 1000, RateLimitBurst: 10})
	if _, err := c.FetchMarkets(context.Background()); err != nil {
		t.Fatalf("FetchMarkets after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestAggregateEpochs(t *testing.T) {
	// Two full 8h buckets of hourly rows plus one accruing bucket.
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var rows []fundingHistoryRow
	for h := 0; h < 18; h++ {
		rows = append(rows, fundingHistoryRow{
			Coin:        "xyz:TSLA",
			FundingRate: "0.0000125", // constant hourly rate
			Time:        base.Add(time.Duration(h) * time.Hour).UnixMilli(),
		})
	}
	now := base.Add(18 * time.Hour)

	epochs := aggregateEpochs("TSLA", rows, now)
	if len(epochs) != 2 {
		t.Fatalf("got %d epochs, want 2 (third still accruing)", len(epochs))
	}
	if !epochs[0].EpochEnd.Equal(base.Add(8 * time.Hour)) {
		t.Errorf("first epoch end = %v", epochs[0].EpochEnd)
	}
	if !epochs[1].EpochEnd.Equal(base.Add(16 * time.Hour)) {
		t.Errorf("second epoch end = %v", epochs[1].EpochEnd)
	}
	for _, e := range epochs {
		if e.Rate8h < 0.0000999 || e.Rate8h > 0.0001001 {
			t.Errorf("Rate8h = %v, want 0.0001", e.Rate8h)
		}
	}
}

func TestAggregateEpochsSparseBucket(t *testing.T) {
	// A bucket with only 4 hourly rows still scales the mean to 8 hours.
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var rows []fundingHistoryRow
	for h := 0; h < 4; h++ {
		rows = append(rows, fundingHistoryRow{
			FundingRate: strconv.FormatFloat(0.00002, 'f', -1, 64),
			Time:        base.Add(time.Duration(h) * time.Hour).UnixMilli(),
		})
	}
	epochs := aggregateEpochs("TSLA", rows, base.Add(9*time.Hour))
	if len(epochs) != 1 {
		t.Fatalf("got %d epochs, want 1", len(epochs))
	}
	want := 0.00002 * 8
	if epochs[0].Rate8h < want-1e-12 || epochs[0].Rate8h > want+1e-12 {
		t.Errorf("Rate8h = %v, want %v", epochs[0].Rate8h, want)
	}
}
