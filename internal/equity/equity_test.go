package equity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const nasdaqFile = `Symbol|Security Name|Market Category|Test Issue|Financial Status|Round Lot Size|ETF|NextShares
AAPL|Apple Inc. - Common Stock|Q|N|N|100|N|N
TSLA|Tesla, Inc. - Common Stock|Q|N|N|100|N|N
File Creation Time: 0830202522:01|||||||
`

const otherFile = `ACT Symbol|Security Name|Exchange|CQS Symbol|ETF|Round Lot Size|Test Issue|NASDAQ Symbol
IBM|International Business Machines Corporation Common Stock|N|IBM|N|100|N|IBM
BRK$A|Berkshire Hathaway Inc.|N|BRK.A|N|1|N|BRK.A
File Creation Time: 0830202522:01|||||||
`

func newTestDirectory(t *testing.T, nasdaqBody, otherBody string, status int) (*Directory, *int) {
	t.Helper()
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/nasdaqlisted.txt", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
		w.Write([]byte(nasdaqBody))
	})
	mux.HandleFunc("/otherlisted.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(otherBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	dir := NewDirectory(server.URL+"/nasdaqlisted.txt", server.URL+"/otherlisted.txt",
		5*time.Second, 24*time.Hour, 5*time.Minute)
	return dir, &calls
}

func TestDirectoryIsListed(t *testing.T) {
	dir, _ := newTestDirectory(t, nasdaqFile, otherFile, http.StatusOK)
	ctx := context.Background()

	tests := []struct {
		ticker string
		want   bool
	}{
		{"AAPL", true},
		{"aapl", true},
		{"TSLA", true},
		{"IBM", true},
		{"BRK$A", false}, // non-alpha symbols excluded
		{"ZZZZ", false},
	}
	for _, tt := range tests {
		if got := dir.IsListed(ctx, tt.ticker); got != tt.want {
			t.Errorf("IsListed(%q) = %v, want %v", tt.ticker, got, tt.want)
		}
	}
}

func TestDirectoryCachesAcrossCalls(t *testing.T) {
	dir, calls := newTestDirectory(t, nasdaqFile, otherFile, http.StatusOK)
	ctx := context.Background()

	dir.IsListed(ctx, "AAPL")
	dir.IsListed(ctx, "TSLA")
	dir.IsListed(ctx, "ZZZZ")
	if *calls != 1 {
		t.Errorf("expected 1 directory fetch, got %d", *calls)
	}
}

func TestDirectoryFailsOpenWithoutCache(t *testing.T) {
	dir, _ := newTestDirectory(t, "", "", http.StatusInternalServerError)
	ctx := context.Background()

	if !dir.IsListed(ctx, "ANYTHING") {
		t.Error("expected fail-open when directory was never fetched")
	}
}

func TestDirectoryKeepsCacheOnFailedRefresh(t *testing.T) {
	ok := true
	mux := http.NewServeMux()
	mux.HandleFunc("/nasdaqlisted.txt", func(w http.ResponseWriter, r *http.Request) {
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(nasdaqFile))
	})
	mux.HandleFunc("/otherlisted.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := NewDirectory(server.URL+"/nasdaqlisted.txt", server.URL+"/otherlisted.txt",
		5*time.Second, 24*time.Hour, 5*time.Minute)
	ctx := context.Background()

	if !dir.IsListed(ctx, "AAPL") {
		t.Fatal("expected AAPL listed after successful fetch")
	}

	ok = false
	dir.Refresh(ctx)
	if !dir.IsListed(ctx, "AAPL") {
		t.Error("expected previous cache to survive a failed refresh")
	}
}

func TestQuoteClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") == "tsla.us" {
			w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nTSLA.US,2025-08-29,22:00:07,340.1,346.2,338.8,345.98,61000000\n"))
			return
		}
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nXXXX.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"))
	}))
	defer server.Close()

	client := NewQuoteClient(server.URL+"/q/l/?s=%s.us&f=sd2t2ohlcv&h&e=csv", 5*time.Second)
	ctx := context.Background()

	price, err := client.Quote(ctx, "TSLA")
	if err != nil {
		t.Fatalf("Quote(TSLA) error: %v", err)
	}
	if price != 345.98 {
		t.Errorf("Quote(TSLA) = %v, want 345.98", price)
	}

	if _, err := client.Quote(ctx, "XXXX"); err == nil {
		t.Error("expected error for N/D quote")
	}
}
