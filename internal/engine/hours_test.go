package engine

import (
	"testing"
	"time"
)

func TestNyseOpen(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"midday weekday", time.Date(2025, 8, 29, 12, 0, 0, 0, et), true}, // Friday
		{"open boundary", time.Date(2025, 8, 29, 9, 30, 0, 0, et), true},
		{"just before open", time.Date(2025, 8, 29, 9, 29, 0, 0, et), false},
		{"close boundary", time.Date(2025, 8, 29, 16, 0, 0, 0, et), false},
		{"saturday", time.Date(2025, 8, 30, 12, 0, 0, 0, et), false},
		{"sunday", time.Date(2025, 8, 31, 12, 0, 0, 0, et), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nyseOpen(tt.t); got != tt.want {
				t.Errorf("nyseOpen(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestExecutionHint(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if got := executionHint(time.Date(2025, 8, 29, 12, 0, 0, 0, et)); got != "Execute now." {
		t.Errorf("open hours hint = %q", got)
	}
	if got := executionHint(time.Date(2025, 8, 30, 12, 0, 0, 0, et)); got != "Execute at next NYSE open." {
		t.Errorf("closed hours hint = %q", got)
	}
}
