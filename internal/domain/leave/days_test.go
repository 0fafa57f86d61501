package leave

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCountDaysInclusive(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"single day", date(2025, 3, 10), date(2025, 3, 10), 1},
		{"work week", date(2025, 3, 10), date(2025, 3, 14), 5},
		{"across month boundary", date(2025, 1, 30), date(2025, 2, 2), 4},
		{"across year boundary", date(2024, 12, 30), date(2025, 1, 2), 4},
		{"leap day span", date(2024, 2, 28), date(2024, 3, 1), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CountDays(tc.start, tc.end)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d days, got %d", tc.want, got)
			}
		})
	}
}

func TestCountDaysInvalidRange(t *testing.T) {
	_, err := CountDays(date(2025, 3, 14), date(2025, 3, 10))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestCountDaysIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	end := time.Date(2025, 3, 11, 0, 15, 0, 0, time.UTC)
	got, err := CountDays(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 days, got %d", got)
	}
}

func TestCountDaysAcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// The last Sunday of March 2025 loses an hour in Paris.
	start := time.Date(2025, 3, 28, 12, 0, 0, 0, loc)
	end := time.Date(2025, 3, 31, 12, 0, 0, 0, loc)
	got, err := CountDays(start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 4 {
		t.Fatalf("expected 4 days, got %d", got)
	}
}
