package forecast

import (
	"errors"
	"math"
	"testing"
	"time"
)

func series(start time.Time, prices ...float64) []PricePoint {
	out := make([]PricePoint, len(prices))
	for i, p := range prices {
		out[i] = PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	return out
}

func TestLinearTrend_ExactLine(t *testing.T) {
	trend, err := LinearTrend([]float64{10, 12, 14, 16, 18})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(trend.Slope-2) > 1e-9 || math.Abs(trend.Intercept-10) > 1e-9 {
		t.Fatalf("expected y = 2i + 10, got %+v", trend)
	}
}

func TestLinearTrend_InsufficientData(t *testing.T) {
	for _, values := range [][]float64{nil, {42}} {
		if _, err := LinearTrend(values); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("expected ErrInsufficientData for %v, got %v", values, err)
		}
	}
}

func TestProject_ContinuesLine(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	projected, err := Project(series(start, 100, 110, 120), 3)
	if err != nil {
		t.Fatal(err)
	}
	// indices n+i = 3, 4, 5
	want := []float64{130, 140, 150}
	for i, p := range projected {
		if p.Price != want[i] {
			t.Errorf("point %d: expected %v, got %v", i, want[i], p.Price)
		}
		if !p.Date.Equal(start.AddDate(0, 0, 3+i)) {
			t.Errorf("point %d: unexpected date %s", i, p.Date)
		}
	}
}

func TestProject_ClampsAtZero(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	projected, err := Project(series(start, 30, 20, 10), 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range projected {
		if p.Price < 0 {
			t.Fatalf("projection went negative: %v", p.Price)
		}
	}
	if projected[len(projected)-1].Price != 0 {
		t.Errorf("expected a falling series to bottom out at 0, got %v", projected[len(projected)-1].Price)
	}
}

func TestProjectFromDailyChange(t *testing.T) {
	tests := []struct {
		price, change float64
		days          int
		want          float64
	}{
		{50000, 2, 30, 80000},
		{50000, 0, 30, 50000},
		{50000, -5, 30, 0},
		{100, 1.5, 1, 101.5},
	}
	for _, tt := range tests {
		if got := ProjectFromDailyChange(tt.price, tt.change, tt.days); got != tt.want {
			t.Errorf("ProjectFromDailyChange(%v, %v, %d) = %v, want %v", tt.price, tt.change, tt.days, got, tt.want)
		}
	}
}
