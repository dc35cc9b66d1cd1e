// Package forecast extrapolates price series. These are naive projections
// for display, not predictions.
package forecast

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientData is returned when a trend needs more points.
var ErrInsufficientData = errors.New("forecast: at least two points are required")

// PricePoint is one observation of a daily price series.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Trend is a least-squares line y = Slope*i + Intercept over the point index.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at index i.
func (t Trend) At(i float64) float64 {
	return t.Slope*i + t.Intercept
}

// LinearTrend fits the series by ordinary least squares over its index.
func LinearTrend(values []float64) (Trend, error) {
	n := float64(len(values))
	if len(values) < 2 {
		return Trend{}, ErrInsufficientData
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)
	return Trend{Slope: slope, Intercept: (sumY - slope*sumX) / n}, nil
}

// Project extends the series by days daily points along its linear trend.
// Projected prices never go below zero and are rounded to cents.
func Project(points []PricePoint, days int) ([]PricePoint, error) {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Price
	}
	trend, err := LinearTrend(values)
	if err != nil {
		return nil, err
	}

	last := points[len(points)-1].Date
	n := len(points)
	out := make([]PricePoint, 0, days)
	for i := 0; i < days; i++ {
		price := trend.At(float64(n + i))
		if price < 0 {
			price = 0
		}
		out = append(out, PricePoint{
			Date:  last.AddDate(0, 0, i+1),
			Price: roundCents(price),
		})
	}
	return out, nil
}

// ProjectFromDailyChange scales the last 24h change linearly over days,
// without compounding.
func ProjectFromDailyChange(price, change24hPct float64, days int) float64 {
	projected := price * (1 + change24hPct/100*float64(days))
	if projected < 0 {
		return 0
	}
	return roundCents(projected)
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
