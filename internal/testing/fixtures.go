package testing

import (
	"math/rand"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
)

// FixtureStart is the first date of every generated series
var FixtureStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// BarsFromCloses builds daily bars with a 1% high/low band around each close.
func BarsFromCloses(closes []float64, start time.Time) []domain.PriceBar {
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

// RandomWalkBars generates n bars of a seeded geometric random walk starting at 100.
func RandomWalkBars(n int, seed int64) []domain.PriceBar {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		price *= 1 + rng.NormFloat64()*0.015
		closes[i] = price
	}
	bars := BarsFromCloses(closes, FixtureStart)
	for i := range bars {
		bars[i].Volume = 500_000 + rng.Float64()*1_000_000
	}
	return bars
}

// TrendBars generates n bars rising by step per bar from start.
func TrendBars(n int, start, step float64) []domain.PriceBar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return BarsFromCloses(closes, FixtureStart)
}

// FlatBars generates n bars at a constant price.
func FlatBars(n int, price float64) []domain.PriceBar {
	return TrendBars(n, price, 0)
}
