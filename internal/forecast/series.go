// Package forecast implements the seasonal forecasting engine: monthly
// frequency normalization, automated SARIMA order search, residual
// diagnostics and interval forecasting.
package forecast

import (
	"math"
	"sort"
	"time"

	"macrolink/internal/dataprocessing"
)

// DataPoint is one dated observation handed to the engine.
type DataPoint struct {
	Date  time.Time
	Value float64
}

// monthlySeries is the engine's internal working series: month-start
// anchored, gap-free, null-free. Owned exclusively by one Engine.
type monthlySeries struct {
	Dates  []time.Time
	Values []float64
}

func (s *monthlySeries) Len() int {
	return len(s.Values)
}

func (s *monthlySeries) Last() time.Time {
	return s.Dates[len(s.Dates)-1]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func std(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	// Population standard deviation, matching the diagnostics contract.
	return math.Sqrt(sumSq / float64(n))
}

// diff returns the first difference of values.
func diff(values []float64) []float64 {
	if len(values) <= 1 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// seasonalDiff returns the lag-m difference of values.
func seasonalDiff(values []float64, m int) []float64 {
	if m <= 0 || len(values) <= m {
		return nil
	}
	out := make([]float64, len(values)-m)
	for i := m; i < len(values); i++ {
		out[i-m] = values[i] - values[i-m]
	}
	return out
}

// resampleMonthly sorts the points ascending, collapses observations
// falling in the same calendar month by mean, and linearly interpolates
// any missing months, yielding a dense month-start series.
func resampleMonthly(points []DataPoint) *monthlySeries {
	if len(points) == 0 {
		return &monthlySeries{}
	}

	sorted := make([]DataPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[time.Time]*bucket)
	for _, p := range sorted {
		month := dataprocessing.MonthStart(p.Date)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		b.sum += p.Value
		b.count++
	}

	first := dataprocessing.MonthStart(sorted[0].Date)
	last := dataprocessing.MonthStart(sorted[len(sorted)-1].Date)
	n := dataprocessing.MonthsBetween(first, last) + 1

	s := &monthlySeries{
		Dates:  make([]time.Time, n),
		Values: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		month := dataprocessing.AddMonths(first, i)
		s.Dates[i] = month
		if b, ok := buckets[month]; ok {
			s.Values[i] = b.sum / float64(b.count)
		} else {
			s.Values[i] = math.NaN()
		}
	}

	interpolateGaps(s.Values)
	return s
}

// interpolateGaps fills NaN runs by linear interpolation between their
// known neighbors. The first and last months always carry observations,
// so only interior gaps can occur.
func interpolateGaps(values []float64) {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo := values[prev]
			hi := values[i]
			span := float64(i - prev)
			for k := prev + 1; k < i; k++ {
				values[k] = lo + (hi-lo)*float64(k-prev)/span
			}
		}
		prev = i
	}
}

// futureMonths generates the n month-start anchors following last. The
// first forecast date is exactly one month after the last observed date:
// n+1 anchors are generated from last and the first, which equals last
// itself, is discarded.
func futureMonths(last time.Time, n int) []time.Time {
	anchors := make([]time.Time, n+1)
	for i := 0; i <= n; i++ {
		anchors[i] = dataprocessing.AddMonths(last, i)
	}
	return anchors[1:]
}
