package chart

import (
	"math"

	"github.com/aclements/go-moremath/stats"
)

// Hist is a fixed-width histogram. Edges has one more entry than Counts.
type Hist struct {
	Name   string
	Edges  []float64
	Counts []float64
}

// Centers returns the midpoint of each bin.
func (h Hist) Centers() []float64 {
	out := make([]float64, len(h.Counts))
	for i := range out {
		out[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return out
}

// Total is the number of values counted.
func (h Hist) Total() float64 {
	var n float64
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// BuildHist bins the non-NaN values of ys into bins equal-width bins
// spanning their bounds. A constant input gets a unit-wide range around
// the value.
func BuildHist(name string, ys []float64, bins int) (Hist, bool) {
	vals := make([]float64, 0, len(ys))
	for _, y := range ys {
		if !math.IsNaN(y) && !math.IsInf(y, 0) {
			vals = append(vals, y)
		}
	}
	if len(vals) == 0 || bins <= 0 {
		return Hist{Name: name}, false
	}
	lo, hi := stats.Bounds(vals)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	h := stats.NewLinearHist(lo, hi, bins)
	for _, v := range vals {
		h.Add(v)
	}
	under, ucounts, over := h.Counts()
	counts := make([]float64, len(ucounts))
	for i, c := range ucounts {
		counts[i] = float64(c)
	}
	// The maximum lands just past the last bin.
	counts[0] += float64(under)
	counts[len(counts)-1] += float64(over)

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = h.BinToValue(float64(i))
	}
	return Hist{Name: name, Edges: edges, Counts: counts}, true
}

// histogramOf bins the first series; BuildSeries puts Y1 first.
func histogramOf(series []Series, bins int) (Hist, bool) {
	if len(series) == 0 {
		return Hist{}, false
	}
	return BuildHist(series[0].Name, series[0].Y, bins)
}
