// Package mutualinfo estimates mutual information between layer inputs and neuron
// activations with equal-width histograms.
//
// All quantities are in nats. Empty bins contribute nothing to an entropy.
package mutualinfo

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bin assigns each value to one of bins equal-width bins spanning [min(values), max(values)].
// The last bin is closed on the right. A constant input lands in the middle bin.
// Edges are i·(hi-lo)/bins + lo, and an index that rounding put on the wrong side
// of its edge is corrected against the edge, as numpy.histogram does.
// The result is written to dst, which is grown if needed.
func Bin(values []float64, bins int, dst []int32) []int32 {
	if cap(dst) < len(values) {
		dst = make([]int32, len(values))
	}
	dst = dst[:len(values)]
	if len(values) == 0 {
		return dst
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		for i := range dst {
			dst[i] = int32(bins / 2)
		}
		return dst
	}
	edges := binEdges(lo, hi, bins)
	scale := float64(bins) / (hi - lo)
	for i, v := range values {
		b := int((v - lo) * scale)
		if b >= bins {
			b = bins - 1
		}
		if v < edges[b] {
			b--
		} else if b < bins-1 && v >= edges[b+1] {
			b++
		}
		dst[i] = int32(b)
	}
	return dst
}

// binEdges returns the bins+1 edges i·step + lo, with the last one pinned to hi.
func binEdges(lo, hi float64, bins int) []float64 {
	step := (hi - lo) / float64(bins)
	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = float64(i)*step + lo
	}
	edges[bins] = hi
	return edges
}

// Histogram counts the occurrences of each bin code.
func Histogram(codes []int32, bins int) []float64 {
	counts := make([]float64, bins)
	for _, c := range codes {
		counts[c]++
	}
	return counts
}

// Histogram2D counts joint occurrences of (x, y) codes into dst, laid out row-major as x*bins+y.
func Histogram2D(xCodes, yCodes []int32, bins int, dst []float64) []float64 {
	if cap(dst) < bins*bins {
		dst = make([]float64, bins*bins)
	}
	dst = dst[:bins*bins]
	for i := range dst {
		dst[i] = 0
	}
	for i, x := range xCodes {
		dst[int(x)*bins+int(yCodes[i])]++
	}
	return dst
}

// Entropy returns the Shannon entropy of a histogram of counts. counts is normalized in place.
func Entropy(counts []float64) float64 {
	total := floats.Sum(counts)
	if total == 0 {
		return 0
	}
	floats.Scale(1/total, counts)
	return stat.Entropy(counts)
}

// MutualInformation returns H(X) + H(Y) - H(X,Y) estimated with bins bins per axis.
func MutualInformation(x, y []float64, bins int) float64 {
	xCodes := Bin(x, bins, nil)
	yCodes := Bin(y, bins, nil)
	hx := Entropy(Histogram(xCodes, bins))
	hy := Entropy(Histogram(yCodes, bins))
	hxy := Entropy(Histogram2D(xCodes, yCodes, bins, nil))
	return hx + hy - hxy
}
