// Package compose fuses weighted, possibly missing judgments from several
// sources into one value, and infers source scores from an endorsement graph.
package compose

import (
	"fmt"
	"math"

	"tagroute/internal/domain"
)

// Value is anything the composer can average.
type Value interface {
	Float64() float64
}

// Source is one view contributing to a fusion, weighted by its score.
type Source[V any] struct {
	View   V
	Weight domain.Probability
}

// MeanComposer computes a weighted mean of the opinions of its sources. A
// source with no opinion on an item still adds Alpha(view, item) of its
// weight to the divisor, as if it had judged the item worthless.
type MeanComposer[V, K any, T Value] struct {
	Opinion func(view V, item K) (T, bool)
	Alpha   func(view V, item K) float64
	Make    func(float64) (T, error)
}

// Compose fails with domain.ErrDomain when no source carries any weight for
// item.
func (c MeanComposer[V, K, T]) Compose(sources []Source[V], item K) (T, error) {
	var mean, total, hi float64
	for _, src := range sources {
		w := src.Weight.Float64()
		if w == 0 {
			continue
		}

		v, ok := c.Opinion(src.View, item)
		if !ok {
			w *= c.Alpha(src.View, item)
			if w == 0 {
				continue
			}
			total += w
			if !math.IsInf(mean, 0) {
				mean -= mean * (w / total)
			}
			continue
		}

		// Running mean: a single source yields its opinion exactly.
		x := v.Float64()
		total += w
		hi = math.Max(hi, x)
		if math.IsInf(mean, 1) || math.IsInf(x, 1) {
			mean = math.Inf(1)
		} else {
			mean += (x - mean) * (w / total)
		}
	}

	if total == 0 {
		var zero T
		return zero, fmt.Errorf("%w: no weighted opinion on %v", domain.ErrDomain, item)
	}
	return c.Make(math.Max(0, math.Min(mean, hi)))
}

// ProbabilityMean is a MeanComposer over probabilities with a fixed alpha.
func ProbabilityMean[V, K any](opinion func(V, K) (domain.Probability, bool), alpha func(V, K) float64) MeanComposer[V, K, domain.Probability] {
	return MeanComposer[V, K, domain.Probability]{
		Opinion: opinion,
		Alpha:   alpha,
		Make:    domain.NewProbability,
	}
}

// EntropyMean averages in entropy space: it takes the weighted geometric mean
// of the probabilities involved.
func EntropyMean[V, K any](opinion func(V, K) (domain.Entropy, bool), alpha func(V, K) float64) MeanComposer[V, K, domain.Entropy] {
	return MeanComposer[V, K, domain.Entropy]{
		Opinion: opinion,
		Alpha:   alpha,
		Make:    domain.NewEntropy,
	}
}

// FixedAlpha returns an alpha function that ignores its arguments.
func FixedAlpha[V, K any](a float64) func(V, K) float64 {
	return func(V, K) float64 { return a }
}
