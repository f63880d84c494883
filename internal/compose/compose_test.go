package compose

import (
	"errors"
	"math"
	"testing"

	"tagroute/internal/domain"
)

type opinions map[string]float64

func probOpinion(v opinions, item string) (domain.Probability, bool) {
	x, ok := v[item]
	if !ok {
		return domain.Probability{}, false
	}
	return domain.MustProbability(x), true
}

func TestMeanComposer_SingleSource(t *testing.T) {
	c := ProbabilityMean(probOpinion, FixedAlpha[opinions, string](0.0625))

	for _, w := range []float64{0.1, 0.3, 0.7, 1} {
		for _, v := range []float64{0, 0.3, 0.123456789, 1} {
			got, err := c.Compose([]Source[opinions]{{View: opinions{"x": v}, Weight: domain.MustProbability(w)}}, "x")
			if err != nil {
				t.Fatalf("w=%v v=%v: %v", w, v, err)
			}
			if got.Float64() != v {
				t.Errorf("w=%v: expected exactly %v, got %v", w, v, got.Float64())
			}
		}
	}
}

func TestMeanComposer_NoSources(t *testing.T) {
	c := ProbabilityMean(probOpinion, FixedAlpha[opinions, string](0.5))
	if _, err := c.Compose(nil, "x"); !errors.Is(err, domain.ErrDomain) {
		t.Errorf("expected ErrDomain, got %v", err)
	}
}

func TestMeanComposer_Alpha(t *testing.T) {
	c := ProbabilityMean(probOpinion, FixedAlpha[opinions, string](0.5))
	sources := []Source[opinions]{
		{View: opinions{"x": 0.8}, Weight: domain.MustProbability(1)},
		{View: opinions{}, Weight: domain.MustProbability(1)},
	}

	// top = 0.8, div = 1 + 0.5
	got, err := c.Compose(sources, "x")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Float64()-0.8/1.5) > 1e-12 {
		t.Errorf("expected %v, got %v", 0.8/1.5, got.Float64())
	}
}

func TestMeanComposer_WeightedMean(t *testing.T) {
	c := ProbabilityMean(probOpinion, FixedAlpha[opinions, string](0))
	sources := []Source[opinions]{
		{View: opinions{"x": 0.2}, Weight: domain.MustProbability(0.25)},
		{View: opinions{"x": 0.6}, Weight: domain.MustProbability(0.75)},
		{View: opinions{}, Weight: domain.MustProbability(1)},
	}
	got, err := c.Compose(sources, "x")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.Float64()-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", got.Float64())
	}
}

func TestMeanComposer_EntropyInfinity(t *testing.T) {
	c := EntropyMean(
		func(v opinions, item string) (domain.Entropy, bool) {
			x, ok := v[item]
			if !ok {
				return domain.Entropy{}, false
			}
			return domain.MustProbability(x).Entropy(), true
		},
		FixedAlpha[opinions, string](0.5),
	)
	sources := []Source[opinions]{
		{View: opinions{"x": 0}, Weight: domain.MustProbability(0.5)},
		{View: opinions{"x": 0.5}, Weight: domain.MustProbability(0.5)},
		{View: opinions{}, Weight: domain.MustProbability(0.5)},
	}
	got, err := c.Compose(sources, "x")
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(got.Float64(), 1) {
		t.Errorf("expected +Inf entropy, got %v", got.Float64())
	}
}

func TestSPUInferer(t *testing.T) {
	spu, err := NewSPUInferer[int](0.5)
	if err != nil {
		t.Fatal(err)
	}

	// 1 -> 2 -> 3, 4 -> 3
	incoming := map[int]domain.Set[int]{
		1: domain.NewSet[int](),
		2: domain.NewSet(1),
		3: domain.NewSet(2, 4),
		4: domain.NewSet[int](),
	}
	seeds := map[int]domain.Probability{
		1: domain.MustProbability(0.8),
		4: domain.MustProbability(0.4),
	}

	tests := []struct {
		name    string
		subject int
		want    float64
	}{
		{"seed itself", 1, 0.8},
		{"one hop", 2, 0.4},
		// 1 - (1 - 0.8*0.25)(1 - 0.4*0.5) = 1 - 0.8*0.8
		{"two paths", 3, 1 - 0.8*0.8},
		{"unknown", 99, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := spu.InferScore(incoming, seeds, tt.subject)
			if math.Abs(got.Float64()-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got.Float64())
			}
		})
	}
}

func TestNewSPUInferer_Reduce(t *testing.T) {
	for _, r := range []float64{0, 1, -0.5, math.NaN()} {
		if _, err := NewSPUInferer[int](r); !errors.Is(err, domain.ErrDomain) {
			t.Errorf("reduce %v: expected ErrDomain, got %v", r, err)
		}
	}
}
