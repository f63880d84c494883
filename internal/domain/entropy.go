package domain

import (
	"fmt"
	"math"
)

// Entropy is a non-negative real, possibly +Inf, measured in bits.
type Entropy struct {
	val float64
}

var (
	MinEntropy = Entropy{0}
	MaxEntropy = Entropy{math.Inf(1)}
)

func NewEntropy(v float64) (Entropy, error) {
	if math.IsNaN(v) || v < 0 {
		return Entropy{}, fmt.Errorf("%w: entropy %v", ErrDomain, v)
	}
	if v == 0 {
		v = 0
	}
	return Entropy{v}, nil
}

func (e Entropy) Float64() float64 {
	return e.val
}

// Intersect returns the entropy of the joint of two independent events.
func (e Entropy) Intersect(f Entropy) Entropy {
	return Entropy{e.val + f.val}
}

// Probability returns 2^-e.
func (e Entropy) Probability() Probability {
	return Probability{math.Exp2(-e.val)}
}

func (e Entropy) Compare(f Entropy) int {
	switch {
	case e.val < f.val:
		return -1
	case e.val > f.val:
		return 1
	default:
		return 0
	}
}

func (e Entropy) String() string {
	return fmt.Sprintf("%.4fb", e.val)
}
