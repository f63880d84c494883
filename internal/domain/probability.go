package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDomain is returned when a value falls outside the domain of its type.
	ErrDomain = errors.New("value out of domain")

	// ErrTypeMismatch is returned when a union is unwrapped as the wrong variant.
	ErrTypeMismatch = errors.New("union variant mismatch")
)

// Probability is a real number in [0, 1]. The zero value is a valid
// probability of 0.
type Probability struct {
	val float64
}

var (
	MinProbability = Probability{0}
	MaxProbability = Probability{1}
)

// NewProbability validates v and returns it as a Probability.
func NewProbability(v float64) (Probability, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Probability{}, fmt.Errorf("%w: probability %v", ErrDomain, v)
	}
	if v == 0 {
		v = 0 // -0
	}
	return Probability{v}, nil
}

// MustProbability is like NewProbability but panics on an invalid value.
// Use it only for constants.
func MustProbability(v float64) Probability {
	p, err := NewProbability(v)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Probability) Float64() float64 {
	return p.val
}

// Intersect returns P(A and B) for independent events.
func (p Probability) Intersect(q Probability) Probability {
	return Probability{p.val * q.val}
}

// Union returns P(A or B) = p + q - pq for independent events. The result is
// clamped to [max(p, q), 1] to absorb rounding.
func (p Probability) Union(q Probability) Probability {
	v := p.val + q.val - p.val*q.val
	v = math.Max(v, math.Max(p.val, q.val))
	return Probability{math.Min(v, 1)}
}

func (p Probability) Complement() Probability {
	return Probability{1 - p.val}
}

// Normalise returns p/marginal, the conditional probability of the joint
// event p given the marginal.
func (p Probability) Normalise(marginal Probability) (Probability, error) {
	if marginal.val == 0 {
		return Probability{}, fmt.Errorf("%w: normalise by zero marginal", ErrDomain)
	}
	return NewProbability(p.val / marginal.val)
}

// ConditionalInverse treats p as P(this) and returns P(evt|this) by Bayes'
// rule, given P(this|evt) and P(evt).
func (p Probability) ConditionalInverse(given, evt Probability) (Probability, error) {
	if p.val == 0 {
		return Probability{}, fmt.Errorf("%w: conditional inverse of zero probability", ErrDomain)
	}
	return NewProbability(given.val * evt.val / p.val)
}

// ConditionalComplement treats p as P(this) and returns P(this|not evt),
// given P(this|evt) and P(evt).
func (p Probability) ConditionalComplement(given, evt Probability) (Probability, error) {
	if evt.val == 1 {
		return Probability{}, fmt.Errorf("%w: conditional complement of certain event", ErrDomain)
	}
	return NewProbability((p.val - given.val*evt.val) / (1 - evt.val))
}

// Entropy returns -log2(p).
func (p Probability) Entropy() Entropy {
	e := -math.Log2(p.val)
	if e == 0 {
		e = 0
	}
	return Entropy{e}
}

// Compare orders probabilities numerically.
func (p Probability) Compare(q Probability) int {
	switch {
	case p.val < q.val:
		return -1
	case p.val > q.val:
		return 1
	default:
		return 0
	}
}

func (p Probability) String() string {
	return fmt.Sprintf("%.4f", p.val)
}

func (p Probability) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%g", p.val)), nil
}
