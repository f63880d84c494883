package domain

import "fmt"

// U2 holds exactly one value of either K0 or K1. Two U2 values are equal only
// if they hold the same variant with equal payloads, so a U2 is safe to use as
// a map key even when K0 and K1 are the same type.
type U2[K0, K1 comparable] struct {
	is1 bool
	v0  K0
	v1  K1
}

func Make0[K0, K1 comparable](v K0) U2[K0, K1] {
	return U2[K0, K1]{v0: v}
}

func Make1[K0, K1 comparable](v K1) U2[K0, K1] {
	return U2[K0, K1]{is1: true, v1: v}
}

func (u U2[K0, K1]) Is0() bool { return !u.is1 }

func (u U2[K0, K1]) Is1() bool { return u.is1 }

func (u U2[K0, K1]) Get0() (K0, error) {
	if u.is1 {
		var zero K0
		return zero, fmt.Errorf("%w: want variant 0, have %v", ErrTypeMismatch, u.v1)
	}
	return u.v0, nil
}

func (u U2[K0, K1]) Get1() (K1, error) {
	if !u.is1 {
		var zero K1
		return zero, fmt.Errorf("%w: want variant 1, have %v", ErrTypeMismatch, u.v0)
	}
	return u.v1, nil
}

// Must0 unwraps variant 0 and panics on a mismatch. Callers check Is0 first.
func (u U2[K0, K1]) Must0() K0 {
	v, err := u.Get0()
	if err != nil {
		panic(err)
	}
	return v
}

func (u U2[K0, K1]) Must1() K1 {
	v, err := u.Get1()
	if err != nil {
		panic(err)
	}
	return v
}

func (u U2[K0, K1]) String() string {
	if u.is1 {
		return fmt.Sprintf("1:%v", u.v1)
	}
	return fmt.Sprintf("0:%v", u.v0)
}
