package domain

import (
	"cmp"
	"slices"
)

type Set[K comparable] map[K]struct{}

func NewSet[K comparable](items ...K) Set[K] {
	s := make(Set[K], len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s Set[K]) Add(k K) {
	s[k] = struct{}{}
}

func (s Set[K]) Has(k K) bool {
	_, ok := s[k]
	return ok
}

func (s Set[K]) Remove(k K) {
	delete(s, k)
}

func (s Set[K]) Len() int {
	return len(s)
}

func (s Set[K]) Clone() Set[K] {
	c := make(Set[K], len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Retain removes every element not present in other.
func (s Set[K]) Retain(other Set[K]) {
	for k := range s {
		if !other.Has(k) {
			delete(s, k)
		}
	}
}

func (s Set[K]) Slice() []K {
	out := make([]K, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Sorted returns the elements of an ordered set in ascending order.
func Sorted[K cmp.Ordered](s Set[K]) []K {
	out := s.Slice()
	slices.Sort(out)
	return out
}
