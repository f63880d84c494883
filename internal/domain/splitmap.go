package domain

// SplitMap presents two maps with disjoint key domains as one map keyed by
// U2. The maps are disjoint by construction: a key's variant selects the map.
type SplitMap[K0, K1 comparable, V any] struct {
	M0 map[K0]V
	M1 map[K1]V
}

func NewSplitMap[K0, K1 comparable, V any]() SplitMap[K0, K1, V] {
	return SplitMap[K0, K1, V]{
		M0: make(map[K0]V),
		M1: make(map[K1]V),
	}
}

// IsNil reports whether the map was never allocated. Stores use a nil map to
// mean "not present".
func (m SplitMap[K0, K1, V]) IsNil() bool {
	return m.M0 == nil && m.M1 == nil
}

func (m SplitMap[K0, K1, V]) Get(k U2[K0, K1]) (V, bool) {
	if k.is1 {
		v, ok := m.M1[k.v1]
		return v, ok
	}
	v, ok := m.M0[k.v0]
	return v, ok
}

func (m SplitMap[K0, K1, V]) Has(k U2[K0, K1]) bool {
	_, ok := m.Get(k)
	return ok
}

// Put panics if the map was not created with NewSplitMap.
func (m SplitMap[K0, K1, V]) Put(k U2[K0, K1], v V) {
	if k.is1 {
		m.M1[k.v1] = v
		return
	}
	m.M0[k.v0] = v
}

func (m SplitMap[K0, K1, V]) Delete(k U2[K0, K1]) {
	if k.is1 {
		delete(m.M1, k.v1)
		return
	}
	delete(m.M0, k.v0)
}

func (m SplitMap[K0, K1, V]) Len() int {
	return len(m.M0) + len(m.M1)
}

// Range calls fn for every entry of M0 then every entry of M1, stopping early
// when fn returns false.
func (m SplitMap[K0, K1, V]) Range(fn func(k U2[K0, K1], v V) bool) {
	for k, v := range m.M0 {
		if !fn(Make0[K0, K1](k), v) {
			return
		}
	}
	for k, v := range m.M1 {
		if !fn(Make1[K0, K1](k), v) {
			return
		}
	}
}

func (m SplitMap[K0, K1, V]) Keys() []U2[K0, K1] {
	keys := make([]U2[K0, K1], 0, m.Len())
	m.Range(func(k U2[K0, K1], _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Clone returns a shallow copy with freshly allocated maps.
func (m SplitMap[K0, K1, V]) Clone() SplitMap[K0, K1, V] {
	c := SplitMap[K0, K1, V]{
		M0: make(map[K0]V, len(m.M0)),
		M1: make(map[K1]V, len(m.M1)),
	}
	for k, v := range m.M0 {
		c.M0[k] = v
	}
	for k, v := range m.M1 {
		c.M1[k] = v
	}
	return c
}
