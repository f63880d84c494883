// Package pqueue provides an indexed priority queue with decrease-key.
package pqueue

import "container/heap"

// Queue orders keys by priority. less(a, b) reports whether a is served
// before b. Keys with equal priority are served in insertion order.
type Queue[K comparable, P any] struct {
	h     entries[K, P]
	index map[K]*entry[K, P]
	seq   uint64
}

type entry[K comparable, P any] struct {
	key  K
	prio P
	seq  uint64
	pos  int
}

type entries[K comparable, P any] struct {
	items []*entry[K, P]
	less  func(a, b P) bool
}

func (e entries[K, P]) Len() int { return len(e.items) }

func (e entries[K, P]) Less(i, j int) bool {
	a, b := e.items[i], e.items[j]
	if e.less(a.prio, b.prio) {
		return true
	}
	if e.less(b.prio, a.prio) {
		return false
	}
	return a.seq < b.seq
}

func (e entries[K, P]) Swap(i, j int) {
	e.items[i], e.items[j] = e.items[j], e.items[i]
	e.items[i].pos = i
	e.items[j].pos = j
}

func (e *entries[K, P]) Push(x any) {
	it := x.(*entry[K, P])
	it.pos = len(e.items)
	e.items = append(e.items, it)
}

func (e *entries[K, P]) Pop() any {
	old := e.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	e.items = old[:n-1]
	it.pos = -1
	return it
}

func New[K comparable, P any](less func(a, b P) bool) *Queue[K, P] {
	return &Queue[K, P]{
		h:     entries[K, P]{less: less},
		index: make(map[K]*entry[K, P]),
	}
}

func (q *Queue[K, P]) Len() int {
	return len(q.h.items)
}

// Push inserts key or, if it is already queued, moves it to prio. An update
// keeps the key's original insertion order for tie-breaking.
func (q *Queue[K, P]) Push(key K, prio P) {
	if it, ok := q.index[key]; ok {
		it.prio = prio
		heap.Fix(&q.h, it.pos)
		return
	}
	q.seq++
	it := &entry[K, P]{key: key, prio: prio, seq: q.seq}
	q.index[key] = it
	heap.Push(&q.h, it)
}

func (q *Queue[K, P]) Pop() (K, P, bool) {
	if len(q.h.items) == 0 {
		var k K
		var p P
		return k, p, false
	}
	it := heap.Pop(&q.h).(*entry[K, P])
	delete(q.index, it.key)
	return it.key, it.prio, true
}

func (q *Queue[K, P]) Peek() (K, P, bool) {
	if len(q.h.items) == 0 {
		var k K
		var p P
		return k, p, false
	}
	it := q.h.items[0]
	return it.key, it.prio, true
}

func (q *Queue[K, P]) Priority(key K) (P, bool) {
	if it, ok := q.index[key]; ok {
		return it.prio, true
	}
	var p P
	return p, false
}

func (q *Queue[K, P]) Contains(key K) bool {
	_, ok := q.index[key]
	return ok
}

func (q *Queue[K, P]) Remove(key K) bool {
	it, ok := q.index[key]
	if !ok {
		return false
	}
	heap.Remove(&q.h, it.pos)
	delete(q.index, key)
	return true
}

// Keys returns the queued keys in no particular order.
func (q *Queue[K, P]) Keys() []K {
	keys := make([]K, 0, len(q.h.items))
	for _, it := range q.h.items {
		keys = append(keys, it.key)
	}
	return keys
}
