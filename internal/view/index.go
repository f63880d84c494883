package view

import (
	"fmt"

	"tagroute/internal/domain"
)

// LocalIndex is a partial view of one remote index.
type LocalIndex struct {
	outgoing  map[domain.Tag]domain.IndexArcs
	incomingD map[domain.Addr]domain.Set[domain.Tag]
	incomingH map[domain.Addr]domain.Set[domain.Tag]
}

func NewLocalIndex() *LocalIndex {
	return &LocalIndex{
		outgoing:  make(map[domain.Tag]domain.IndexArcs),
		incomingD: make(map[domain.Addr]domain.Set[domain.Tag]),
		incomingH: make(map[domain.Addr]domain.Set[domain.Tag]),
	}
}

// SetOutgoingT loads the documents and indexes tag points to. A nil map
// records a tag the index does not contain.
func (x *LocalIndex) SetOutgoingT(tag domain.Tag, out domain.IndexArcs) error {
	if _, ok := x.outgoing[tag]; ok {
		return fmt.Errorf("%w: index arcs of %q", ErrAlreadyLoaded, tag)
	}
	if out.IsNil() {
		out = domain.TargetMap[domain.Probability]()
	}
	x.outgoing[tag] = out

	for doc := range out.M0 {
		addIncoming(x.incomingD, doc, tag)
	}
	for idx := range out.M1 {
		addIncoming(x.incomingH, idx, tag)
	}
	return nil
}

func addIncoming(m map[domain.Addr]domain.Set[domain.Tag], dst domain.Addr, tag domain.Tag) {
	in, ok := m[dst]
	if !ok {
		in = domain.NewSet[domain.Tag]()
		m[dst] = in
	}
	in.Add(tag)
}

func (x *LocalIndex) OutgoingLoaded(tag domain.Tag) bool {
	_, ok := x.outgoing[tag]
	return ok
}

// Outgoing returns the loaded arcs of tag. The map must not be modified.
func (x *LocalIndex) Outgoing(tag domain.Tag) (domain.IndexArcs, bool) {
	out, ok := x.outgoing[tag]
	return out, ok
}

// Tags returns every tag whose arcs are loaded.
func (x *LocalIndex) Tags() domain.Set[domain.Tag] {
	s := domain.NewSet[domain.Tag]()
	for t := range x.outgoing {
		s.Add(t)
	}
	return s
}

// IncomingD returns the tags pointing at a document.
func (x *LocalIndex) IncomingD(doc domain.Addr) domain.Set[domain.Tag] {
	return x.incomingD[doc]
}

// IncomingH returns the tags pointing at another index.
func (x *LocalIndex) IncomingH(idx domain.Addr) domain.Set[domain.Tag] {
	return x.incomingH[idx]
}

// HasEndpoints reports whether tag is loaded and dst is known to this index,
// so that a missing arc between them is a meaningful judgment.
func (x *LocalIndex) HasEndpoints(tag domain.Tag, dst domain.Target) bool {
	if _, ok := x.outgoing[tag]; !ok {
		return false
	}
	if dst.Is0() {
		return x.incomingD[dst.Must0()].Len() > 0
	}
	return x.incomingH[dst.Must1()].Len() > 0
}

func (x *LocalIndex) Arc(tag domain.Tag, dst domain.Target) (domain.Probability, bool) {
	out, ok := x.outgoing[tag]
	if !ok {
		return domain.Probability{}, false
	}
	return out.Get(dst)
}
