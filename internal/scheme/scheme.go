// Package scheme ranks the nodes of a composite tag-graph by their distance
// from a seed tag.
package scheme

import (
	"errors"
	"fmt"
	"slices"

	"tagroute/internal/domain"
)

var (
	ErrIllegalArgument = errors.New("illegal argument")
	ErrIllegalState    = errors.New("illegal state")
)

// Scheme is an address scheme: the nodes reachable from a seed tag in
// ascending distance order, with the path, ancestors and incoming tags of
// each node and a seed-relative attribute for each tag.
//
// A scheme is built once and then only read, so it can be shared between
// goroutines.
type Scheme struct {
	seed       domain.Tag
	nodes      []domain.Node
	rank       map[domain.Node]int
	attrs      map[domain.Tag]domain.Probability
	ancestors  map[domain.Node]domain.Set[domain.Tag]
	incoming   map[domain.Node]domain.Set[domain.Tag]
	paths      map[domain.Node][]domain.Tag
	incomplete bool
}

// New returns a scheme holding only the seed.
func New(seed domain.Tag, seedAttr domain.Probability) *Scheme {
	n := domain.TagNode(seed)
	return &Scheme{
		seed:      seed,
		nodes:     []domain.Node{n},
		rank:      map[domain.Node]int{n: 0},
		attrs:     map[domain.Tag]domain.Probability{seed: seedAttr},
		ancestors: map[domain.Node]domain.Set[domain.Tag]{n: domain.NewSet[domain.Tag]()},
		incoming:  map[domain.Node]domain.Set[domain.Tag]{n: domain.NewSet[domain.Tag]()},
		paths:     map[domain.Node][]domain.Tag{n: nil},
	}
}

// PushNode appends node after everything already in the scheme. parent is
// the tag node was reached through and must be in inc.
func (s *Scheme) PushNode(node domain.Node, parent domain.Tag, inc domain.Set[domain.Tag]) error {
	if s.incomplete {
		return fmt.Errorf("%w: push %v onto incomplete scheme", ErrIllegalState, node)
	}
	if _, ok := s.rank[node]; ok {
		return fmt.Errorf("%w: node %v already in scheme", ErrIllegalArgument, node)
	}
	pnode := domain.TagNode(parent)
	if _, ok := s.rank[pnode]; !ok {
		return fmt.Errorf("%w: parent %q of %v not in scheme", ErrIllegalArgument, parent, node)
	}
	if !inc.Has(parent) {
		return fmt.Errorf("%w: parent %q not among incoming tags of %v", ErrIllegalArgument, parent, node)
	}

	anc := domain.NewSet[domain.Tag]()
	for t := range inc {
		tn := domain.TagNode(t)
		if _, ok := s.rank[tn]; !ok {
			continue
		}
		anc.Add(t)
		for a := range s.ancestors[tn] {
			anc.Add(a)
		}
	}

	s.rank[node] = len(s.nodes)
	s.nodes = append(s.nodes, node)
	s.ancestors[node] = anc
	s.incoming[node] = inc.Clone()
	s.paths[node] = append(slices.Clone(s.paths[pnode]), parent)
	return nil
}

// SetAttr records the seed-relative attribute of a tag in the scheme.
func (s *Scheme) SetAttr(tag domain.Tag, attr domain.Probability) error {
	if _, ok := s.rank[domain.TagNode(tag)]; !ok {
		return fmt.Errorf("%w: tag %q not in scheme", ErrIllegalArgument, tag)
	}
	s.attrs[tag] = attr
	return nil
}

// SetIncomplete marks the scheme as truncated at its last node, which must
// be a tag.
func (s *Scheme) SetIncomplete() error {
	if s.incomplete {
		return fmt.Errorf("%w: scheme already incomplete", ErrIllegalState)
	}
	if last := s.nodes[len(s.nodes)-1]; !last.Is0() {
		return fmt.Errorf("%w: scheme ends with address %v", ErrIllegalState, last)
	}
	s.incomplete = true
	return nil
}

func (s *Scheme) Seed() domain.Tag { return s.seed }

func (s *Scheme) Len() int { return len(s.nodes) }

func (s *Scheme) Incomplete() bool { return s.incomplete }

// Nodes returns the nodes in rank order.
func (s *Scheme) Nodes() []domain.Node {
	return slices.Clone(s.nodes)
}

// Last returns the most recently pushed node.
func (s *Scheme) Last() domain.Node {
	return s.nodes[len(s.nodes)-1]
}

func (s *Scheme) Rank(node domain.Node) (int, bool) {
	r, ok := s.rank[node]
	return r, ok
}

func (s *Scheme) Has(node domain.Node) bool {
	_, ok := s.rank[node]
	return ok
}

func (s *Scheme) Attr(tag domain.Tag) (domain.Probability, bool) {
	a, ok := s.attrs[tag]
	return a, ok
}

func (s *Scheme) Ancestors(node domain.Node) domain.Set[domain.Tag] {
	return s.ancestors[node]
}

func (s *Scheme) Incoming(node domain.Node) domain.Set[domain.Tag] {
	return s.incoming[node]
}

// Path returns the tags from the seed up to and including node's parent.
// The seed's path is empty.
func (s *Scheme) Path(node domain.Node) []domain.Tag {
	return slices.Clone(s.paths[node])
}

// TagSet returns every tag with an attribute.
func (s *Scheme) TagSet() domain.Set[domain.Tag] {
	out := domain.NewSet[domain.Tag]()
	for t := range s.attrs {
		out.Add(t)
	}
	return out
}

// Addresses returns the tag-graph addresses in the scheme in rank order.
func (s *Scheme) Addresses() []domain.Addr {
	var out []domain.Addr
	for _, n := range s.nodes {
		if n.Is1() {
			out = append(out, n.Must1())
		}
	}
	return out
}

// NearestTGraph returns the highest ranked address accepted by want.
func (s *Scheme) NearestTGraph(want func(domain.Addr) bool) (domain.Addr, bool) {
	for _, n := range s.nodes {
		if n.Is1() && want(n.Must1()) {
			return n.Must1(), true
		}
	}
	return 0, false
}

// MostRelevant returns the tag in tags with the highest attribute.
func (s *Scheme) MostRelevant(tags domain.Set[domain.Tag]) (domain.Tag, domain.Probability, bool) {
	var (
		best  domain.Tag
		bestP domain.Probability
		found bool
	)
	for _, t := range domain.Sorted(tags) {
		a, ok := s.attrs[t]
		if !ok {
			continue
		}
		if !found || a.Compare(bestP) > 0 {
			best, bestP, found = t, a, true
		}
	}
	return best, bestP, found
}
