package scheme

import (
	"fmt"

	"tagroute/internal/domain"
	"tagroute/internal/port"
	"tagroute/internal/pqueue"
	"tagroute/internal/view"
)

// Builder runs a shortest-path search from the seed tag over a composite
// tag-graph. Only complete tags are expanded: the first incomplete tag
// reached is added to the scheme, which is then marked incomplete and
// returned.
type Builder[D any] struct {
	metric port.DistanceMetric[D]
}

func NewBuilder[D any](metric port.DistanceMetric[D]) *Builder[D] {
	return &Builder[D]{metric: metric}
}

func (b *Builder[D]) Build(g *view.FullTGraph, seed domain.Tag) (*Scheme, error) {
	m := b.metric
	seedNode := domain.TagNode(seed)

	seedw, ok := g.Weight(seedNode)
	if !ok {
		s := New(seed, domain.MaxProbability)
		if !g.IsComplete(seed) {
			if err := s.SetIncomplete(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	s := New(seed, m.AttrFromDistance(seedw, seedw, m.Identity()))
	parent := make(map[domain.Node]domain.Tag)

	q := pqueue.New[domain.Node, D](func(a, b D) bool { return m.Compare(a, b) < 0 })
	q.Push(seedNode, m.Identity())
	for n := range g.Nodes() {
		if n != seedNode {
			q.Push(n, m.Infinity())
		}
	}

	for q.Len() > 0 {
		node, dist, _ := q.Pop()
		if m.Compare(dist, m.Infinity()) == 0 {
			break
		}
		nodew, _ := g.Weight(node)

		if node != seedNode {
			if err := s.PushNode(node, parent[node], g.Incoming(node)); err != nil {
				return nil, fmt.Errorf("failed to push %v: %w", node, err)
			}
		}
		if node.Is1() {
			continue
		}

		tag := node.Must0()
		if node != seedNode {
			if err := s.SetAttr(tag, m.AttrFromDistance(seedw, nodew, dist)); err != nil {
				return nil, err
			}
		}
		if !g.IsComplete(tag) {
			if err := s.SetIncomplete(); err != nil {
				return nil, err
			}
			break
		}

		for dst, arcw := range g.Outgoing(tag) {
			cur, queued := q.Priority(dst)
			if !queued {
				continue
			}
			dstw, _ := g.Weight(dst)
			nd := m.Combine(dist, m.Distance(nodew, dstw, arcw))
			if m.Compare(nd, cur) < 0 {
				q.Push(dst, nd)
				parent[dst] = tag
			}
		}
	}
	return s, nil
}
