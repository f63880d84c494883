// Package view holds the incrementally loaded local copies of remote
// tag-graphs and indexes, and the composite graphs fused from them.
package view

import (
	"errors"
	"fmt"

	"tagroute/internal/domain"
)

var (
	ErrAlreadyLoaded     = errors.New("already loaded")
	ErrNotLoaded         = errors.New("not loaded")
	ErrCorruptRemoteData = errors.New("corrupt remote data")
	ErrUnknownSource     = errors.New("unknown source")
)

// LocalTGraph is a partial view of one remote tag-graph.
//
// A tag is complete once its own weight, its out-arcs and the weights of all
// its out-neighbours are loaded. Out-neighbours whose weight has not arrived
// yet are tracked as pending on the tag and resolved when SetNodeAttr loads
// them, so completion does not depend on the order data arrives in.
type LocalTGraph struct {
	nodes    map[domain.Node]domain.Probability
	absent   domain.Set[domain.Node]
	outgoing map[domain.Tag]domain.TGraphArcs
	incoming map[domain.Node]domain.Set[domain.Tag]
	complete domain.Set[domain.Tag]
	pending  map[domain.Tag]domain.Set[domain.Node]
	waiters  map[domain.Node]domain.Set[domain.Tag]
}

func NewLocalTGraph() *LocalTGraph {
	return &LocalTGraph{
		nodes:    make(map[domain.Node]domain.Probability),
		absent:   domain.NewSet[domain.Node](),
		outgoing: make(map[domain.Tag]domain.TGraphArcs),
		incoming: make(map[domain.Node]domain.Set[domain.Tag]),
		complete: domain.NewSet[domain.Tag](),
		pending:  make(map[domain.Tag]domain.Set[domain.Node]),
		waiters:  make(map[domain.Node]domain.Set[domain.Tag]),
	}
}

// SetNodeAttr loads the weight of a node present in the remote tag-graph.
func (g *LocalTGraph) SetNodeAttr(node domain.Node, weight domain.Probability) error {
	if g.Loaded(node) {
		return fmt.Errorf("%w: node %v", ErrAlreadyLoaded, node)
	}
	g.nodes[node] = weight

	for tag := range g.waiters[node] {
		p := g.pending[tag]
		p.Remove(node)
		if p.Len() == 0 {
			delete(g.pending, tag)
			g.complete.Add(tag)
		}
	}
	delete(g.waiters, node)
	return nil
}

// SetNodeAbsent records that the remote tag-graph does not contain node. An
// absent tag has nothing left to load and is complete.
func (g *LocalTGraph) SetNodeAbsent(node domain.Node) error {
	if g.Loaded(node) {
		return fmt.Errorf("%w: node %v", ErrAlreadyLoaded, node)
	}
	if g.incoming[node].Len() > 0 {
		return fmt.Errorf("%w: absent node %v has incoming arcs", ErrCorruptRemoteData, node)
	}
	g.absent.Add(node)
	if node.Is0() {
		g.complete.Add(node.Must0())
	}
	return nil
}

// SetOutgoingT loads the out-arcs of tag. A nil map is treated as empty. The
// tag's own weight must be loaded first. An absent tag accepts only a nil map.
func (g *LocalTGraph) SetOutgoingT(tag domain.Tag, out domain.TGraphArcs) error {
	if _, ok := g.outgoing[tag]; ok {
		return fmt.Errorf("%w: outgoing arcs of %q", ErrAlreadyLoaded, tag)
	}

	src := domain.TagNode(tag)
	if g.absent.Has(src) {
		if !out.IsNil() {
			return fmt.Errorf("%w: absent tag %q has outgoing arcs", ErrCorruptRemoteData, tag)
		}
		g.outgoing[tag] = domain.NodeMap[domain.Probability]()
		return nil
	}
	if _, ok := g.nodes[src]; !ok {
		return fmt.Errorf("%w: weight of %q", ErrNotLoaded, tag)
	}

	var corrupt error
	out.Range(func(dst domain.Node, _ domain.Probability) bool {
		if g.absent.Has(dst) {
			corrupt = fmt.Errorf("%w: arc %q -> absent node %v", ErrCorruptRemoteData, tag, dst)
			return false
		}
		return true
	})
	if corrupt != nil {
		return corrupt
	}

	if out.IsNil() {
		out = domain.NodeMap[domain.Probability]()
	}
	g.outgoing[tag] = out

	pending := domain.NewSet[domain.Node]()
	out.Range(func(dst domain.Node, _ domain.Probability) bool {
		in, ok := g.incoming[dst]
		if !ok {
			in = domain.NewSet[domain.Tag]()
			g.incoming[dst] = in
		}
		in.Add(tag)
		if _, loaded := g.nodes[dst]; !loaded {
			pending.Add(dst)
		}
		return true
	})

	if pending.Len() == 0 {
		g.complete.Add(tag)
		return nil
	}
	g.pending[tag] = pending
	for dst := range pending {
		w, ok := g.waiters[dst]
		if !ok {
			w = domain.NewSet[domain.Tag]()
			g.waiters[dst] = w
		}
		w.Add(tag)
	}
	return nil
}

// Loaded reports whether the node's weight or absence is known.
func (g *LocalTGraph) Loaded(node domain.Node) bool {
	_, ok := g.nodes[node]
	return ok || g.absent.Has(node)
}

// Weight returns the weight of a present node.
func (g *LocalTGraph) Weight(node domain.Node) (domain.Probability, bool) {
	w, ok := g.nodes[node]
	return w, ok
}

func (g *LocalTGraph) IsAbsent(node domain.Node) bool {
	return g.absent.Has(node)
}

func (g *LocalTGraph) OutgoingLoaded(tag domain.Tag) bool {
	_, ok := g.outgoing[tag]
	return ok
}

// Outgoing returns the loaded out-arcs of tag. The map must not be modified.
func (g *LocalTGraph) Outgoing(tag domain.Tag) (domain.TGraphArcs, bool) {
	out, ok := g.outgoing[tag]
	return out, ok
}

// Incoming returns the tags with a loaded arc into node.
func (g *LocalTGraph) Incoming(node domain.Node) domain.Set[domain.Tag] {
	return g.incoming[node]
}

func (g *LocalTGraph) IsComplete(tag domain.Tag) bool {
	return g.complete.Has(tag)
}

func (g *LocalTGraph) CompletedTags() domain.Set[domain.Tag] {
	return g.complete.Clone()
}

// Pending returns the out-neighbours of tag still waiting for a weight.
func (g *LocalTGraph) Pending(tag domain.Tag) domain.Set[domain.Node] {
	return g.pending[tag].Clone()
}

// Nodes returns the present nodes and their weights. The map must not be
// modified.
func (g *LocalTGraph) Nodes() map[domain.Node]domain.Probability {
	return g.nodes
}

// HasEndpoints reports whether both ends of an arc are present in this view,
// in which case a missing arc between them is a meaningful judgment.
func (g *LocalTGraph) HasEndpoints(src domain.Tag, dst domain.Node) bool {
	_, ok := g.nodes[domain.TagNode(src)]
	if !ok {
		return false
	}
	_, ok = g.nodes[dst]
	return ok
}

// Arc returns the weight of the arc src -> dst if it is loaded.
func (g *LocalTGraph) Arc(src domain.Tag, dst domain.Node) (domain.Probability, bool) {
	out, ok := g.outgoing[src]
	if !ok {
		return domain.Probability{}, false
	}
	return out.Get(dst)
}
