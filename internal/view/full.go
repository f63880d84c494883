package view

import "tagroute/internal/domain"

// FullTGraph is the composite tag-graph fused from several local views.
// Arcs are only kept between nodes that carry a weight.
type FullTGraph struct {
	nodes    map[domain.Node]domain.Probability
	outgoing map[domain.Tag]map[domain.Node]domain.Probability
	incoming map[domain.Node]domain.Set[domain.Tag]
	complete domain.Set[domain.Tag]
}

func NewFullTGraph() *FullTGraph {
	return &FullTGraph{
		nodes:    make(map[domain.Node]domain.Probability),
		outgoing: make(map[domain.Tag]map[domain.Node]domain.Probability),
		incoming: make(map[domain.Node]domain.Set[domain.Tag]),
		complete: domain.NewSet[domain.Tag](),
	}
}

func (g *FullTGraph) SetNode(node domain.Node, weight domain.Probability) {
	g.nodes[node] = weight
}

// SetArc adds src -> dst and reports whether both endpoints were present.
func (g *FullTGraph) SetArc(src domain.Tag, dst domain.Node, weight domain.Probability) bool {
	if _, ok := g.nodes[domain.TagNode(src)]; !ok {
		return false
	}
	if _, ok := g.nodes[dst]; !ok {
		return false
	}
	out, ok := g.outgoing[src]
	if !ok {
		out = make(map[domain.Node]domain.Probability)
		g.outgoing[src] = out
	}
	out[dst] = weight

	in, ok := g.incoming[dst]
	if !ok {
		in = domain.NewSet[domain.Tag]()
		g.incoming[dst] = in
	}
	in.Add(src)
	return true
}

func (g *FullTGraph) MarkComplete(tag domain.Tag) {
	g.complete.Add(tag)
}

func (g *FullTGraph) Weight(node domain.Node) (domain.Probability, bool) {
	w, ok := g.nodes[node]
	return w, ok
}

func (g *FullTGraph) Nodes() map[domain.Node]domain.Probability {
	return g.nodes
}

func (g *FullTGraph) Outgoing(tag domain.Tag) map[domain.Node]domain.Probability {
	return g.outgoing[tag]
}

func (g *FullTGraph) Incoming(node domain.Node) domain.Set[domain.Tag] {
	return g.incoming[node]
}

func (g *FullTGraph) IsComplete(tag domain.Tag) bool {
	return g.complete.Has(tag)
}

func (g *FullTGraph) Complete() domain.Set[domain.Tag] {
	return g.complete.Clone()
}

// FullIndex is the composite index fused from several local views.
type FullIndex struct {
	outgoing  map[domain.Tag]domain.IndexArcs
	incomingD map[domain.Addr]domain.Set[domain.Tag]
	incomingH map[domain.Addr]domain.Set[domain.Tag]
}

func NewFullIndex() *FullIndex {
	return &FullIndex{
		outgoing:  make(map[domain.Tag]domain.IndexArcs),
		incomingD: make(map[domain.Addr]domain.Set[domain.Tag]),
		incomingH: make(map[domain.Addr]domain.Set[domain.Tag]),
	}
}

func (x *FullIndex) SetArc(tag domain.Tag, dst domain.Target, weight domain.Probability) {
	out, ok := x.outgoing[tag]
	if !ok {
		out = domain.TargetMap[domain.Probability]()
		x.outgoing[tag] = out
	}
	out.Put(dst, weight)
	if dst.Is0() {
		addIncoming(x.incomingD, dst.Must0(), tag)
	} else {
		addIncoming(x.incomingH, dst.Must1(), tag)
	}
}

func (x *FullIndex) Outgoing(tag domain.Tag) (domain.IndexArcs, bool) {
	out, ok := x.outgoing[tag]
	return out, ok
}

func (x *FullIndex) IncomingD(doc domain.Addr) domain.Set[domain.Tag] {
	return x.incomingD[doc]
}

func (x *FullIndex) IncomingH(idx domain.Addr) domain.Set[domain.Tag] {
	return x.incomingH[idx]
}

// Docs returns every document reachable from a loaded tag.
func (x *FullIndex) Docs() []domain.Addr {
	out := make([]domain.Addr, 0, len(x.incomingD))
	for d := range x.incomingD {
		out = append(out, d)
	}
	return out
}

func (x *FullIndex) Indexes() []domain.Addr {
	out := make([]domain.Addr, 0, len(x.incomingH))
	for h := range x.incomingH {
		out = append(out, h)
	}
	return out
}
