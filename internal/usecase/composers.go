package usecase

import (
	"errors"
	"sort"

	"tagroute/config"
	"tagroute/internal/compose"
	"tagroute/internal/domain"
	"tagroute/internal/view"
)

// PTableComposer fuses the preference tables of trusted peers.
type PTableComposer struct {
	tgraphs compose.MeanComposer[domain.PTable[domain.Probability], domain.Addr, domain.Probability]
	indexes compose.MeanComposer[domain.PTable[domain.Probability], domain.Addr, domain.Probability]
}

func NewPTableComposer(alpha float64) PTableComposer {
	type pt = domain.PTable[domain.Probability]
	return PTableComposer{
		tgraphs: compose.ProbabilityMean(func(t pt, a domain.Addr) (domain.Probability, bool) {
			w, ok := t.TGraphs[a]
			return w, ok
		}, compose.FixedAlpha[pt, domain.Addr](alpha)),
		indexes: compose.ProbabilityMean(func(t pt, a domain.Addr) (domain.Probability, bool) {
			w, ok := t.Indexes[a]
			return w, ok
		}, compose.FixedAlpha[pt, domain.Addr](alpha)),
	}
}

func (c PTableComposer) Compose(sources []compose.Source[domain.PTable[domain.Probability]]) (domain.PTable[domain.Probability], error) {
	out := domain.NewPTable[domain.Probability]()
	g := domain.NewSet[domain.Addr]()
	h := domain.NewSet[domain.Addr]()
	for _, src := range sources {
		for a := range src.View.TGraphs {
			g.Add(a)
		}
		for a := range src.View.Indexes {
			h.Add(a)
		}
	}
	for a := range g {
		w, err := c.tgraphs.Compose(sources, a)
		if err != nil {
			if errors.Is(err, domain.ErrDomain) {
				continue
			}
			return out, err
		}
		out.TGraphs[a] = w
	}
	for a := range h {
		w, err := c.indexes.Compose(sources, a)
		if err != nil {
			if errors.Is(err, domain.ErrDomain) {
				continue
			}
			return out, err
		}
		out.Indexes[a] = w
	}
	return out, nil
}

// TGraphComposer fuses local tag-graph views. Node weights are averaged in
// entropy space; arcs in probability space, with a larger alpha when both
// endpoints are known to the silent view.
type TGraphComposer struct {
	nodes compose.MeanComposer[*view.LocalTGraph, domain.Node, domain.Entropy]
	arcs  compose.MeanComposer[*view.LocalTGraph, domain.Arc[domain.Tag, domain.Node], domain.Probability]
}

func NewTGraphComposer(c config.ComposeConfig) TGraphComposer {
	type arc = domain.Arc[domain.Tag, domain.Node]
	return TGraphComposer{
		nodes: compose.EntropyMean(func(v *view.LocalTGraph, n domain.Node) (domain.Entropy, bool) {
			w, ok := v.Weight(n)
			if !ok {
				return domain.Entropy{}, false
			}
			return w.Entropy(), true
		}, compose.FixedAlpha[*view.LocalTGraph, domain.Node](c.NodeAlpha)),
		arcs: compose.ProbabilityMean(func(v *view.LocalTGraph, a arc) (domain.Probability, bool) {
			return v.Arc(a.Src, a.Dst)
		}, func(v *view.LocalTGraph, a arc) float64 {
			if v.HasEndpoints(a.Src, a.Dst) {
				return c.ArcAlpha2
			}
			return c.ArcAlpha1
		}),
	}
}

// Compose builds the composite tag-graph. Arcs pointing at tag-graphs for
// which skip returns true are left out; complete lists the tags every view
// has finished loading.
func (c TGraphComposer) Compose(sources []compose.Source[*view.LocalTGraph], skip func(domain.Addr) bool, complete domain.Set[domain.Tag]) (*view.FullTGraph, error) {
	g := view.NewFullTGraph()

	nodes := domain.NewSet[domain.Node]()
	arcs := domain.NewSet[domain.Arc[domain.Tag, domain.Node]]()
	for _, src := range sources {
		for n := range src.View.Nodes() {
			nodes.Add(n)
			if n.Is1() || !src.View.OutgoingLoaded(n.Must0()) {
				continue
			}
			tag := n.Must0()
			out, _ := src.View.Outgoing(tag)
			out.Range(func(dst domain.Node, _ domain.Probability) bool {
				arcs.Add(domain.Arc[domain.Tag, domain.Node]{Src: tag, Dst: dst})
				return true
			})
		}
	}

	for n := range nodes {
		e, err := c.nodes.Compose(sources, n)
		if err != nil {
			if errors.Is(err, domain.ErrDomain) {
				continue
			}
			return nil, err
		}
		g.SetNode(n, e.Probability())
	}
	for a := range arcs {
		if a.Dst.Is1() && skip(a.Dst.Must1()) {
			continue
		}
		w, err := c.arcs.Compose(sources, a)
		if err != nil {
			if errors.Is(err, domain.ErrDomain) {
				continue
			}
			return nil, err
		}
		g.SetArc(a.Src, a.Dst, w)
	}
	for t := range complete {
		g.MarkComplete(t)
	}
	return g, nil
}

// IndexComposer fuses local index views.
type IndexComposer struct {
	arcs compose.MeanComposer[*view.LocalIndex, domain.Arc[domain.Tag, domain.Target], domain.Probability]
}

func NewIndexComposer(c config.ComposeConfig) IndexComposer {
	type arc = domain.Arc[domain.Tag, domain.Target]
	return IndexComposer{
		arcs: compose.ProbabilityMean(func(v *view.LocalIndex, a arc) (domain.Probability, bool) {
			return v.Arc(a.Src, a.Dst)
		}, func(v *view.LocalIndex, a arc) float64 {
			if v.HasEndpoints(a.Src, a.Dst) {
				return c.IndexAlpha2
			}
			return c.IndexAlpha1
		}),
	}
}

// Compose builds the composite index, leaving out arcs to indexes for which
// skip returns true.
func (c IndexComposer) Compose(sources []compose.Source[*view.LocalIndex], skip func(domain.Addr) bool) (*view.FullIndex, error) {
	x := view.NewFullIndex()

	arcs := domain.NewSet[domain.Arc[domain.Tag, domain.Target]]()
	for _, src := range sources {
		for tag := range src.View.Tags() {
			out, _ := src.View.Outgoing(tag)
			out.Range(func(dst domain.Target, _ domain.Probability) bool {
				arcs.Add(domain.Arc[domain.Tag, domain.Target]{Src: tag, Dst: dst})
				return true
			})
		}
	}
	for a := range arcs {
		if a.Dst.Is1() && skip(a.Dst.Must1()) {
			continue
		}
		w, err := c.arcs.Compose(sources, a)
		if err != nil {
			if errors.Is(err, domain.ErrDomain) {
				continue
			}
			return nil, err
		}
		x.SetArc(a.Src, a.Dst, w)
	}
	return x, nil
}

// ProbabilityLookupScorer scores lookups and results by intersection.
type ProbabilityLookupScorer struct{}

func (ProbabilityLookupScorer) LookupScore(indexScore, tagAttr domain.Probability) domain.Probability {
	return indexScore.Intersect(tagAttr)
}

func (ProbabilityLookupScorer) ResultAttr(tagAttr, arcWeight domain.Probability) domain.Probability {
	return tagAttr.Intersect(arcWeight)
}

// sourcesOf pairs every view in use with its score, in activation order.
func sourcesOf[L any](ds *view.DataSources[L]) []compose.Source[L] {
	scores := ds.Scores()
	addrs := ds.InUse()
	out := make([]compose.Source[L], 0, len(addrs))
	for _, a := range addrs {
		v, _ := ds.Local(a)
		out = append(out, compose.Source[L]{View: v, Weight: scores[a]})
	}
	return out
}

// byScore sorts addresses by descending score, then ascending address.
func byScore(scores map[domain.Addr]domain.Probability) []domain.Addr {
	out := make([]domain.Addr, 0, len(scores))
	for a := range scores {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := scores[out[i]].Compare(scores[out[j]]); c != 0 {
			return c > 0
		}
		return out[i] < out[j]
	})
	return out
}

func sortedAddrs[V any](m map[domain.Addr]V) []domain.Addr {
	out := make([]domain.Addr, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
