package view

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"tagroute/internal/compose"
	"tagroute/internal/domain"
)

func p(v float64) domain.Probability { return domain.MustProbability(v) }

func arcs(entries map[domain.Node]float64) domain.TGraphArcs {
	m := domain.NodeMap[domain.Probability]()
	for k, v := range entries {
		m.Put(k, p(v))
	}
	return m
}

func TestLocalTGraph_ArcsBeforeWeights(t *testing.T) {
	g := NewLocalTGraph()
	a, b := domain.TagNode("a"), domain.TagNode("b")
	h := domain.TGraphNode(2002)

	if err := g.SetNodeAttr(a, p(0.5)); err != nil {
		t.Fatal(err)
	}
	if err := g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.4, h: 0.2})); err != nil {
		t.Fatal(err)
	}
	if g.IsComplete("a") {
		t.Fatal("a should wait for b and 2002")
	}
	if g.Pending("a").Len() != 2 {
		t.Errorf("expected 2 pending nodes, got %d", g.Pending("a").Len())
	}

	if err := g.SetNodeAttr(b, p(0.3)); err != nil {
		t.Fatal(err)
	}
	if g.IsComplete("a") {
		t.Fatal("a should still wait for 2002")
	}
	if err := g.SetNodeAttr(h, p(0.1)); err != nil {
		t.Fatal(err)
	}
	if !g.IsComplete("a") {
		t.Error("a should be complete")
	}
	if !g.Incoming(b).Has("a") {
		t.Error("expected incoming arc a -> b")
	}
}

func TestLocalTGraph_WeightsBeforeArcs(t *testing.T) {
	g := NewLocalTGraph()
	a, b := domain.TagNode("a"), domain.TagNode("b")
	_ = g.SetNodeAttr(a, p(0.5))
	_ = g.SetNodeAttr(b, p(0.3))

	if err := g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.4})); err != nil {
		t.Fatal(err)
	}
	if !g.IsComplete("a") {
		t.Error("a should be complete immediately")
	}
	if g.IsComplete("b") {
		t.Error("b has no arcs loaded and cannot be complete")
	}
}

func TestLocalTGraph_Errors(t *testing.T) {
	a, b := domain.TagNode("a"), domain.TagNode("b")

	t.Run("weight twice", func(t *testing.T) {
		g := NewLocalTGraph()
		_ = g.SetNodeAttr(a, p(0.5))
		if err := g.SetNodeAttr(a, p(0.5)); !errors.Is(err, ErrAlreadyLoaded) {
			t.Errorf("expected ErrAlreadyLoaded, got %v", err)
		}
		if err := g.SetNodeAbsent(a); !errors.Is(err, ErrAlreadyLoaded) {
			t.Errorf("expected ErrAlreadyLoaded, got %v", err)
		}
	})

	t.Run("arcs twice", func(t *testing.T) {
		g := NewLocalTGraph()
		_ = g.SetNodeAttr(a, p(0.5))
		_ = g.SetOutgoingT("a", domain.TGraphArcs{})
		if err := g.SetOutgoingT("a", domain.TGraphArcs{}); !errors.Is(err, ErrAlreadyLoaded) {
			t.Errorf("expected ErrAlreadyLoaded, got %v", err)
		}
	})

	t.Run("arcs before weight", func(t *testing.T) {
		g := NewLocalTGraph()
		if err := g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.1})); !errors.Is(err, ErrNotLoaded) {
			t.Errorf("expected ErrNotLoaded, got %v", err)
		}
	})

	t.Run("absent with incoming", func(t *testing.T) {
		g := NewLocalTGraph()
		_ = g.SetNodeAttr(a, p(0.5))
		_ = g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.1}))
		if err := g.SetNodeAbsent(b); !errors.Is(err, ErrCorruptRemoteData) {
			t.Errorf("expected ErrCorruptRemoteData, got %v", err)
		}
	})

	t.Run("arc into absent", func(t *testing.T) {
		g := NewLocalTGraph()
		_ = g.SetNodeAttr(a, p(0.5))
		_ = g.SetNodeAbsent(b)
		if err := g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.1})); !errors.Is(err, ErrCorruptRemoteData) {
			t.Errorf("expected ErrCorruptRemoteData, got %v", err)
		}
		if g.OutgoingLoaded("a") {
			t.Error("rejected arcs must not be recorded")
		}
	})

	t.Run("absent tag with arcs", func(t *testing.T) {
		g := NewLocalTGraph()
		_ = g.SetNodeAbsent(a)
		if !g.IsComplete("a") {
			t.Error("absent tag should be complete")
		}
		if err := g.SetOutgoingT("a", arcs(map[domain.Node]float64{b: 0.1})); !errors.Is(err, ErrCorruptRemoteData) {
			t.Errorf("expected ErrCorruptRemoteData, got %v", err)
		}
		empty := arcs(map[domain.Node]float64{})
		if err := g.SetOutgoingT("a", empty); !errors.Is(err, ErrCorruptRemoteData) {
			t.Errorf("empty arc map for absent tag: expected ErrCorruptRemoteData, got %v", err)
		}
		if err := g.SetOutgoingT("a", domain.TGraphArcs{}); err != nil {
			t.Errorf("nil arcs for absent tag should load, got %v", err)
		}
	})
}

type op struct {
	arcs bool
	node domain.Node
}

// Every load order that respects weight-before-arcs must keep the
// completion set equal to its definition after every step.
func TestLocalTGraph_CompletionUnderPermutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	const nTags, nAddrs = 8, 3
	var nodes []domain.Node
	for i := 0; i < nTags; i++ {
		nodes = append(nodes, domain.TagNode(domain.Tag(fmt.Sprintf("t%d", i))))
	}
	for i := 0; i < nAddrs; i++ {
		nodes = append(nodes, domain.TGraphNode(domain.Addr(2000+i)))
	}

	out := make(map[domain.Tag]domain.TGraphArcs)
	for i := 0; i < nTags; i++ {
		tag := domain.Tag(fmt.Sprintf("t%d", i))
		m := domain.NodeMap[domain.Probability]()
		for _, n := range nodes {
			if n != domain.TagNode(tag) && rng.Float64() < 0.3 {
				m.Put(n, p(rng.Float64()))
			}
		}
		out[tag] = m
	}

	for round := 0; round < 200; round++ {
		var ops []op
		for _, n := range nodes {
			ops = append(ops, op{node: n})
			if n.Is0() {
				ops = append(ops, op{arcs: true, node: n})
			}
		}
		rng.Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

		g := NewLocalTGraph()
		var deferred []op
		apply := func(o op) bool {
			if !o.arcs {
				if err := g.SetNodeAttr(o.node, p(0.5)); err != nil {
					t.Fatalf("round %d: %v", round, err)
				}
				return true
			}
			tag := o.node.Must0()
			if _, ok := g.Weight(o.node); !ok {
				return false
			}
			if err := g.SetOutgoingT(tag, out[tag]); err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
			return true
		}

		for _, o := range ops {
			if !apply(o) {
				deferred = append(deferred, o)
			} else {
				var still []op
				for _, d := range deferred {
					if !apply(d) {
						still = append(still, d)
					}
				}
				deferred = still
			}
			checkCompletion(t, g, out)
		}
		if len(deferred) != 0 {
			t.Fatalf("round %d: %d ops never applied", round, len(deferred))
		}
		for tag := range out {
			if !g.IsComplete(tag) {
				t.Fatalf("round %d: %s incomplete after full load", round, tag)
			}
		}
	}
}

func checkCompletion(t *testing.T, g *LocalTGraph, out map[domain.Tag]domain.TGraphArcs) {
	t.Helper()
	for tag, arcs := range out {
		want := g.Loaded(domain.TagNode(tag)) && g.OutgoingLoaded(tag)
		if want {
			arcs.Range(func(dst domain.Node, _ domain.Probability) bool {
				if _, ok := g.Weight(dst); !ok {
					want = false
					return false
				}
				return true
			})
		}
		if got := g.IsComplete(tag); got != want {
			t.Fatalf("tag %s: complete=%v, want %v", tag, got, want)
		}
	}
}

func TestLocalIndex(t *testing.T) {
	x := NewLocalIndex()
	out := domain.TargetMap[domain.Probability]()
	out.Put(domain.DocTarget(1001), p(0.7))
	out.Put(domain.IndexTarget(3002), p(0.2))

	if err := x.SetOutgoingT("aacs", out); err != nil {
		t.Fatal(err)
	}
	if err := x.SetOutgoingT("aacs", out); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("expected ErrAlreadyLoaded, got %v", err)
	}
	if err := x.SetOutgoingT("missing", domain.IndexArcs{}); err != nil {
		t.Fatal(err)
	}

	if !x.IncomingD(1001).Has("aacs") {
		t.Error("expected aacs -> doc 1001")
	}
	if !x.IncomingH(3002).Has("aacs") {
		t.Error("expected aacs -> index 3002")
	}
	if x.IncomingD(3002).Len() != 0 {
		t.Error("index target must not appear as a document")
	}
	if !x.HasEndpoints("missing", domain.DocTarget(1001)) {
		t.Error("loaded tag and known doc should have endpoints")
	}
	if x.HasEndpoints("other", domain.DocTarget(1001)) {
		t.Error("unloaded tag should not have endpoints")
	}
}

func TestDataSources(t *testing.T) {
	spu, err := compose.NewSPUInferer[domain.Addr](0.5)
	if err != nil {
		t.Fatal(err)
	}
	s := NewDataSources(NewLocalTGraph, spu)
	s.SetSeeds(map[domain.Addr]domain.Probability{2001: p(0.8)})

	if _, err := s.UseSource(2005); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	if _, err := s.UseSource(2001); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UseSource(2001); err == nil {
		t.Error("expected error using a source twice")
	}

	s.SetOutgoing(2001, 2002, 2003)
	s.SetOutgoing(2001, 2002)
	if s.Outgoing(2001).Len() != 2 {
		t.Errorf("expected 2 out-neighbours, got %d", s.Outgoing(2001).Len())
	}
	if !s.Incoming(2002).Has(2001) {
		t.Error("expected 2001 in incoming of 2002")
	}
	if _, err := s.UseSource(2002); err != nil {
		t.Fatal(err)
	}

	s.CalculateScores()
	if got := s.Scores()[2001].Float64(); got != 0.8 {
		t.Errorf("seed score: expected 0.8, got %v", got)
	}
	if got := s.Scores()[2002].Float64(); got != 0.4 {
		t.Errorf("one-hop score: expected 0.4, got %v", got)
	}
	if _, ok := s.Scores()[2003]; ok {
		t.Error("unused source should not get a calculated score")
	}
	if got := s.Score(2003).Float64(); got != 0.4 {
		t.Errorf("inferred score: expected 0.4, got %v", got)
	}
	if inUse := s.InUse(); len(inUse) != 2 || inUse[0] != 2001 {
		t.Errorf("unexpected in-use order %v", inUse)
	}
}
