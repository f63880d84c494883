package scheme

import (
	"errors"
	"math"
	"slices"
	"testing"

	"tagroute/internal/domain"
	"tagroute/internal/view"
)

func p(v float64) domain.Probability { return domain.MustProbability(v) }

var (
	nodeA = domain.TagNode("a")
	nodeB = domain.TagNode("b")
	nodeC = domain.TagNode("c")
	nodeH = domain.TGraphNode(2002)
)

// a -> b (2 bits), a -> c (3 bits), b -> 2002 (2 bits), c -> b
func testGraph(complete ...domain.Tag) *view.FullTGraph {
	g := view.NewFullTGraph()
	g.SetNode(nodeA, p(0.5))
	g.SetNode(nodeB, p(0.5))
	g.SetNode(nodeC, p(0.25))
	g.SetNode(nodeH, p(0.5))
	g.SetArc("a", nodeB, p(0.5))
	g.SetArc("a", nodeC, p(0.5))
	g.SetArc("b", nodeH, p(0.5))
	g.SetArc("c", nodeB, p(0.9))
	for _, t := range complete {
		g.MarkComplete(t)
	}
	return g
}

func TestBuilder_EntropyOrder(t *testing.T) {
	s, err := NewBuilder[domain.Entropy](EntropyMetric{}).Build(testGraph("a", "b", "c"), "a")
	if err != nil {
		t.Fatal(err)
	}

	want := []domain.Node{nodeA, nodeB, nodeC, nodeH}
	if got := s.Nodes(); !slices.Equal(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
	if s.Incomplete() {
		t.Error("scheme over complete tags should be complete")
	}

	if got := s.Path(nodeH); !slices.Equal(got, []domain.Tag{"a", "b"}) {
		t.Errorf("path of 2002: got %v", got)
	}
	if got := s.Path(nodeA); len(got) != 0 {
		t.Errorf("seed path should be empty, got %v", got)
	}
	anc := s.Ancestors(nodeH)
	if anc.Len() != 2 || !anc.Has("a") || !anc.Has("b") {
		t.Errorf("ancestors of 2002: got %v", domain.Sorted(anc))
	}

	if a, _ := s.Attr("a"); a.Float64() != 1 {
		t.Errorf("seed attr should be 1, got %v", a.Float64())
	}
	if a, _ := s.Attr("b"); a.Float64() != 0.25 {
		t.Errorf("attr of b: expected 0.25, got %v", a.Float64())
	}
	if addrs := s.Addresses(); len(addrs) != 1 || addrs[0] != 2002 {
		t.Errorf("expected addresses [2002], got %v", addrs)
	}
}

func TestBuilder_RanksFollowDistance(t *testing.T) {
	s, err := NewBuilder[domain.Entropy](EntropyMetric{}).Build(testGraph("a", "b", "c"), "a")
	if err != nil {
		t.Fatal(err)
	}
	prev := math.Inf(1)
	for _, n := range s.Nodes() {
		if n.Is1() {
			continue
		}
		a, ok := s.Attr(n.Must0())
		if !ok {
			t.Fatalf("tag %v has no attribute", n)
		}
		if a.Float64() > prev {
			t.Errorf("tag %v ranked after a nearer tag", n)
		}
		prev = a.Float64()
	}
}

func TestBuilder_StopsAtIncompleteTag(t *testing.T) {
	s, err := NewBuilder[domain.Entropy](EntropyMetric{}).Build(testGraph("a", "b"), "a")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Incomplete() {
		t.Fatal("expected incomplete scheme")
	}
	if s.Last() != nodeC {
		t.Errorf("expected c last, got %v", s.Last())
	}
	if s.Has(nodeH) {
		t.Error("2002 lies beyond the incomplete tag and must not be ranked")
	}
}

func TestBuilder_Seed(t *testing.T) {
	g := view.NewFullTGraph()
	s, err := NewBuilder[domain.Entropy](EntropyMetric{}).Build(g, "z")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 || !s.Incomplete() {
		t.Errorf("unloaded seed: expected incomplete single-node scheme, got len=%d incomplete=%v", s.Len(), s.Incomplete())
	}

	g.MarkComplete("z")
	s, _ = NewBuilder[domain.Entropy](EntropyMetric{}).Build(g, "z")
	if s.Len() != 1 || s.Incomplete() {
		t.Error("seed known to be absent should give a complete single-node scheme")
	}

	s, _ = NewBuilder[domain.Entropy](EntropyMetric{}).Build(testGraph(), "a")
	if !s.Incomplete() || s.Len() != 1 {
		t.Error("incomplete seed should stop expansion immediately")
	}
}

func TestBuilder_ProbabilityMetric(t *testing.T) {
	s, err := NewBuilder[domain.Probability](NewProbabilityMetric(nil)).Build(testGraph("a", "b", "c"), "a")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", s.Len())
	}
	if a, _ := s.Attr("a"); a.Float64() != 1 {
		t.Errorf("seed attr should be 1, got %v", a.Float64())
	}
	for _, tag := range []domain.Tag{"b", "c"} {
		a, ok := s.Attr(tag)
		if !ok || a.Float64() < 0 || a.Float64() > 1 {
			t.Errorf("attr of %s out of range: %v", tag, a)
		}
	}
}

func TestScheme_PushNodeContract(t *testing.T) {
	s := New("a", domain.MaxProbability)

	if err := s.PushNode(nodeB, "x", domain.NewSet[domain.Tag]("x")); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("unknown parent: expected ErrIllegalArgument, got %v", err)
	}
	if err := s.PushNode(nodeB, "a", domain.NewSet[domain.Tag]("c")); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("parent not incoming: expected ErrIllegalArgument, got %v", err)
	}
	if err := s.PushNode(nodeB, "a", domain.NewSet[domain.Tag]("a")); err != nil {
		t.Fatal(err)
	}
	if err := s.PushNode(nodeB, "a", domain.NewSet[domain.Tag]("a")); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("duplicate: expected ErrIllegalArgument, got %v", err)
	}

	if err := s.PushNode(nodeH, "b", domain.NewSet[domain.Tag]("b")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetIncomplete(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("address last: expected ErrIllegalState, got %v", err)
	}
}

func TestScheme_MostRelevant(t *testing.T) {
	s := New("a", domain.MaxProbability)
	_ = s.PushNode(nodeB, "a", domain.NewSet[domain.Tag]("a"))
	_ = s.SetAttr("b", p(0.3))

	tag, attr, ok := s.MostRelevant(domain.NewSet[domain.Tag]("b", "a", "zz"))
	if !ok || tag != "a" || attr.Float64() != 1 {
		t.Errorf("expected a at 1, got %s at %v", tag, attr)
	}
	if _, _, ok := s.MostRelevant(domain.NewSet[domain.Tag]("zz")); ok {
		t.Error("tags outside the scheme should not be relevant")
	}
}
