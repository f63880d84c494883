package proxy

import (
	"errors"
	"math"
	"testing"

	"tagroute/internal/adapter/memstore"
	"tagroute/internal/domain"
	"tagroute/internal/port"
)

func TestProbabilityStore_Converts(t *testing.T) {
	raw := memstore.NewMemoryStore[float64]()
	raw.PutFriend(1, 2, 0.9)
	raw.PutPTableTGraph(2, 2001, 0.5)
	raw.PutPTableIndex(2, 3001, 0.25)
	raw.PutTGraphNode(2001, domain.TagNode("a"), 0.5)
	raw.PutTGraphArc(2001, "a", domain.TGraphNode(2002), 0.75)
	raw.PutIndexArc(3001, "a", domain.DocTarget(1001), 1)

	s := NewProbabilityStore(raw)

	f, err := s.GetFriends(1)
	if err != nil || f[2].Float64() != 0.9 {
		t.Errorf("friends: %v %v", f, err)
	}
	pt, err := s.GetPTable(2)
	if err != nil || pt.TGraphs[2001].Float64() != 0.5 || pt.Indexes[3001].Float64() != 0.25 {
		t.Errorf("ptable: %+v %v", pt, err)
	}
	if len(pt.TGraphs) != 1 {
		t.Error("indexes must not leak into the tgraph table")
	}
	out, err := s.GetTGraphOutgoing(2001, "a")
	if err != nil || out.M1[2002].Float64() != 0.75 {
		t.Errorf("tgraph arcs: %+v %v", out, err)
	}
	out, err = s.GetTGraphOutgoing(2001, "missing")
	if err != nil || !out.IsNil() {
		t.Errorf("missing tag should stay nil: %+v %v", out, err)
	}
	w, ok, err := s.GetTGraphNodeAttr(2001, domain.TagNode("a"))
	if err != nil || !ok || w.Float64() != 0.5 {
		t.Errorf("node: %v %v %v", w, ok, err)
	}
	idx, err := s.GetIndexOutgoing(3001, "a")
	if err != nil || idx.M0[1001].Float64() != 1 {
		t.Errorf("index: %+v %v", idx, err)
	}
}

func TestProbabilityStore_RejectsInvalidWeights(t *testing.T) {
	raw := memstore.NewMemoryStore[float64]()
	raw.PutFriend(1, 2, 1.5)
	raw.PutTGraphNode(2001, domain.TagNode("a"), math.NaN())
	raw.PutIndexArc(3001, "a", domain.IndexTarget(3002), -0.1)

	s := NewProbabilityStore(raw)

	if _, err := s.GetFriends(1); !errors.Is(err, port.ErrNotAvailable) || !errors.Is(err, domain.ErrDomain) {
		t.Errorf("expected not-available domain error, got %v", err)
	}
	if _, _, err := s.GetTGraphNodeAttr(2001, domain.TagNode("a")); err == nil {
		t.Error("NaN node weight must be rejected")
	}
	if _, err := s.GetIndexOutgoing(3001, "a"); err == nil {
		t.Error("negative arc weight must be rejected")
	}
	if _, err := s.GetPTable(9); !errors.Is(err, port.ErrNotAvailable) {
		t.Errorf("missing ptable should pass through, got %v", err)
	}
}
