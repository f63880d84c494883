package store

import (
	"errors"
	"path/filepath"
	"testing"

	"tagroute/config"
	"tagroute/internal/domain"
	"tagroute/internal/port"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fill(t *testing.T, s *BoltStore) {
	t.Helper()
	err := s.Batch(func(b *Batch) error {
		if err := b.PutFriends(8028, map[domain.Addr]float64{8032: 0.9}); err != nil {
			return err
		}
		pt := domain.NewPTable[float64]()
		pt.TGraphs[2001] = 0.5
		pt.Indexes[3001] = 0.25
		if err := b.PutPTable(8032, pt); err != nil {
			return err
		}
		if err := b.PutTGraphNode(2001, domain.TagNode("aacs"), 0.05); err != nil {
			return err
		}
		if err := b.PutTGraphNode(2001, domain.TagNode("drm"), 0.1); err != nil {
			return err
		}
		if err := b.PutTGraphNode(2001, domain.TGraphNode(2002), 0.3); err != nil {
			return err
		}
		arcs := domain.NodeMap[float64]()
		arcs.M0["drm"] = 0.6
		arcs.M1[2002] = 0.5
		if err := b.PutTGraphArcs(2001, "aacs", arcs); err != nil {
			return err
		}
		out := domain.TargetMap[float64]()
		out.M0[1001] = 0.9
		out.M1[3002] = 0.4
		return b.PutIndexArcs(3001, "aacs", out)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBoltStore_Reads(t *testing.T) {
	s := openTestStore(t)
	fill(t, s)

	f, err := s.GetFriends(8028)
	if err != nil || f[8032] != 0.9 {
		t.Errorf("friends: %v %v", f, err)
	}
	pt, err := s.GetPTable(8032)
	if err != nil || pt.TGraphs[2001] != 0.5 || pt.Indexes[3001] != 0.25 {
		t.Errorf("ptable: %+v %v", pt, err)
	}

	out, err := s.GetTGraphOutgoing(2001, "aacs")
	if err != nil || out.M0["drm"] != 0.6 || out.M1[2002] != 0.5 {
		t.Errorf("arcs: %+v %v", out, err)
	}
	out, _ = s.GetTGraphOutgoing(2001, "drm")
	if out.IsNil() || out.Len() != 0 {
		t.Errorf("node with no arcs should give an empty map, got %+v", out)
	}
	out, _ = s.GetTGraphOutgoing(2001, "nope")
	if !out.IsNil() {
		t.Errorf("missing tag should give a nil map, got %+v", out)
	}

	w, ok, err := s.GetTGraphNodeAttr(2001, domain.TGraphNode(2002))
	if err != nil || !ok || w != 0.3 {
		t.Errorf("tgraph node: %v %v %v", w, ok, err)
	}
	if _, ok, err := s.GetTGraphNodeAttr(2001, domain.TGraphNode(9)); ok || err != nil {
		t.Errorf("missing node: %v %v", ok, err)
	}

	idx, err := s.GetIndexOutgoing(3001, "aacs")
	if err != nil || idx.M0[1001] != 0.9 || idx.M1[3002] != 0.4 {
		t.Errorf("index: %+v %v", idx, err)
	}
	if idx, _ := s.GetIndexOutgoing(3001, "drm"); !idx.IsNil() {
		t.Errorf("missing tag should give a nil map, got %+v", idx)
	}
}

func TestBoltStore_NotAvailable(t *testing.T) {
	s := openTestStore(t)
	fill(t, s)

	tests := []struct {
		name string
		call func() error
		msg  string
	}{
		{"friends", func() error { _, err := s.GetFriends(1); return err }, "friend-list not available for: 1"},
		{"ptable", func() error { _, err := s.GetPTable(2); return err }, "ptable not available for: 2"},
		{"tgraph", func() error { _, err := s.GetTGraphOutgoing(3, "a"); return err }, "tgraph not available for: 3"},
		{"node", func() error { _, _, err := s.GetTGraphNodeAttr(3, domain.TagNode("a")); return err }, "tgraph not available for: 3"},
		{"index", func() error { _, err := s.GetIndexOutgoing(4, "a"); return err }, "index not available for: 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, port.ErrNotAvailable) {
				t.Fatalf("expected ErrNotAvailable, got %v", err)
			}
			if err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestBoltStore_CountsAndClear(t *testing.T) {
	s := openTestStore(t)
	fill(t, s)

	c, err := s.Counts()
	if err != nil {
		t.Fatal(err)
	}
	want := Counts{Friends: 1, PTables: 1, TGraphs: 1, Indexes: 1, Nodes: 3, Arcs: 2}
	if c != want {
		t.Errorf("expected %+v, got %+v", want, c)
	}
	ids, _ := s.ListIdentities()
	if len(ids) != 1 || ids[0] != 8028 {
		t.Errorf("unexpected identities %v", ids)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Counts()
	if c != (Counts{}) {
		t.Errorf("expected an empty store, got %+v", c)
	}
	if _, err := s.GetFriends(8028); !errors.Is(err, port.ErrNotAvailable) {
		t.Errorf("expected not available after clear, got %v", err)
	}
}

func TestBoltStore_Migration(t *testing.T) {
	s := openTestStore(t)
	cfg := config.DefaultConfig()

	res, err := s.CheckMigration(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.NeedsMigration || res.OldVersion != 0 {
		t.Errorf("fresh store should need a migration: %+v", res)
	}

	if err := s.Migrate(cfg); err != nil {
		t.Fatal(err)
	}
	res, _ = s.CheckMigration(cfg)
	if res.NeedsMigration || res.NeedsRebuild {
		t.Errorf("migrated store should be current: %+v", res)
	}

	cfg.Store.Excludes = append(cfg.Store.Excludes, "**/old/**")
	rebuild, reason, err := s.NeedsRebuild(cfg)
	if err != nil || !rebuild {
		t.Errorf("changed excludes should need a rebuild: %v %q %v", rebuild, reason, err)
	}

	if err := s.SetSchemaInfo(&SchemaInfo{Version: CurrentSchemaVersion + 1}); err != nil {
		t.Fatal(err)
	}
	res, _ = s.CheckMigration(cfg)
	if !res.NeedsRebuild {
		t.Errorf("newer schema should need a rebuild: %+v", res)
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	fill(t, s)
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if out, err := s.GetTGraphOutgoing(2001, "aacs"); err != nil || out.Len() != 2 {
		t.Errorf("data should survive a reopen: %+v %v", out, err)
	}
}
