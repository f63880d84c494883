package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"tagroute/config"
	"tagroute/internal/domain"
	"tagroute/internal/scheme"
	"tagroute/internal/view"
)

func TestTopScored(t *testing.T) {
	m := map[domain.Addr]domain.Probability{
		1003: domain.MustProbability(0.2),
		1001: domain.MustProbability(0.9),
		1004: domain.MustProbability(0.9),
		1002: domain.MustProbability(0.5),
	}
	got := topScored(m, 3)
	want := []domain.Addr{1001, 1004, 1002}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %v", len(want), got)
	}
	for i, a := range want {
		if got[i].Addr != a {
			t.Errorf("position %d: expected %d, got %d", i, a, got[i].Addr)
		}
	}
	if len(topScored(m, 0)) != 4 {
		t.Error("k=0 should keep every entry")
	}
}

func TestSchemeSummary(t *testing.T) {
	if tags, addrs := schemeSummary(nil); tags != nil || addrs != nil {
		t.Errorf("nil scheme: got %v %v", tags, addrs)
	}

	g := view.NewFullTGraph()
	g.SetNode(domain.TagNode("a"), domain.MustProbability(0.5))
	g.SetNode(domain.TagNode("b"), domain.MustProbability(0.5))
	g.SetNode(domain.TGraphNode(2002), domain.MustProbability(0.5))
	g.SetArc("a", domain.TagNode("b"), domain.MustProbability(0.5))
	g.SetArc("b", domain.TGraphNode(2002), domain.MustProbability(0.5))
	g.MarkComplete("a")
	g.MarkComplete("b")

	sch, err := scheme.NewBuilder[domain.Entropy](scheme.EntropyMetric{}).Build(g, "a")
	if err != nil {
		t.Fatal(err)
	}
	tags, addrs := schemeSummary(sch)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("expected tags [a b], got %v", tags)
	}
	if len(addrs) != 1 || addrs[0] != 2002 {
		t.Errorf("expected tgraphs [2002], got %v", addrs)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"info", false, slog.LevelInfo},
		{"debug", false, slog.LevelDebug},
		{"WARN", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
		{"", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		log := newLogger(config.LoggingConfig{Level: tt.level, Format: "json"}, tt.verbose)
		if !log.Enabled(context.Background(), tt.want) {
			t.Errorf("%q verbose=%v: %v should be enabled", tt.level, tt.verbose, tt.want)
		}
		if tt.want > slog.LevelDebug && log.Enabled(context.Background(), tt.want-4) {
			t.Errorf("%q verbose=%v: level below %v should be disabled", tt.level, tt.verbose, tt.want)
		}
	}
}

func TestStorePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	root := t.TempDir()

	if got := boltPath(cfg, root); got != config.StoreDBPath(root) {
		t.Errorf("default bolt path: %s", got)
	}
	cfg.Store.Path = "data/net.db"
	if got, want := boltPath(cfg, root), filepath.Join(root, "data", "net.db"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	cfg.Store.Path = "/abs/net"
	if got := dataPath(cfg, root); got != "/abs/net" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}

func TestOpenStore_File(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join("..", "usecase", "testdata", "net")
	cfg.Cache.Enabled = true

	root, err := filepath.Abs(".")
	if err != nil {
		t.Fatal(err)
	}
	st, closeStore, err := openStore(cfg, root)
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	friends, err := st.GetFriends(8028)
	if err != nil || len(friends) != 3 {
		t.Errorf("unexpected friends %v %v", friends, err)
	}
}

func TestOpenStore_MissingBolt(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Kind = "bolt"
	if _, _, err := openStore(cfg, t.TempDir()); err == nil {
		t.Error("expected an error for a missing bolt store")
	}
}
