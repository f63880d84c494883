package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"tagroute/internal/adapter/fs"
	"tagroute/internal/domain"
	"tagroute/internal/port"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func openFixture(t *testing.T) *FileStore {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"8028.fr.yaml": "friends:\n  8032: 0.9\n",
		"peers/8032.ptab.yaml": `
tgraphs: {2001: 0.5}
indexes: {3001: 0.25}
`,
		"g/2001.tgr.yaml": `
tags:
  aacs: 0.05
  drm: 0.1
tgraphs:
  2002: 0.3
arcs:
  aacs:
    tags: {drm: 0.6}
    tgraphs: {2002: 0.5}
`,
		"h/3001.idx.yaml": `
arcs:
  aacs:
    docs: {1001: 0.9}
    indexes: {3002: 0.4}
`,
		"README.md": "not data",
	})
	s, err := Open(root, fs.NewWalker(Includes, nil))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFileStore_Reads(t *testing.T) {
	s := openFixture(t)

	f, err := s.GetFriends(8028)
	if err != nil || f[8032] != 0.9 {
		t.Errorf("friends: %v %v", f, err)
	}

	pt, err := s.GetPTable(8032)
	if err != nil || pt.TGraphs[2001] != 0.5 || pt.Indexes[3001] != 0.25 {
		t.Errorf("ptable: %+v %v", pt, err)
	}

	out, err := s.GetTGraphOutgoing(2001, "aacs")
	if err != nil {
		t.Fatal(err)
	}
	if out.M0["drm"] != 0.6 || out.M1[2002] != 0.5 {
		t.Errorf("unexpected arcs %+v", out)
	}
	out, _ = s.GetTGraphOutgoing(2001, "drm")
	if out.IsNil() || out.Len() != 0 {
		t.Errorf("tag with no arcs should give an empty map, got %+v", out)
	}
	out, _ = s.GetTGraphOutgoing(2001, "nope")
	if !out.IsNil() {
		t.Errorf("missing tag should give a nil map, got %+v", out)
	}

	w, ok, err := s.GetTGraphNodeAttr(2001, domain.TGraphNode(2002))
	if err != nil || !ok || w != 0.3 {
		t.Errorf("tgraph node: %v %v %v", w, ok, err)
	}
	if _, ok, _ := s.GetTGraphNodeAttr(2001, domain.TagNode("nope")); ok {
		t.Error("missing node must be absent")
	}

	idx, err := s.GetIndexOutgoing(3001, "aacs")
	if err != nil || idx.M0[1001] != 0.9 || idx.M1[3002] != 0.4 {
		t.Errorf("index: %+v %v", idx, err)
	}
	if idx, _ := s.GetIndexOutgoing(3001, "drm"); !idx.IsNil() {
		t.Errorf("missing tag should give a nil map, got %+v", idx)
	}
}

func TestFileStore_NotAvailable(t *testing.T) {
	s := openFixture(t)

	tests := []struct {
		name string
		call func() error
		msg  string
	}{
		{"friends", func() error { _, err := s.GetFriends(1); return err }, "friend-list not available for: 1"},
		{"ptable", func() error { _, err := s.GetPTable(2); return err }, "ptable not available for: 2"},
		{"tgraph", func() error { _, err := s.GetTGraphOutgoing(3, "a"); return err }, "tgraph not available for: 3"},
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

func TestFileStore_BadYAML(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"2001.tgr.yaml": "tags: [not, a, map"})
	s, err := Open(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTGraphOutgoing(2001, "a"); !errors.Is(err, port.ErrNotAvailable) {
		t.Errorf("parse errors should be reported as not available, got %v", err)
	}
}

func TestFileStore_DuplicateFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a/2001.tgr.yaml": "tags: {}",
		"b/2001.tgr.yaml": "tags: {}",
	})
	if _, err := Open(root, nil); err == nil {
		t.Error("expected an error for two files with the same address")
	}
}

func TestFileStore_List(t *testing.T) {
	s := openFixture(t)
	got := s.List(KindTGraph)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != 1 || got[0] != 2001 {
		t.Errorf("unexpected tgraphs %v", got)
	}
	if len(s.List(KindFriends)) != 1 || len(s.List(KindIndex)) != 1 {
		t.Error("expected one friend list and one index")
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		addr domain.Addr
		ok   bool
	}{
		{"8028.fr.yaml", KindFriends, 8028, true},
		{"x/y/3001.idx.yaml", KindIndex, 3001, true},
		{"2001.tgr.yaml", KindTGraph, 2001, true},
		{"abc.tgr.yaml", "", 0, false},
		{"2001.txt.yaml", "", 0, false},
		{"config.yaml", "", 0, false},
	}
	for _, tt := range tests {
		key, ok := parseName(tt.in)
		if ok != tt.ok || key.kind != tt.kind || key.addr != tt.addr {
			t.Errorf("parseName(%q) = %+v, %v", tt.in, key, ok)
		}
	}
}
