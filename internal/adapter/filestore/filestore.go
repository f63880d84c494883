// Package filestore reads a network of peers from a directory of YAML files:
//
//	<id>.fr.yaml     friends:  {8032: 0.9}
//	<id>.ptab.yaml   tgraphs:  {2001: 0.5}  indexes: {3001: 0.5}
//	<addr>.tgr.yaml  tags:     {aacs: 0.05} tgraphs: {2002: 0.3}
//	                 arcs:     {aacs: {tags: {...}, tgraphs: {...}}}
//	<addr>.idx.yaml  arcs:     {aacs: {docs: {...}, indexes: {...}}}
package filestore

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"tagroute/internal/adapter/fs"
	"tagroute/internal/domain"
	"tagroute/internal/port"
)

// Kind is the type of a data file, taken from its second extension.
type Kind string

const (
	KindFriends Kind = "fr"
	KindPTable  Kind = "ptab"
	KindTGraph  Kind = "tgr"
	KindIndex   Kind = "idx"
)

// Includes are the globs matching every kind of data file.
var Includes = []string{"**/*.fr.yaml", "**/*.ptab.yaml", "**/*.tgr.yaml", "**/*.idx.yaml"}

func (k Kind) what() string {
	switch k {
	case KindFriends:
		return "friend-list"
	case KindPTable:
		return "ptable"
	case KindTGraph:
		return "tgraph"
	default:
		return "index"
	}
}

type FriendsFile struct {
	Friends map[domain.Addr]float64 `yaml:"friends"`
}

type PTableFile struct {
	TGraphs map[domain.Addr]float64 `yaml:"tgraphs"`
	Indexes map[domain.Addr]float64 `yaml:"indexes"`
}

type TGraphArcsFile struct {
	Tags    map[domain.Tag]float64  `yaml:"tags,omitempty"`
	TGraphs map[domain.Addr]float64 `yaml:"tgraphs,omitempty"`
}

// TGraphFile is one tag-graph: node weights, then arcs keyed by source tag.
type TGraphFile struct {
	Tags    map[domain.Tag]float64        `yaml:"tags"`
	TGraphs map[domain.Addr]float64       `yaml:"tgraphs"`
	Arcs    map[domain.Tag]TGraphArcsFile `yaml:"arcs"`
}

type IndexArcsFile struct {
	Docs    map[domain.Addr]float64 `yaml:"docs,omitempty"`
	Indexes map[domain.Addr]float64 `yaml:"indexes,omitempty"`
}

type IndexFile struct {
	Arcs map[domain.Tag]IndexArcsFile `yaml:"arcs"`
}

type fileKey struct {
	kind Kind
	addr domain.Addr
}

// FileStore is a raw store over a directory of YAML data files. Files are
// discovered once when the store is opened and parsed on every call; put a
// cache in front of it for repeated queries.
type FileStore struct {
	root  string
	mu    sync.RWMutex
	files map[fileKey]string
}

var _ port.RawStore = (*FileStore)(nil)

// Open discovers the data files under root with walker.
func Open(root string, walker port.FileWalker) (*FileStore, error) {
	if walker == nil {
		walker = fs.NewWalker(Includes, nil)
	}
	infos, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	s := &FileStore{root: root, files: make(map[fileKey]string)}
	for _, fi := range infos {
		key, ok := parseName(fi.Path)
		if !ok {
			continue
		}
		if prev, dup := s.files[key]; dup {
			return nil, fmt.Errorf("duplicate %s %d: %s and %s", key.kind.what(), key.addr, prev, fi.Path)
		}
		s.files[key] = fi.Path
	}
	return s, nil
}

// parseName splits "dir/2001.tgr.yaml" into its kind and address.
func parseName(rel string) (fileKey, bool) {
	base := strings.TrimSuffix(path.Base(rel), ".yaml")
	id, kind, ok := strings.Cut(base, ".")
	if !ok {
		return fileKey{}, false
	}
	addr, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fileKey{}, false
	}
	switch k := Kind(kind); k {
	case KindFriends, KindPTable, KindTGraph, KindIndex:
		return fileKey{kind: k, addr: domain.Addr(addr)}, true
	}
	return fileKey{}, false
}

// List returns the addresses that have a file of the given kind.
func (s *FileStore) List(kind Kind) []domain.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Addr
	for k := range s.files {
		if k.kind == kind {
			out = append(out, k.addr)
		}
	}
	return out
}

func (s *FileStore) load(kind Kind, addr domain.Addr, v any) error {
	s.mu.RLock()
	rel, ok := s.files[fileKey{kind: kind, addr: addr}]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s %w for: %d", kind.what(), port.ErrNotAvailable, addr)
	}
	data, err := fs.ReadFile(s.root, rel)
	if err != nil {
		return fmt.Errorf("%s %w for: %d: %w", kind.what(), port.ErrNotAvailable, addr, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s %w for: %d: failed to parse %s: %w", kind.what(), port.ErrNotAvailable, addr, rel, err)
	}
	return nil
}

func (s *FileStore) LoadFriends(id domain.Addr) (FriendsFile, error) {
	var f FriendsFile
	err := s.load(KindFriends, id, &f)
	return f, err
}

func (s *FileStore) LoadPTable(id domain.Addr) (PTableFile, error) {
	var f PTableFile
	err := s.load(KindPTable, id, &f)
	return f, err
}

func (s *FileStore) LoadTGraph(addr domain.Addr) (TGraphFile, error) {
	var f TGraphFile
	err := s.load(KindTGraph, addr, &f)
	return f, err
}

func (s *FileStore) LoadIndex(addr domain.Addr) (IndexFile, error) {
	var f IndexFile
	err := s.load(KindIndex, addr, &f)
	return f, err
}

func (s *FileStore) GetFriends(id domain.Addr) (map[domain.Addr]float64, error) {
	f, err := s.LoadFriends(id)
	if err != nil {
		return nil, err
	}
	if f.Friends == nil {
		return map[domain.Addr]float64{}, nil
	}
	return f.Friends, nil
}

func (s *FileStore) GetPTable(id domain.Addr) (domain.PTable[float64], error) {
	f, err := s.LoadPTable(id)
	if err != nil {
		return domain.PTable[float64]{}, err
	}
	return f.PTable(), nil
}

func (s *FileStore) GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Tag, domain.Addr, float64], error) {
	f, err := s.LoadTGraph(addr)
	if err != nil {
		return domain.SplitMap[domain.Tag, domain.Addr, float64]{}, err
	}
	return f.Outgoing(tag), nil
}

func (s *FileStore) GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (float64, bool, error) {
	f, err := s.LoadTGraph(addr)
	if err != nil {
		return 0, false, err
	}
	w, ok := f.Weight(node)
	return w, ok, nil
}

func (s *FileStore) GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Addr, domain.Addr, float64], error) {
	f, err := s.LoadIndex(addr)
	if err != nil {
		return domain.SplitMap[domain.Addr, domain.Addr, float64]{}, err
	}
	return f.Outgoing(tag), nil
}

func (f PTableFile) PTable() domain.PTable[float64] {
	pt := domain.NewPTable[float64]()
	for k, v := range f.TGraphs {
		pt.TGraphs[k] = v
	}
	for k, v := range f.Indexes {
		pt.Indexes[k] = v
	}
	return pt
}

func (f TGraphFile) Weight(node domain.Node) (float64, bool) {
	if node.Is0() {
		w, ok := f.Tags[node.Must0()]
		return w, ok
	}
	w, ok := f.TGraphs[node.Must1()]
	return w, ok
}

// Outgoing returns the arcs of tag, or a nil map when tag is not a node.
func (f TGraphFile) Outgoing(tag domain.Tag) domain.SplitMap[domain.Tag, domain.Addr, float64] {
	if _, ok := f.Tags[tag]; !ok {
		return domain.SplitMap[domain.Tag, domain.Addr, float64]{}
	}
	out := domain.NodeMap[float64]()
	arcs := f.Arcs[tag]
	for t, w := range arcs.Tags {
		out.M0[t] = w
	}
	for a, w := range arcs.TGraphs {
		out.M1[a] = w
	}
	return out
}

// Outgoing returns the arcs of tag, or a nil map when the index does not
// contain it.
func (f IndexFile) Outgoing(tag domain.Tag) domain.SplitMap[domain.Addr, domain.Addr, float64] {
	arcs, ok := f.Arcs[tag]
	if !ok {
		return domain.SplitMap[domain.Addr, domain.Addr, float64]{}
	}
	out := domain.TargetMap[float64]()
	for d, w := range arcs.Docs {
		out.M0[d] = w
	}
	for h, w := range arcs.Indexes {
		out.M1[h] = w
	}
	return out
}
