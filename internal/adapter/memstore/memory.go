package memstore

import (
	"fmt"
	"sync"

	"tagroute/internal/domain"
	"tagroute/internal/port"
)

type tgraph[S any] struct {
	nodes map[domain.Node]S
	arcs  map[domain.Tag]domain.SplitMap[domain.Tag, domain.Addr, S]
}

// MemoryStore is an in-memory network of peers, tag-graphs and indexes.
// S is the weight type it hands out: float64 for a raw store, Probability
// for one the engine can use directly.
type MemoryStore[S any] struct {
	mu      sync.RWMutex
	friends map[domain.Addr]map[domain.Addr]S
	ptables map[domain.Addr]domain.PTable[S]
	tgraphs map[domain.Addr]*tgraph[S]
	indexes map[domain.Addr]map[domain.Tag]domain.SplitMap[domain.Addr, domain.Addr, S]
}

var (
	_ port.RawStore     = (*MemoryStore[float64])(nil)
	_ port.StoreControl = (*MemoryStore[domain.Probability])(nil)
)

func NewMemoryStore[S any]() *MemoryStore[S] {
	return &MemoryStore[S]{
		friends: make(map[domain.Addr]map[domain.Addr]S),
		ptables: make(map[domain.Addr]domain.PTable[S]),
		tgraphs: make(map[domain.Addr]*tgraph[S]),
		indexes: make(map[domain.Addr]map[domain.Tag]domain.SplitMap[domain.Addr, domain.Addr, S]),
	}
}

func (s *MemoryStore[S]) PutFriend(id, friend domain.Addr, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.friends[id]
	if !ok {
		m = make(map[domain.Addr]S)
		s.friends[id] = m
	}
	m[friend] = w
}

func (s *MemoryStore[S]) ptable(id domain.Addr) domain.PTable[S] {
	pt, ok := s.ptables[id]
	if !ok {
		pt = domain.NewPTable[S]()
		s.ptables[id] = pt
	}
	return pt
}

// PutPTableTGraph records that id recommends the tag-graph at addr.
func (s *MemoryStore[S]) PutPTableTGraph(id, addr domain.Addr, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptable(id).TGraphs[addr] = w
}

// PutPTableIndex records that id recommends the index at addr.
func (s *MemoryStore[S]) PutPTableIndex(id, addr domain.Addr, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptable(id).Indexes[addr] = w
}

func (s *MemoryStore[S]) tgraph(addr domain.Addr) *tgraph[S] {
	g, ok := s.tgraphs[addr]
	if !ok {
		g = &tgraph[S]{
			nodes: make(map[domain.Node]S),
			arcs:  make(map[domain.Tag]domain.SplitMap[domain.Tag, domain.Addr, S]),
		}
		s.tgraphs[addr] = g
	}
	return g
}

// PutTGraphNode sets the weight of a node in the tag-graph at addr.
func (s *MemoryStore[S]) PutTGraphNode(addr domain.Addr, node domain.Node, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tgraph(addr).nodes[node] = w
}

// PutTGraphArc adds src -> dst to the tag-graph at addr. Endpoints are not
// checked, so tests can build inconsistent tag-graphs.
func (s *MemoryStore[S]) PutTGraphArc(addr domain.Addr, src domain.Tag, dst domain.Node, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.tgraph(addr)
	out, ok := g.arcs[src]
	if !ok {
		out = domain.NodeMap[S]()
		g.arcs[src] = out
	}
	out.Put(dst, w)
}

// PutIndexArc adds tag -> dst to the index at addr.
func (s *MemoryStore[S]) PutIndexArc(addr domain.Addr, tag domain.Tag, dst domain.Target, w S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[addr]
	if !ok {
		idx = make(map[domain.Tag]domain.SplitMap[domain.Addr, domain.Addr, S])
		s.indexes[addr] = idx
	}
	out, ok := idx[tag]
	if !ok {
		out = domain.TargetMap[S]()
		idx[tag] = out
	}
	out.Put(dst, w)
}

// PutIndex registers an index at addr with no arcs yet.
func (s *MemoryStore[S]) PutIndex(addr domain.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[addr]; !ok {
		s.indexes[addr] = make(map[domain.Tag]domain.SplitMap[domain.Addr, domain.Addr, S])
	}
}

func (s *MemoryStore[S]) GetFriends(id domain.Addr) (map[domain.Addr]S, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.friends[id]
	if !ok {
		return nil, fmt.Errorf("friend-list %w for: %d", port.ErrNotAvailable, id)
	}
	out := make(map[domain.Addr]S, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore[S]) GetPTable(id domain.Addr) (domain.PTable[S], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt, ok := s.ptables[id]
	if !ok {
		return domain.PTable[S]{}, fmt.Errorf("ptable %w for: %d", port.ErrNotAvailable, id)
	}
	out := domain.NewPTable[S]()
	for k, v := range pt.TGraphs {
		out.TGraphs[k] = v
	}
	for k, v := range pt.Indexes {
		out.Indexes[k] = v
	}
	return out, nil
}

func (s *MemoryStore[S]) GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Tag, domain.Addr, S], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.tgraphs[addr]
	if !ok {
		return domain.SplitMap[domain.Tag, domain.Addr, S]{}, fmt.Errorf("tgraph %w for: %d", port.ErrNotAvailable, addr)
	}
	if _, ok := g.nodes[domain.TagNode(tag)]; !ok {
		return domain.SplitMap[domain.Tag, domain.Addr, S]{}, nil
	}
	out, ok := g.arcs[tag]
	if !ok {
		return domain.NodeMap[S](), nil
	}
	return out.Clone(), nil
}

func (s *MemoryStore[S]) GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (S, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero S
	g, ok := s.tgraphs[addr]
	if !ok {
		return zero, false, fmt.Errorf("tgraph %w for: %d", port.ErrNotAvailable, addr)
	}
	w, ok := g.nodes[node]
	return w, ok, nil
}

func (s *MemoryStore[S]) GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.SplitMap[domain.Addr, domain.Addr, S], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[addr]
	if !ok {
		return domain.SplitMap[domain.Addr, domain.Addr, S]{}, fmt.Errorf("index %w for: %d", port.ErrNotAvailable, addr)
	}
	out, ok := idx[tag]
	if !ok {
		return domain.SplitMap[domain.Addr, domain.Addr, S]{}, nil
	}
	return out.Clone(), nil
}
