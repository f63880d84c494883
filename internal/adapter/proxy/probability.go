// Package proxy turns a raw float store into one the query engine can use.
package proxy

import (
	"fmt"

	"tagroute/internal/domain"
	"tagroute/internal/port"
)

// ProbabilityStore validates every weight handed out by a raw store. A
// weight outside [0, 1] fails the whole call, the same way unreadable data
// does, so the engine treats the remote structure as unavailable.
type ProbabilityStore struct {
	raw port.RawStore
}

var _ port.StoreControl = (*ProbabilityStore)(nil)

func NewProbabilityStore(raw port.RawStore) *ProbabilityStore {
	return &ProbabilityStore{raw: raw}
}

func convertMap[K comparable](what string, id domain.Addr, in map[K]float64) (map[K]domain.Probability, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[K]domain.Probability, len(in))
	for k, v := range in {
		p, err := domain.NewProbability(v)
		if err != nil {
			return nil, fmt.Errorf("%s %w for: %d: weight of %v: %w", what, port.ErrNotAvailable, id, k, err)
		}
		out[k] = p
	}
	return out, nil
}

func convertSplit[K0, K1 comparable](what string, id domain.Addr, in domain.SplitMap[K0, K1, float64]) (domain.SplitMap[K0, K1, domain.Probability], error) {
	if in.IsNil() {
		return domain.SplitMap[K0, K1, domain.Probability]{}, nil
	}
	m0, err := convertMap(what, id, in.M0)
	if err != nil {
		return domain.SplitMap[K0, K1, domain.Probability]{}, err
	}
	m1, err := convertMap(what, id, in.M1)
	if err != nil {
		return domain.SplitMap[K0, K1, domain.Probability]{}, err
	}
	if m0 == nil {
		m0 = make(map[K0]domain.Probability)
	}
	if m1 == nil {
		m1 = make(map[K1]domain.Probability)
	}
	return domain.SplitMap[K0, K1, domain.Probability]{M0: m0, M1: m1}, nil
}

func (s *ProbabilityStore) GetFriends(id domain.Addr) (map[domain.Addr]domain.Probability, error) {
	raw, err := s.raw.GetFriends(id)
	if err != nil {
		return nil, err
	}
	out, err := convertMap("friend-list", id, raw)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[domain.Addr]domain.Probability)
	}
	return out, nil
}

func (s *ProbabilityStore) GetPTable(id domain.Addr) (domain.PTable[domain.Probability], error) {
	raw, err := s.raw.GetPTable(id)
	if err != nil {
		return domain.PTable[domain.Probability]{}, err
	}
	out := domain.NewPTable[domain.Probability]()
	g, err := convertMap("ptable", id, raw.TGraphs)
	if err != nil {
		return out, err
	}
	h, err := convertMap("ptable", id, raw.Indexes)
	if err != nil {
		return out, err
	}
	for k, v := range g {
		out.TGraphs[k] = v
	}
	for k, v := range h {
		out.Indexes[k] = v
	}
	return out, nil
}

func (s *ProbabilityStore) GetTGraphOutgoing(addr domain.Addr, tag domain.Tag) (domain.TGraphArcs, error) {
	raw, err := s.raw.GetTGraphOutgoing(addr, tag)
	if err != nil {
		return domain.TGraphArcs{}, err
	}
	return convertSplit("tgraph", addr, raw)
}

func (s *ProbabilityStore) GetTGraphNodeAttr(addr domain.Addr, node domain.Node) (domain.Probability, bool, error) {
	raw, ok, err := s.raw.GetTGraphNodeAttr(addr, node)
	if err != nil || !ok {
		return domain.Probability{}, ok, err
	}
	p, err := domain.NewProbability(raw)
	if err != nil {
		return domain.Probability{}, false, fmt.Errorf("tgraph %w for: %d: weight of %v: %w", port.ErrNotAvailable, addr, node, err)
	}
	return p, true, nil
}

func (s *ProbabilityStore) GetIndexOutgoing(addr domain.Addr, tag domain.Tag) (domain.IndexArcs, error) {
	raw, err := s.raw.GetIndexOutgoing(addr, tag)
	if err != nil {
		return domain.IndexArcs{}, err
	}
	return convertSplit("index", addr, raw)
}
