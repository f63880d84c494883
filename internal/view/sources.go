package view

import (
	"fmt"

	"tagroute/internal/domain"
	"tagroute/internal/port"
)

// DataSources correlates the local views of remote sources of one kind
// (tag-graphs or indexes). A remote address becomes known the first time a
// source points at it or it is named as a seed, and in use once UseSource
// gives it a local view. Scores are recomputed in batch by CalculateScores.
type DataSources[L any] struct {
	outgoing map[domain.Addr]domain.Set[domain.Addr]
	incoming map[domain.Addr]domain.Set[domain.Addr]
	local    map[domain.Addr]L
	scores   map[domain.Addr]domain.Probability
	seeds    map[domain.Addr]domain.Probability
	order    []domain.Addr

	newView func() L
	inferer port.ScoreInferer[domain.Addr]
}

func NewDataSources[L any](newView func() L, inferer port.ScoreInferer[domain.Addr]) *DataSources[L] {
	return &DataSources[L]{
		outgoing: make(map[domain.Addr]domain.Set[domain.Addr]),
		incoming: make(map[domain.Addr]domain.Set[domain.Addr]),
		local:    make(map[domain.Addr]L),
		scores:   make(map[domain.Addr]domain.Probability),
		seeds:    make(map[domain.Addr]domain.Probability),
		newView:  newView,
		inferer:  inferer,
	}
}

func (s *DataSources[L]) ensure(addr domain.Addr) {
	if _, ok := s.outgoing[addr]; ok {
		return
	}
	s.outgoing[addr] = domain.NewSet[domain.Addr]()
	s.incoming[addr] = domain.NewSet[domain.Addr]()
}

// SetSeeds replaces the seed scores. Seeds become known addresses.
func (s *DataSources[L]) SetSeeds(seeds map[domain.Addr]domain.Probability) {
	s.seeds = make(map[domain.Addr]domain.Probability, len(seeds))
	for addr, score := range seeds {
		s.seeds[addr] = score
		s.ensure(addr)
	}
}

// SetOutgoing records that src points at dsts.
func (s *DataSources[L]) SetOutgoing(src domain.Addr, dsts ...domain.Addr) {
	s.ensure(src)
	out := s.outgoing[src]
	for _, dst := range dsts {
		out.Add(dst)
		s.ensure(dst)
		s.incoming[dst].Add(src)
	}
}

// UseSource creates the local view of a known address.
func (s *DataSources[L]) UseSource(addr domain.Addr) (L, error) {
	var zero L
	if _, ok := s.outgoing[addr]; !ok {
		return zero, fmt.Errorf("%w: %d", ErrUnknownSource, addr)
	}
	if _, ok := s.local[addr]; ok {
		return zero, fmt.Errorf("%w: source %d already in use", ErrAlreadyLoaded, addr)
	}
	v := s.newView()
	s.local[addr] = v
	s.order = append(s.order, addr)
	return v, nil
}

// CalculateScores replaces the score of every source in use.
func (s *DataSources[L]) CalculateScores() {
	scores := make(map[domain.Addr]domain.Probability, len(s.local))
	for addr := range s.local {
		scores[addr] = s.inferer.InferScore(s.incoming, s.seeds, addr)
	}
	s.scores = scores
}

// Score infers the score of any address, in use or not. Sources in use
// return their last calculated score.
func (s *DataSources[L]) Score(addr domain.Addr) domain.Probability {
	if sc, ok := s.scores[addr]; ok {
		return sc
	}
	return s.inferer.InferScore(s.incoming, s.seeds, addr)
}

func (s *DataSources[L]) Local(addr domain.Addr) (L, bool) {
	v, ok := s.local[addr]
	return v, ok
}

// InUse returns the addresses with a local view in activation order.
func (s *DataSources[L]) InUse() []domain.Addr {
	return append([]domain.Addr(nil), s.order...)
}

func (s *DataSources[L]) IsInUse(addr domain.Addr) bool {
	_, ok := s.local[addr]
	return ok
}

func (s *DataSources[L]) Known(addr domain.Addr) bool {
	_, ok := s.outgoing[addr]
	return ok
}

func (s *DataSources[L]) Incoming(addr domain.Addr) domain.Set[domain.Addr] {
	return s.incoming[addr]
}

func (s *DataSources[L]) Outgoing(addr domain.Addr) domain.Set[domain.Addr] {
	return s.outgoing[addr]
}

func (s *DataSources[L]) Scores() map[domain.Addr]domain.Probability {
	return s.scores
}

func (s *DataSources[L]) Seeds() map[domain.Addr]domain.Probability {
	return s.seeds
}
