package compose

import (
	"fmt"
	"math"

	"tagroute/internal/domain"
)

// DefaultReduce is the per-hop decay of an endorsement.
const DefaultReduce = 0.0625

// SPUInferer is the shortest-paths-union score inferer. Each seed endorses
// the subject with its own score decayed by Reduce per hop of its shortest
// path to the subject; the endorsements combine as independent events.
type SPUInferer[N comparable] struct {
	reduce float64
}

func NewSPUInferer[N comparable](reduce float64) (SPUInferer[N], error) {
	if !(reduce > 0 && reduce < 1) {
		return SPUInferer[N]{}, fmt.Errorf("%w: reduce %v not in (0, 1)", domain.ErrDomain, reduce)
	}
	return SPUInferer[N]{reduce: reduce}, nil
}

// InferScore walks incoming arcs backwards from subject until every seed has
// a hop distance, then folds the decayed seed scores with Union.
func (s SPUInferer[N]) InferScore(incoming map[N]domain.Set[N], seeds map[N]domain.Probability, subject N) domain.Probability {
	_, known := incoming[subject]
	if _, seed := seeds[subject]; !known && !seed {
		return domain.MinProbability
	}

	dist := map[N]int{subject: 0}
	queue := []N{subject}
	reached := 0
	if _, ok := seeds[subject]; ok {
		reached++
	}

	for len(queue) > 0 && reached < len(seeds) {
		n := queue[0]
		queue = queue[1:]
		for src := range incoming[n] {
			if _, seen := dist[src]; seen {
				continue
			}
			dist[src] = dist[n] + 1
			if _, ok := seeds[src]; ok {
				reached++
			}
			queue = append(queue, src)
		}
	}

	score := domain.MinProbability
	for seed, w := range seeds {
		d, ok := dist[seed]
		if !ok {
			continue
		}
		decay, err := domain.NewProbability(math.Pow(s.reduce, float64(d)))
		if err != nil {
			continue
		}
		score = score.Union(w.Intersect(decay))
	}
	return score
}
