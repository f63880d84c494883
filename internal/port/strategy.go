package port

import "tagroute/internal/domain"

// ScoreInferer infers an endorsement score for subject from a handful of
// seed scores over an incoming-neighbour graph.
type ScoreInferer[N comparable] interface {
	InferScore(incoming map[N]domain.Set[N], seeds map[N]domain.Probability, subject N) domain.Probability
}

// LookupScorer ranks index lookups and scores the results they produce.
type LookupScorer interface {
	// LookupScore is the priority of looking up a tag in an index.
	LookupScore(indexScore, tagAttr domain.Probability) domain.Probability

	// ResultAttr is the relevance of an index arc target reached through tag.
	ResultAttr(tagAttr, arcWeight domain.Probability) domain.Probability
}

// DistanceMetric drives the address-scheme builder. Compare(a, b) < 0 means
// a is nearer to the seed than b.
type DistanceMetric[D any] interface {
	Identity() D
	Infinity() D
	Distance(srcWeight, dstWeight, arcWeight domain.Probability) D
	Combine(a, b D) D
	Compare(a, b D) int
	AttrFromDistance(seedWeight, subjectWeight domain.Probability, d D) domain.Probability
}
