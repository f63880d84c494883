package scheme

import (
	"log/slog"

	"tagroute/internal/domain"
)

// ProbabilityMetric measures distance as the probability of reaching a node
// from the seed. Higher is nearer.
type ProbabilityMetric struct {
	log *slog.Logger
}

func NewProbabilityMetric(log *slog.Logger) ProbabilityMetric {
	if log == nil {
		log = slog.Default()
	}
	return ProbabilityMetric{log: log}
}

func (ProbabilityMetric) Identity() domain.Probability { return domain.MaxProbability }

func (ProbabilityMetric) Infinity() domain.Probability { return domain.MinProbability }

// Distance is P(dst|src) from the arc weight P(src|dst) and both node
// weights.
func (m ProbabilityMetric) Distance(srcw, dstw, arcw domain.Probability) domain.Probability {
	d, err := srcw.ConditionalInverse(arcw, dstw)
	if err != nil {
		m.log.Warn("inconsistent arc weights, assuming certain",
			slog.String("src", srcw.String()),
			slog.String("dst", dstw.String()),
			slog.String("arc", arcw.String()),
			slog.Any("error", err),
		)
		return domain.MaxProbability
	}
	return d
}

func (ProbabilityMetric) Combine(a, b domain.Probability) domain.Probability {
	return a.Intersect(b)
}

func (ProbabilityMetric) Compare(a, b domain.Probability) int {
	return b.Compare(a)
}

// AttrFromDistance turns P(subject|seed) back into P(seed|subject).
func (m ProbabilityMetric) AttrFromDistance(seedw, subjw, d domain.Probability) domain.Probability {
	a, err := subjw.ConditionalInverse(d, seedw)
	if err != nil {
		m.log.Warn("inconsistent distance, assuming certain",
			slog.String("seed", seedw.String()),
			slog.String("subject", subjw.String()),
			slog.String("distance", d.String()),
			slog.Any("error", err),
		)
		return domain.MaxProbability
	}
	return a
}

// EntropyMetric measures distance in bits. Lower is nearer.
type EntropyMetric struct{}

func (EntropyMetric) Identity() domain.Entropy { return domain.MinEntropy }

func (EntropyMetric) Infinity() domain.Entropy { return domain.MaxEntropy }

func (EntropyMetric) Distance(_, dstw, arcw domain.Probability) domain.Entropy {
	return dstw.Intersect(arcw).Entropy()
}

func (EntropyMetric) Combine(a, b domain.Entropy) domain.Entropy {
	return a.Intersect(b)
}

func (EntropyMetric) Compare(a, b domain.Entropy) int {
	return a.Compare(b)
}

func (EntropyMetric) AttrFromDistance(_, _ domain.Probability, d domain.Entropy) domain.Probability {
	return d.Probability()
}
