package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"tagroute/config"
	"tagroute/internal/compose"
	"tagroute/internal/domain"
	"tagroute/internal/exec"
	"tagroute/internal/port"
	"tagroute/internal/scheme"
	"tagroute/internal/view"
)

// Options are the tunables of a query environment.
type Options struct {
	PollInterval         time.Duration
	ParallelIndexLookups int
	SelfScore            domain.Probability
	Threaded             bool
	Compose              config.ComposeConfig
	Metric               string
}

// DefaultOptions mirrors config.DefaultConfig.
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(config.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return opts
}

// OptionsFromConfig validates cfg and extracts the query options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid config: %w", err)
	}
	self, err := domain.NewProbability(cfg.Query.SelfScore)
	if err != nil {
		return Options{}, fmt.Errorf("invalid self_score: %w", err)
	}
	return Options{
		PollInterval:         time.Duration(cfg.Query.PollIntervalMS) * time.Millisecond,
		ParallelIndexLookups: cfg.Query.ParallelIndexLookups,
		SelfScore:            self,
		Threaded:             cfg.Query.Threaded,
		Compose:              cfg.Compose,
		Metric:               cfg.Scheme.Metric,
	}, nil
}

// Environment is what every query process shares: the store, the worker
// pool and the tunables.
type Environment struct {
	store   port.StoreControl
	pool    *exec.Pool
	opts    Options
	log     *slog.Logger
	inferer compose.SPUInferer[domain.Addr]
}

// NewEnvironment creates a query environment.
func NewEnvironment(store port.StoreControl, pool *exec.Pool, opts Options, log *slog.Logger) (*Environment, error) {
	if log == nil {
		log = slog.Default()
	}
	if pool == nil {
		pool = exec.NewPool(exec.DefaultWorkers)
	}
	if opts.ParallelIndexLookups <= 0 {
		return nil, fmt.Errorf("parallel index lookups must be positive: %d", opts.ParallelIndexLookups)
	}
	inferer, err := compose.NewSPUInferer[domain.Addr](opts.Compose.Reduce)
	if err != nil {
		return nil, fmt.Errorf("failed to create score inferer: %w", err)
	}
	return &Environment{
		store:   store,
		pool:    pool,
		opts:    opts,
		log:     log,
		inferer: inferer,
	}, nil
}

func (e *Environment) Store() port.StoreControl { return e.store }

func (e *Environment) Options() Options { return e.opts }

// TrustedIDs returns the friends of id with their trust, plus id itself at
// the self score.
func (e *Environment) TrustedIDs(id domain.Addr) (map[domain.Addr]domain.Probability, error) {
	friends, err := e.store.GetFriends(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get friends: %w", err)
	}
	ids := make(map[domain.Addr]domain.Probability, len(friends)+1)
	for f, w := range friends {
		ids[f] = w
	}
	ids[id] = e.opts.SelfScore
	return ids, nil
}

// schemeBuilder returns the address-scheme builder for the configured metric.
func (e *Environment) schemeBuilder() func(*view.FullTGraph, domain.Tag) (*scheme.Scheme, error) {
	if e.opts.Metric == "entropy" {
		return scheme.NewBuilder[domain.Entropy](scheme.EntropyMetric{}).Build
	}
	return scheme.NewBuilder[domain.Probability](scheme.NewProbabilityMetric(e.log)).Build
}

func newTasks[K comparable, V any](e *Environment, name string) exec.TaskService[K, V] {
	if e.opts.Threaded {
		return exec.NewService[K, V](name, e.pool)
	}
	return exec.NewUnthreaded[K, V](name)
}

func (e *Environment) newTGraphSources() *view.DataSources[*view.LocalTGraph] {
	return view.NewDataSources(view.NewLocalTGraph, e.inferer)
}

func (e *Environment) newIndexSources() *view.DataSources[*view.LocalIndex] {
	return view.NewDataSources(view.NewLocalIndex, e.inferer)
}
