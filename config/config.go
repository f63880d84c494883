package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the query engine.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Query   QueryConfig   `yaml:"query"`
	Compose ComposeConfig `yaml:"compose"`
	Scheme  SchemeConfig  `yaml:"scheme"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig selects the backing network.
type StoreConfig struct {
	Kind     string   `yaml:"kind"` // "file" or "bolt"
	Path     string   `yaml:"path"` // data directory (file) or database file (bolt)
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// QueryConfig holds the query environment settings.
type QueryConfig struct {
	PollIntervalMS       int     `yaml:"poll_interval_ms"`
	ParallelIndexLookups int     `yaml:"parallel_index_lookups"`
	Workers              int     `yaml:"workers"`
	SelfScore            float64 `yaml:"self_score"` // weight of the querying identity's own ptable
	Threaded             bool    `yaml:"threaded"`
	MaxSteps             int     `yaml:"max_steps"`
	StepsAfter           int     `yaml:"steps_after"` // steps to keep going after the first results
}

// ComposeConfig holds the alpha values of the composers and the score
// inferer's per-hop decay.
type ComposeConfig struct {
	NodeAlpha   float64 `yaml:"node_alpha"`
	ArcAlpha1   float64 `yaml:"arc_alpha_1"` // arc missing, endpoints unknown
	ArcAlpha2   float64 `yaml:"arc_alpha_2"` // arc missing, both endpoints known
	PTableAlpha float64 `yaml:"ptable_alpha"`
	IndexAlpha1 float64 `yaml:"index_alpha_1"`
	IndexAlpha2 float64 `yaml:"index_alpha_2"`
	Reduce      float64 `yaml:"reduce"`
}

type SchemeConfig struct {
	Metric string `yaml:"metric"` // "probability" or "entropy"
}

// CacheConfig holds the store cache settings.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	Size       int  `yaml:"size"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics listener
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Kind:     "file",
			Path:     ".",
			Includes: []string{"**/*.fr.yaml", "**/*.ptab.yaml", "**/*.tgr.yaml", "**/*.idx.yaml"},
			Excludes: []string{"**/.git/**", "**/.tagroute/**"},
		},
		Query: QueryConfig{
			PollIntervalMS:       1000,
			ParallelIndexLookups: 0x10,
			Workers:              0x40,
			SelfScore:            1,
			Threaded:             true,
			MaxSteps:             256,
			StepsAfter:           4,
		},
		Compose: ComposeConfig{
			NodeAlpha:   0.0625,
			ArcAlpha1:   0.0625,
			ArcAlpha2:   0.5,
			PTableAlpha: 0.0625,
			IndexAlpha1: 0.0625,
			IndexAlpha2: 0.5,
			Reduce:      0.0625,
		},
		Scheme: SchemeConfig{
			Metric: "probability",
		},
		Cache: CacheConfig{
			Enabled:    false,
			Size:       4096,
			TTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for tagroute.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "tagroute.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "file", "bolt":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	switch c.Scheme.Metric {
	case "probability", "entropy":
	default:
		return fmt.Errorf("unknown scheme metric %q", c.Scheme.Metric)
	}

	q := c.Query
	if q.PollIntervalMS != 0 && q.PollIntervalMS < 10 {
		return fmt.Errorf("poll_interval_ms must be 0 or >= 10: %d", q.PollIntervalMS)
	}
	if q.ParallelIndexLookups <= 0 {
		return fmt.Errorf("parallel_index_lookups must be positive: %d", q.ParallelIndexLookups)
	}
	if q.SelfScore < 0 || q.SelfScore > 1 {
		return fmt.Errorf("self_score must be in [0, 1]: %v", q.SelfScore)
	}

	alphas := map[string]float64{
		"node_alpha":    c.Compose.NodeAlpha,
		"arc_alpha_1":   c.Compose.ArcAlpha1,
		"arc_alpha_2":   c.Compose.ArcAlpha2,
		"ptable_alpha":  c.Compose.PTableAlpha,
		"index_alpha_1": c.Compose.IndexAlpha1,
		"index_alpha_2": c.Compose.IndexAlpha2,
	}
	for name, a := range alphas {
		if a < 0 || a > 1 {
			return fmt.Errorf("%s must be in [0, 1]: %v", name, a)
		}
	}
	if c.Compose.Reduce <= 0 || c.Compose.Reduce >= 1 {
		return fmt.Errorf("reduce must be in (0, 1): %v", c.Compose.Reduce)
	}
	return nil
}

// DataDir is the per-project directory holding the config and the bolt store.
const DataDir = ".tagroute"

// StoreDBPath returns the path to the bolt store database.
func StoreDBPath(dir string) string {
	return filepath.Join(dir, DataDir, "store.db")
}

// EnsureDataDir ensures the .tagroute directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDir), 0755)
}
