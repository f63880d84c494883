package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tagroute/config"
	"tagroute/internal/adapter/cache"
	"tagroute/internal/adapter/filestore"
	"tagroute/internal/adapter/fs"
	"tagroute/internal/adapter/proxy"
	"tagroute/internal/adapter/store"
	"tagroute/internal/port"
)

// dataPath resolves the network directory of a file store against the root.
func dataPath(cfg *config.Config, root string) string {
	if filepath.IsAbs(cfg.Store.Path) {
		return cfg.Store.Path
	}
	return filepath.Join(root, cfg.Store.Path)
}

// boltPath is the database file of a bolt store: store.path when it names a
// file, the data dir otherwise.
func boltPath(cfg *config.Config, root string) string {
	if filepath.Ext(cfg.Store.Path) == ".db" {
		return dataPath(cfg, root)
	}
	return config.StoreDBPath(root)
}

func openFileStore(cfg *config.Config, dir string) (*filestore.FileStore, error) {
	walker := fs.NewWalker(cfg.Store.Includes, cfg.Store.Excludes)
	st, err := filestore.Open(dir, walker)
	if err != nil {
		return nil, fmt.Errorf("failed to open file store: %w", err)
	}
	return st, nil
}

func openBoltStore(cfg *config.Config, root string) (*store.BoltStore, error) {
	path := boltPath(cfg, root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no store found at %s. Run 'tagroute import' first", path)
	}
	st, err := store.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if rebuild, reason, err := st.NeedsRebuild(cfg); err != nil {
		st.Close()
		return nil, err
	} else if rebuild {
		slog.Warn("store is stale, re-run 'tagroute import'", slog.String("reason", reason))
	}
	return st, nil
}

// openStore opens the configured backend behind the probability proxy and,
// when enabled, the query cache.
func openStore(cfg *config.Config, root string) (port.StoreControl, func() error, error) {
	var raw port.RawStore
	closer := func() error { return nil }
	switch cfg.Store.Kind {
	case "bolt":
		st, err := openBoltStore(cfg, root)
		if err != nil {
			return nil, nil, err
		}
		raw, closer = st, st.Close
	default:
		st, err := openFileStore(cfg, dataPath(cfg, root))
		if err != nil {
			return nil, nil, err
		}
		raw = st
	}

	var sc port.StoreControl = proxy.NewProbabilityStore(raw)
	if cfg.Cache.Enabled {
		qc := cache.NewQueryCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		sc = cache.NewCachedStore(sc, qc)
	}
	return sc, closer, nil
}
