package main

import (
	"fmt"

	"github.com/jeanpaul/recall/internal/config"
	"github.com/jeanpaul/recall/internal/knowledge"
)

// backend is a store that can be read by the engine and written by the
// learn and import commands.
type backend interface {
	knowledge.Store
	knowledge.Writer
}

// openStore opens the configured store. The returned close function
// persists changes when persist is set.
func openStore(cfg *config.Config, persist bool) (backend, func() error, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := knowledge.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendMemory:
		s, err := knowledge.NewMemoryStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error { return nil }
		if persist {
			closeFn = s.Save
		}
		return s, closeFn, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
