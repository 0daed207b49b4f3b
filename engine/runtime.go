package engine

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/witbind/errors"
)

// Config holds configuration for runtime creation.
type Config struct {
	// MemoryLimitPages caps each instance's memory in 64KiB pages.
	// 0 keeps wazero's default.
	MemoryLimitPages uint32

	// CacheDir persists compiled modules across processes when set.
	CacheDir string
}

// Runtime compiles and instantiates modules. Each instance gets its own
// wazero runtime so host modules named after an interface never collide;
// compiled code is shared through one compilation cache.
type Runtime struct {
	cfg   Config
	cache wazero.CompilationCache
}

// NewRuntime creates a runtime. cfg may be nil.
func NewRuntime(cfg *Config) (*Runtime, error) {
	r := &Runtime{}
	if cfg != nil {
		r.cfg = *cfg
	}
	if r.cfg.CacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(r.cfg.CacheDir)
		if err != nil {
			return nil, errors.Load("open compilation cache", err)
		}
		r.cache = cache
	} else {
		r.cache = wazero.NewCompilationCache()
	}
	return r, nil
}

func (r *Runtime) newWazero(ctx context.Context) wazero.Runtime {
	rc := wazero.NewRuntimeConfig().
		WithCompilationCache(r.cache).
		WithCloseOnContextDone(true)
	if r.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(r.cfg.MemoryLimitPages)
	}
	return wazero.NewRuntimeWithConfig(ctx, rc)
}

// Close releases the compilation cache. Instances must be closed first.
func (r *Runtime) Close(ctx context.Context) error {
	return r.cache.Close(ctx)
}
