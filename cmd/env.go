package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/pipeline"
	"github.com/brandlens/visibility/internal/provider"
	"github.com/brandlens/visibility/internal/store"
)

// pipelineEnv holds the store, provider registry, and pipeline needed by the
// run/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Registry *provider.Registry
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "brandlens.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, provider registry, and pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry := provider.NewRegistry(cfg)
	if len(registry.Names()) == 0 {
		zap.L().Warn("no providers configured, set at least one API key (BRANDLENS_OPENAI_KEY, ...)")
	} else {
		zap.L().Info("providers configured", zap.Strings("providers", registry.Names()))
	}

	return &pipelineEnv{
		Store:    st,
		Registry: registry,
		Pipeline: pipeline.New(cfg, st, pipeline.FromRegistry(registry)),
	}, nil
}
