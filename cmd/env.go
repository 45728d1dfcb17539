package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/wellsight/ddr-engine/internal/engine"
	"github.com/wellsight/ddr-engine/internal/store"
	"github.com/wellsight/ddr-engine/pkg/llm"
)

// engineEnv holds the initialized store and engine shared by the
// ingest/batch/ask/serve commands.
type engineEnv struct {
	Store  store.Store
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (ee *engineEnv) Close() {
	if ee.Store != nil {
		_ = ee.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ddr.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, runs migrations, and builds the Engine.
// Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := llm.New(cfg.LLM)
	return &engineEnv{
		Store:  st,
		Engine: engine.New(st, client, cfg),
	}, nil
}
