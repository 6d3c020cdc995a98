package retriever

import (
	"context"
	"errors"
	"fmt"

	"agentic-rag/internal/chromemdb"
	"agentic-rag/internal/config"
	"agentic-rag/internal/db"
)

// DefaultBackends is the selection order: hosted first, local second.
func DefaultBackends(cfg *config.Config) []Backend {
	return []Backend{HostedBackend(cfg), LocalBackend(cfg)}
}

// HostedBackend opens the Supabase pgvector index when a credential is set
// and the named table exists and holds rows.
func HostedBackend(cfg *config.Config) Backend {
	return Backend{
		Name: "supabase",
		Open: func(ctx context.Context) (Index, error) {
			if !cfg.HostedEnabled() {
				return nil, fmt.Errorf("%w: SUPABASE_KEY not set", ErrBackendUnavailable)
			}
			store, err := db.Open(ctx, cfg.Database, cfg.RAG.EmbeddingDim)
			if err != nil {
				return nil, err
			}
			if err := checkHosted(ctx, store); err != nil {
				_ = store.Close()
				return nil, err
			}
			return store, nil
		},
	}
}

type hostedTable interface {
	Table() string
	IndexExists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// checkHosted binds the hosted index only when its table exists and holds
// rows. An empty table is skipped like a missing backend.
func checkHosted(ctx context.Context, t hostedTable) error {
	exists, err := t.IndexExists(ctx, t.Table())
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", t.Table(), err)
	}
	if !exists {
		return fmt.Errorf("hosted index %s does not exist", t.Table())
	}
	n, err := t.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count index %s: %w", t.Table(), err)
	}
	if n == 0 {
		return fmt.Errorf("%w: hosted index %s is empty", ErrBackendUnavailable, t.Table())
	}
	return nil
}

// LocalBackend opens the chromem index on disk.
func LocalBackend(cfg *config.Config) Backend {
	return Backend{
		Name: "chromem",
		Open: func(_ context.Context) (Index, error) {
			m, err := chromemdb.Open(chromemdb.OptionsFromConfig(cfg.Local))
			if errors.Is(err, chromemdb.ErrIndexNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}
