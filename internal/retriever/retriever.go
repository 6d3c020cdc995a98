package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"agentic-rag/internal/models"
)

var (
	ErrNoIndex = errors.New("no vector index available: run ingestion first")
	// ErrBackendUnavailable means a backend is not configured and should be skipped.
	ErrBackendUnavailable = errors.New("vector backend unavailable")
)

const (
	DefaultK      = 3
	DefaultFetchK = 10
	DefaultLambda = 0.5
)

// Index is a vector store that can be searched by embedding.
type Index interface {
	Name() string
	Search(ctx context.Context, query []float32, fetchK int) ([]models.Candidate, error)
}

// QueryEmbedder turns a question into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Backend is one step of the selection chain.
type Backend struct {
	Name string
	Open func(ctx context.Context) (Index, error)
}

type Options struct {
	K      int
	FetchK int
	Lambda float64
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = DefaultK
	}
	if o.FetchK < o.K {
		o.FetchK = max(DefaultFetchK, o.K)
	}
	if o.Lambda < 0 || o.Lambda > 1 {
		o.Lambda = DefaultLambda
	}
	return o
}

// Retriever is bound to exactly one Index for its lifetime.
type Retriever struct {
	index    Index
	embedder QueryEmbedder
	opts     Options
}

func New(index Index, embedder QueryEmbedder, opts Options) *Retriever {
	return &Retriever{index: index, embedder: embedder, opts: opts.withDefaults()}
}

// Open tries each backend in order and binds the first one that opens.
func Open(ctx context.Context, backends []Backend, embedder QueryEmbedder, opts Options) (*Retriever, error) {
	for _, b := range backends {
		idx, err := b.Open(ctx)
		switch {
		case err == nil:
			log.Info().Str("backend", b.Name).Msg("Using vector index")
			return New(idx, embedder, opts), nil
		case errors.Is(err, ErrBackendUnavailable):
			log.Debug().Str("backend", b.Name).Err(err).Msg("Backend not configured, skipping")
		default:
			log.Warn().Str("backend", b.Name).Err(err).Msg("Backend failed, trying next")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrNoIndex
}

func (r *Retriever) Backend() string { return r.index.Name() }

// Retrieve embeds the question, fetches FetchK nearest chunks and keeps K
// of them by maximal marginal relevance.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]models.Chunk, error) {
	query, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	cands, err := r.index.Search(ctx, query, r.opts.FetchK)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", r.index.Name(), err)
	}

	picked := MaxMarginalRelevance(query, cands, r.opts.K, r.opts.Lambda)
	log.Debug().Str("backend", r.index.Name()).Int("candidates", len(cands)).Int("selected", len(picked)).Msg("Retrieved context")

	chunks := make([]models.Chunk, len(picked))
	for i, c := range picked {
		chunks[i] = c.Chunk
	}
	return chunks, nil
}

// Close releases the bound index if it holds a connection.
func (r *Retriever) Close() error {
	if c, ok := r.index.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
