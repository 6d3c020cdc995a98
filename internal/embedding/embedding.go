package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"agentic-rag/internal/config"
	"agentic-rag/internal/db"
	"agentic-rag/internal/llmservice"
	"agentic-rag/internal/models"
)

// ErrDimensionMismatch is returned when a provider yields vectors of the
// wrong size for the configured index.
var ErrDimensionMismatch = db.ErrDimensionMismatch

// NewEmbedder creates a batching langchaingo embedder for the configured provider.
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	client, err := llmservice.NewEmbeddingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbedding embeds every chunk in one batched call and checks each
// vector has dim dimensions. dim <= 0 disables the check.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, dim int) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	out := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		if dim > 0 && len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: chunk %s has %d, want %d", ErrDimensionMismatch, chunk.ID, len(vectors[i]), dim)
		}
		out[i] = models.ChunkEmbedding{Chunk: chunk, Embedding: vectors[i]}
	}
	log.Debug().Int("chunks", len(out)).Msg("Generated embeddings")
	return out, nil
}
