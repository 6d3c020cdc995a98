package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/config"
	"agentic-rag/internal/models"
)

type fakeEmbedder struct {
	dim int
	err error
}

func (f fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dim), f.err
}

func TestGenerateEmbedding(t *testing.T) {
	chunks := []models.Chunk{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}}

	out, err := GenerateEmbedding(context.Background(), fakeEmbedder{dim: 4}, chunks, 4)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, float32(2), out[1].Embedding[0])
}

func TestGenerateEmbeddingChecksDimension(t *testing.T) {
	chunks := []models.Chunk{{ID: "a", Content: "one"}}

	_, err := GenerateEmbedding(context.Background(), fakeEmbedder{dim: 3}, chunks, 768)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = GenerateEmbedding(context.Background(), fakeEmbedder{dim: 3}, chunks, 0)
	assert.NoError(t, err)
}

func TestGenerateEmbeddingPropagatesErrors(t *testing.T) {
	boom := errors.New("quota")
	_, err := GenerateEmbedding(context.Background(), fakeEmbedder{err: boom}, []models.Chunk{{Content: "x"}}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestGenerateEmbeddingEmpty(t *testing.T) {
	out, err := GenerateEmbedding(context.Background(), fakeEmbedder{dim: 2}, nil, 2)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestNewEmbedderMissingKey(t *testing.T) {
	_, err := NewEmbedder(context.Background(), &config.LLMConfig{Provider: config.ProviderOpenAI}, 10)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}
