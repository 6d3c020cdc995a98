package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	SourceFilename string `json:"source_filename"`
	PageNumber     int    `json:"page_number"`
	ChunkID        int    `json:"chunk_id"`
}

// ChunkEmbedding is a chunk paired with its embedding vector, the unit
// written to a vector index.
type ChunkEmbedding struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// Candidate is a nearest-neighbour hit returned by a vector index. The
// stored embedding is kept so results can be re-ranked.
type Candidate struct {
	Chunk
	Embedding  []float32
	Similarity float32
}
