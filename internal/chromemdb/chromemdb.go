package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"agentic-rag/internal/config"
	"agentic-rag/internal/helper"
	"agentic-rag/internal/models"
)

// ErrIndexNotFound is returned by Open when no usable local index exists.
var ErrIndexNotFound = errors.New("local vector index not found")

const (
	metaSource  = "source"
	metaPage    = "page"
	metaChunkID = "chunk_id"
	// chromem stores unit vectors; the original length is kept here
	metaNorm = "norm"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// Options configure where the local index lives and how it is snapshotted.
type Options struct {
	Path          string
	Collection    string
	Compress      bool
	EncryptionKey string
}

func OptionsFromConfig(c config.LocalIndexConfig) Options {
	return Options{
		Path:          c.Path,
		Collection:    c.Collection,
		Compress:      c.Compress,
		EncryptionKey: c.EncryptionKey,
	}
}

// SnapshotPath is where the encrypted export of the index is written.
func (o Options) SnapshotPath() string {
	return filepath.Clean(o.Path) + ".chromem"
}

// Rebuild deletes any index at opts.Path and returns an empty persistent
// one. Ingestion always starts here; the local index is never updated
// incrementally.
func Rebuild(opts Options) (*VectorDBManager, error) {
	if err := os.RemoveAll(opts.Path); err != nil {
		return nil, fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := helper.CreateFolder(opts.Path); err != nil {
		return nil, err
	}
	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	m := newManager(db, opts)
	if _, err := m.GetOrCreateCollection(opts.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// Open loads the persisted index. When the directory is gone but an
// encrypted snapshot and key are available, the snapshot is imported into
// memory instead.
func Open(opts Options) (*VectorDBManager, error) {
	if _, err := os.Stat(opts.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return openSnapshot(opts)
		}
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to load database: %w", err)
	}
	return bindExisting(db, opts)
}

func openSnapshot(opts Options) (*VectorDBManager, error) {
	snapshot := opts.SnapshotPath()
	if opts.EncryptionKey == "" {
		return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, opts.Path)
	}
	if _, err := os.Stat(snapshot); err != nil {
		return nil, fmt.Errorf("%w at %s", ErrIndexNotFound, opts.Path)
	}

	m := newManager(chromem.NewDB(), opts)
	if err := m.Import(); err != nil {
		return nil, err
	}
	log.Info().Str("snapshot", snapshot).Msg("Restored local index from snapshot")
	return bindExisting(m.db, opts)
}

func bindExisting(db *chromem.DB, opts Options) (*VectorDBManager, error) {
	m := newManager(db, opts)
	c := db.GetCollection(opts.Collection, precomputedOnly)
	if c == nil || c.Count() == 0 {
		return nil, fmt.Errorf("%w: collection %q is empty", ErrIndexNotFound, opts.Collection)
	}
	m.collection = c
	return m, nil
}

func newManager(db *chromem.DB, opts Options) *VectorDBManager {
	return &VectorDBManager{
		db:            db,
		dbPath:        opts.Path,
		compress:      opts.Compress,
		encryptionKey: opts.EncryptionKey,
		filePath:      opts.SnapshotPath(),
	}
}

// precomputedOnly is installed as the collection's embedding function:
// every document and query arrives with its vector already computed.
func precomputedOnly(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be computed before reaching the index")
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return c, nil
}

// Upsert adds all chunk embeddings in a single batch.
func (m *VectorDBManager) Upsert(ctx context.Context, items []models.ChunkEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(items))
	for i, it := range items {
		docs[i] = chromem.Document{
			ID:        it.ID,
			Content:   it.Content,
			Metadata:  createMetadata(it.Chunk, it.Embedding),
			Embedding: it.Embedding,
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("documents", len(docs)).Str("path", m.dbPath).Msg("Stored documents in local index")
	return nil
}

// Search returns up to fetchK nearest candidates with their stored vectors.
func (m *VectorDBManager) Search(ctx context.Context, query []float32, fetchK int) ([]models.Candidate, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	n := min(fetchK, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.Candidate, len(results))
	for i, r := range results {
		out[i] = models.Candidate{
			Chunk:      chunkFromResult(r),
			Embedding:  restoreVector(r.Embedding, r.Metadata[metaNorm]),
			Similarity: r.Similarity,
		}
	}
	return out, nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// Name identifies the backend in logs.
func (m *VectorDBManager) Name() string { return "chromem" }

// export to file
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}

	log.Debug().Str("collection", m.collection.Name).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting local index")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// import from file
func (m *VectorDBManager) Import() error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func createMetadata(c models.Chunk, embedding []float32) map[string]string {
	return map[string]string{
		metaSource:  c.SourceFilename,
		metaPage:    strconv.Itoa(c.PageNumber),
		metaChunkID: strconv.Itoa(c.ChunkID),
		metaNorm:    strconv.FormatFloat(vectorNorm(embedding), 'g', -1, 64),
	}
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// restoreVector scales a stored unit vector back to its original length.
// Vectors without a usable norm are returned as stored.
func restoreVector(v []float32, norm string) []float32 {
	n, err := strconv.ParseFloat(norm, 64)
	if err != nil || n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * n)
	}
	return out
}

func chunkFromResult(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	chunkID, _ := strconv.Atoi(r.Metadata[metaChunkID])
	return models.Chunk{
		ID:             r.ID,
		Content:        r.Content,
		SourceFilename: r.Metadata[metaSource],
		PageNumber:     page,
		ChunkID:        chunkID,
	}
}
