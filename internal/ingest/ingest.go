package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"agentic-rag/internal/chromemdb"
	"agentic-rag/internal/config"
	"agentic-rag/internal/db"
	"agentic-rag/internal/embedding"
	"agentic-rag/internal/helper"
	"agentic-rag/internal/models"
	"agentic-rag/internal/parser"
)

// HostedIndex is the hosted store as seen by ingestion.
type HostedIndex interface {
	db.Catalog
	Upsert(ctx context.Context, items []models.ChunkEmbedding) error
	DropIndex(ctx context.Context) error
	Close() error
}

// LocalIndex is a freshly rebuilt local store.
type LocalIndex interface {
	Upsert(ctx context.Context, items []models.ChunkEmbedding) error
	Export() error
	Count() int
}

type (
	HostedOpener func(ctx context.Context) (HostedIndex, error)
	LocalBuilder func() (LocalIndex, error)
)

type Options struct {
	Document     string
	DryRun       bool
	Recreate     bool
	ChunkSize    int
	ChunkOverlap int
	Dimension    int
	Index        db.IndexSpec
	CreateDelay  time.Duration
	Snapshot     bool
	LocalPath    string
	Out          io.Writer
}

// Report summarises one ingestion run.
type Report struct {
	Document      string `json:"document"`
	Pages         int    `json:"pages"`
	Chunks        int    `json:"chunks"`
	Aborted       bool   `json:"aborted"`
	Message       string `json:"message,omitempty"`
	HostedStatus  string `json:"hosted_status"`
	IndexCreated  bool   `json:"index_created"`
	LocalPath     string `json:"local_path,omitempty"`
	LocalDocs     int    `json:"local_docs"`
	SnapshotSaved bool   `json:"snapshot_saved"`
}

const (
	HostedSkipped = "skipped"
	HostedWritten = "written"
	HostedFailed  = "failed"
)

type Ingestor struct {
	embedder   embeddings.Embedder
	openHosted HostedOpener
	buildLocal LocalBuilder
	opts       Options
}

// New builds an Ingestor. openHosted may be nil when no hosted index is
// configured; embedder may be nil for dry runs.
func New(embedder embeddings.Embedder, openHosted HostedOpener, buildLocal LocalBuilder, opts Options) *Ingestor {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Ingestor{embedder: embedder, openHosted: openHosted, buildLocal: buildLocal, opts: opts}
}

// NewFromConfig wires the Supabase and chromem stores described by cfg.
func NewFromConfig(cfg *config.Config, embedder embeddings.Embedder, opts Options) *Ingestor {
	if opts.Document == "" {
		opts.Document = cfg.Document
	}
	opts.ChunkSize = cfg.RAG.ChunkSize
	opts.ChunkOverlap = cfg.RAG.ChunkOverlap
	opts.Dimension = cfg.RAG.EmbeddingDim
	opts.Index = db.IndexSpec{
		Name:      cfg.Database.IndexName,
		Dimension: cfg.RAG.EmbeddingDim,
		Metric:    db.MetricCosine,
		Region:    cfg.Database.Region,
	}
	opts.CreateDelay = cfg.Database.CreateDelay
	opts.Snapshot = cfg.Local.EncryptionKey != ""
	opts.LocalPath = cfg.Local.Path

	var openHosted HostedOpener
	if cfg.HostedEnabled() {
		openHosted = func(ctx context.Context) (HostedIndex, error) {
			return db.Open(ctx, cfg.Database, cfg.RAG.EmbeddingDim)
		}
	}
	buildLocal := func() (LocalIndex, error) {
		return chromemdb.Rebuild(chromemdb.OptionsFromConfig(cfg.Local))
	}
	return New(embedder, openHosted, buildLocal, opts)
}

// Run loads, chunks and embeds the document, then writes the hosted index
// (best effort) and rebuilds the local index. A missing document aborts the
// run without an error.
func (in *Ingestor) Run(ctx context.Context) (*Report, error) {
	doc := in.opts.Document
	report := &Report{Document: doc, HostedStatus: HostedSkipped, LocalPath: in.opts.LocalPath}

	if _, err := os.Stat(doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			report.Aborted = true
			report.Message = fmt.Sprintf("document not found: %s", doc)
			log.Error().Str("document", doc).Msg("Document not found, nothing to ingest")
			return report, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", doc, err)
	}

	pages, err := parser.LoadPages(doc)
	if err != nil {
		return nil, err
	}
	chunks := parser.ChunkPages(filepath.Base(doc), pages, in.opts.ChunkSize, in.opts.ChunkOverlap)
	report.Pages, report.Chunks = len(pages), len(chunks)
	log.Info().Str("document", doc).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Split document")

	if len(chunks) == 0 {
		report.Aborted = true
		report.Message = fmt.Sprintf("no text could be extracted from %s", doc)
		log.Error().Str("document", doc).Msg("Document has no extractable text")
		return report, nil
	}

	if in.opts.DryRun {
		helper.FprettyPrint(in.opts.Out, chunks)
		return report, nil
	}

	if in.embedder == nil {
		return nil, errors.New("an embedder is required unless running dry")
	}
	items, err := embedding.GenerateEmbedding(ctx, in.embedder, chunks, in.opts.Dimension)
	if err != nil {
		return nil, err
	}

	if in.openHosted != nil {
		created, err := in.writeHosted(ctx, items)
		report.IndexCreated = created
		if err != nil {
			report.HostedStatus = HostedFailed
			log.Error().Err(err).Str("index", in.opts.Index.Name).Msg("Hosted index write failed, continuing with local index")
		} else {
			report.HostedStatus = HostedWritten
			log.Info().Str("index", in.opts.Index.Name).Int("documents", len(items)).Msg("Upserted documents to hosted index")
		}
	}

	local, err := in.buildLocal()
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild local index: %w", err)
	}
	if err := local.Upsert(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to write local index: %w", err)
	}
	report.LocalDocs = local.Count()
	log.Info().Str("path", in.opts.LocalPath).Int("documents", report.LocalDocs).Msg("Saved local index")

	if in.opts.Snapshot {
		if err := local.Export(); err != nil {
			log.Error().Err(err).Msg("Failed to export local index snapshot")
		} else {
			report.SnapshotSaved = true
		}
	}

	return report, nil
}

func (in *Ingestor) writeHosted(ctx context.Context, items []models.ChunkEmbedding) (bool, error) {
	store, err := in.openHosted(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close hosted index")
		}
	}()

	if in.opts.Recreate {
		if err := store.DropIndex(ctx); err != nil {
			return false, fmt.Errorf("failed to drop index: %w", err)
		}
	}

	created, err := db.EnsureIndex(ctx, store, in.opts.Index, in.opts.CreateDelay)
	if err != nil {
		return created, err
	}
	return created, store.Upsert(ctx, items)
}
