package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"agentic-rag/internal/config"
	"agentic-rag/internal/models"
)

const MetricCosine = "cosine"

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidIndexName  = errors.New("invalid index name")
	ErrNotConfigured     = errors.New("hosted index is not configured")
)

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string          `bun:"id,pk"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source"`
	PageNumber    int             `bun:"page_number"`
	ChunkID       int             `bun:"chunk_id"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
	Distance      float64         `bun:"distance,scanonly"`
}

// IndexSpec describes the hosted index to create.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Region    string
}

// Catalog is the part of the hosted store that EnsureIndex needs.
type Catalog interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// EnsureIndex creates the index only when it does not exist yet, then waits
// delay so the new table is visible to the pooler before the first write.
func EnsureIndex(ctx context.Context, cat Catalog, spec IndexSpec, delay time.Duration) (bool, error) {
	if err := ValidateIndexName(spec.Name); err != nil {
		return false, err
	}
	exists, err := cat.IndexExists(ctx, spec.Name)
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", spec.Name, err)
	}
	if exists {
		log.Debug().Str("index", spec.Name).Msg("Hosted index already exists")
		return false, nil
	}

	log.Info().Str("index", spec.Name).Int("dimension", spec.Dimension).Str("region", spec.Region).Msg("Creating hosted index")
	if err := cat.CreateIndex(ctx, spec); err != nil {
		return false, fmt.Errorf("failed to create index %s: %w", spec.Name, err)
	}

	if delay > 0 {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-time.After(delay):
		}
	}
	return true, nil
}

// ValidateIndexName accepts lowercase alphanumerics, '-' and '_'.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}
	return nil
}

// quoteIdent renders name as a quoted Postgres identifier for to_regclass.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.SupabaseKey == "" {
		return nil, ErrNotConfigured
	}
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("%w: set SUPABASE_URL or SUPABASE_PROJECT_REF", ErrNotConfigured)
	}
	if !strings.Contains(dsn, "sslmode=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "sslmode=require"
	}

	switch cfg.Driver {
	case "", config.DriverPgdriver:
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.SupabaseKey))), nil
	case config.DriverPQ:
		dsn, err := withPassword(dsn, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		return sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Driver)
	}
}

// withPassword sets the password in a URL-style DSN; lib/pq has no separate option for it.
func withPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	user := "postgres"
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

// Store is the hosted pgvector index. One table per index name.
type Store struct {
	db    *bun.DB
	table string
	dim   int
}

var _ Catalog = (*Store)(nil)

// Open connects to the hosted database and verifies it answers.
func Open(ctx context.Context, cfg config.DatabaseConfig, dim int) (*Store, error) {
	if err := ValidateIndexName(cfg.IndexName); err != nil {
		return nil, err
	}
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	s := NewStore(NewDB(sqldb, cfg.Debug), cfg.IndexName, dim)
	if err := s.db.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to reach hosted index: %w", err)
	}
	return s, nil
}

func NewStore(db *bun.DB, table string, dim int) *Store {
	return &Store{db: db, table: table, dim: dim}
}

func (s *Store) Name() string { return "supabase" }

func (s *Store) Table() string { return s.table }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.existsQuery(s.db, name).Scan(ctx, &exists)
	return exists, err
}

func (s *Store) existsQuery(db bun.IDB, name string) *bun.RawQuery {
	return db.NewRaw("SELECT to_regclass(?) IS NOT NULL", quoteIdent(name))
}

func (s *Store) CreateIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Metric != "" && spec.Metric != MetricCosine {
		return fmt.Errorf("unsupported metric %q", spec.Metric)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, q := range createQueries(tx, spec) {
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// createQueries builds the statements for a new index table, in order.
func createQueries(db bun.IDB, spec IndexSpec) []*bun.RawQuery {
	table := bun.Ident(spec.Name)
	return []*bun.RawQuery{
		db.NewRaw("CREATE EXTENSION IF NOT EXISTS vector"),
		db.NewRaw(`CREATE TABLE IF NOT EXISTS ? (
			id text PRIMARY KEY,
			content text NOT NULL,
			source text,
			page_number integer,
			chunk_id integer,
			embedding vector(?) NOT NULL
		)`, table, spec.Dimension),
		db.NewRaw("CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops)",
			bun.Ident(spec.Name+"_embedding_idx"), table),
		db.NewRaw("COMMENT ON TABLE ? IS ?",
			table, fmt.Sprintf("metric=%s region=%s", MetricCosine, spec.Region)),
	}
}

// Upsert writes all items in one transaction, replacing rows with the same id.
func (s *Store) Upsert(ctx context.Context, items []models.ChunkEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]Document, len(items))
	for i, it := range items {
		if len(it.Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %s has %d, index expects %d", ErrDimensionMismatch, it.ID, len(it.Embedding), s.dim)
		}
		docs[i] = Document{
			ID:         it.ID,
			Content:    it.Content,
			Source:     it.SourceFilename,
			PageNumber: it.PageNumber,
			ChunkID:    it.ChunkID,
			Embedding:  pgvector.NewVector(it.Embedding),
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.upsertQuery(tx, &docs).Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert %d documents: %w", len(docs), err)
		}
		return nil
	})
}

func (s *Store) upsertQuery(db bun.IDB, docs *[]Document) *bun.InsertQuery {
	return db.NewInsert().
		Model(docs).
		ModelTableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("source = EXCLUDED.source").
		Set("page_number = EXCLUDED.page_number").
		Set("chunk_id = EXCLUDED.chunk_id").
		Set("embedding = EXCLUDED.embedding")
}

// Search returns the fetchK nearest rows by cosine distance.
func (s *Store) Search(ctx context.Context, query []float32, fetchK int) ([]models.Candidate, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if fetchK <= 0 {
		return nil, nil
	}

	var docs []Document
	if err := s.searchQuery(&docs, query, fetchK).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.table, err)
	}
	return toCandidates(docs), nil
}

func (s *Store) searchQuery(docs *[]Document, query []float32, fetchK int) *bun.SelectQuery {
	vec := pgvector.NewVector(query)
	return s.db.NewSelect().
		Model(docs).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Column("id", "content", "source", "page_number", "chunk_id", "embedding").
		ColumnExpr("d.embedding <=> ? AS distance", vec).
		OrderExpr("d.embedding <=> ?", vec).
		Limit(fetchK)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.countQuery().Scan(ctx, &n)
	return n, err
}

func (s *Store) countQuery() *bun.SelectQuery {
	return s.db.NewSelect().
		TableExpr("? AS d", bun.Ident(s.table)).
		ColumnExpr("count(*)")
}

// DropIndex removes the table and its vector index.
func (s *Store) DropIndex(ctx context.Context) error {
	_, err := s.dropQuery().Exec(ctx)
	return err
}

func (s *Store) dropQuery() *bun.DropTableQuery {
	return s.db.NewDropTable().
		Table(s.table).
		IfExists()
}

func toCandidates(docs []Document) []models.Candidate {
	out := make([]models.Candidate, len(docs))
	for i, d := range docs {
		out[i] = models.Candidate{
			Chunk: models.Chunk{
				ID:             d.ID,
				Content:        d.Content,
				SourceFilename: d.Source,
				PageNumber:     d.PageNumber,
				ChunkID:        d.ChunkID,
			},
			Embedding:  d.Embedding.Slice(),
			Similarity: float32(1 - d.Distance),
		}
	}
	return out
}
