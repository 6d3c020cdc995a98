package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/chromemdb"
	"agentic-rag/internal/config"
	"agentic-rag/internal/db"
	"agentic-rag/internal/models"
)

const dim = 4

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[i%dim] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

type fakeHosted struct {
	exists   bool
	created  int
	dropped  bool
	upserted []models.ChunkEmbedding
	err      error
	closed   bool
}

func (f *fakeHosted) IndexExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeHosted) CreateIndex(context.Context, db.IndexSpec) error {
	f.created++
	f.exists = true
	return nil
}

func (f *fakeHosted) Upsert(_ context.Context, items []models.ChunkEmbedding) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, items...)
	return nil
}

func (f *fakeHosted) DropIndex(context.Context) error {
	f.dropped = true
	f.exists = false
	return nil
}

func (f *fakeHosted) Close() error {
	f.closed = true
	return nil
}

type fakeLocal struct {
	items     []models.ChunkEmbedding
	err       error
	exported  bool
	exportErr error
}

func (f *fakeLocal) Upsert(_ context.Context, items []models.ChunkEmbedding) error {
	if f.err != nil {
		return f.err
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeLocal) Export() error {
	f.exported = true
	return f.exportErr
}

func (f *fakeLocal) Count() int { return len(f.items) }

func writeDoc(t *testing.T, runes int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", runes)), 0o644))
	return path
}

func baseOptions(doc string) Options {
	return Options{
		Document:     doc,
		ChunkSize:    800,
		ChunkOverlap: 100,
		Dimension:    dim,
		Index:        db.IndexSpec{Name: "agentic-ai-rag", Dimension: dim, Metric: db.MetricCosine, Region: "us-east-1"},
		LocalPath:    "./chromemdb",
	}
}

func localBuilder(l *fakeLocal) LocalBuilder {
	return func() (LocalIndex, error) { return l, nil }
}

func hostedOpener(h *fakeHosted) HostedOpener {
	return func(context.Context) (HostedIndex, error) { return h, nil }
}

func TestRunMissingDocument(t *testing.T) {
	local := &fakeLocal{}
	emb := &fakeEmbedder{}
	in := New(emb, nil, localBuilder(local), baseOptions(filepath.Join(t.TempDir(), "missing.pdf")))

	report, err := in.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Aborted)
	assert.Contains(t, report.Message, "document not found")
	assert.Zero(t, emb.calls)
	assert.Empty(t, local.items)
}

func TestRunDryRunPrintsChunks(t *testing.T) {
	var out bytes.Buffer
	opts := baseOptions(writeDoc(t, 1500))
	opts.DryRun = true
	opts.Out = &out
	local := &fakeLocal{}

	report, err := New(nil, nil, localBuilder(local), opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Chunks)
	assert.Empty(t, local.items)

	var chunks []models.Chunk
	require.NoError(t, json.Unmarshal(out.Bytes(), &chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "book.txt", chunks[0].SourceFilename)
	assert.Equal(t, 800, len([]rune(chunks[0].Content)))
}

func TestRunWritesHostedAndLocal(t *testing.T) {
	hosted := &fakeHosted{}
	local := &fakeLocal{}
	in := New(&fakeEmbedder{}, hostedOpener(hosted), localBuilder(local), baseOptions(writeDoc(t, 1500)))

	report, err := in.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HostedWritten, report.HostedStatus)
	assert.True(t, report.IndexCreated)
	assert.Len(t, hosted.upserted, 2)
	assert.True(t, hosted.closed)
	assert.Equal(t, 2, report.LocalDocs)
	assert.False(t, local.exported)

	// second run finds the index and does not create it again
	report, err = in.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.IndexCreated)
	assert.Equal(t, 1, hosted.created)
}

func TestRunContinuesAfterHostedFailure(t *testing.T) {
	doc := writeDoc(t, 900)

	hosted := &fakeHosted{err: errors.New("permission denied")}
	local := &fakeLocal{}
	report, err := New(&fakeEmbedder{}, hostedOpener(hosted), localBuilder(local), baseOptions(doc)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HostedFailed, report.HostedStatus)
	assert.Len(t, local.items, 2)

	unreachable := func(context.Context) (HostedIndex, error) { return nil, errors.New("dial tcp: timeout") }
	local = &fakeLocal{}
	report, err = New(&fakeEmbedder{}, unreachable, localBuilder(local), baseOptions(doc)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HostedFailed, report.HostedStatus)
	assert.Len(t, local.items, 2)
}

func TestRunWithoutHosted(t *testing.T) {
	local := &fakeLocal{}
	report, err := New(&fakeEmbedder{}, nil, localBuilder(local), baseOptions(writeDoc(t, 10))).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HostedSkipped, report.HostedStatus)
	assert.Equal(t, 1, report.LocalDocs)
}

func TestRunRecreateDropsHostedIndex(t *testing.T) {
	hosted := &fakeHosted{exists: true}
	opts := baseOptions(writeDoc(t, 10))
	opts.Recreate = true

	report, err := New(&fakeEmbedder{}, hostedOpener(hosted), localBuilder(&fakeLocal{}), opts).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, hosted.dropped)
	assert.True(t, report.IndexCreated)
}

func TestRunLocalFailureIsReturned(t *testing.T) {
	boom := errors.New("disk full")
	_, err := New(&fakeEmbedder{}, nil, localBuilder(&fakeLocal{err: boom}), baseOptions(writeDoc(t, 10))).Run(context.Background())
	assert.ErrorIs(t, err, boom)

	failingBuild := func() (LocalIndex, error) { return nil, boom }
	_, err = New(&fakeEmbedder{}, nil, failingBuild, baseOptions(writeDoc(t, 10))).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunSnapshot(t *testing.T) {
	opts := baseOptions(writeDoc(t, 10))
	opts.Snapshot = true

	local := &fakeLocal{}
	report, err := New(&fakeEmbedder{}, nil, localBuilder(local), opts).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, local.exported)
	assert.True(t, report.SnapshotSaved)

	local = &fakeLocal{exportErr: errors.New("bad key")}
	report, err = New(&fakeEmbedder{}, nil, localBuilder(local), opts).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.SnapshotSaved)
}

func TestRunRequiresEmbedder(t *testing.T) {
	_, err := New(nil, nil, localBuilder(&fakeLocal{}), baseOptions(writeDoc(t, 10))).Run(context.Background())
	assert.Error(t, err)
}

func TestRunEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	report, err := New(&fakeEmbedder{}, nil, localBuilder(&fakeLocal{}), baseOptions(path)).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Aborted)
}

func TestNewFromConfigRebuildsLocalIndex(t *testing.T) {
	cfg := config.Default()
	cfg.Document = writeDoc(t, 1500)
	cfg.Local.Path = filepath.Join(t.TempDir(), "chromemdb")
	cfg.RAG.EmbeddingDim = dim

	report, err := NewFromConfig(cfg, &fakeEmbedder{}, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HostedSkipped, report.HostedStatus)
	assert.Equal(t, 2, report.LocalDocs)

	m, err := chromemdb.Open(chromemdb.OptionsFromConfig(cfg.Local))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())

	// a second run replaces rather than appends
	_, err = NewFromConfig(cfg, &fakeEmbedder{}, Options{}).Run(context.Background())
	require.NoError(t, err)
	m, err = chromemdb.Open(chromemdb.OptionsFromConfig(cfg.Local))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())
}
