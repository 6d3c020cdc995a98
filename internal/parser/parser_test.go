package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestSplitTextWindows(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"shorter than one chunk", 500},
		{"exactly one chunk", 800},
		{"one step over", 801},
		{"exact multiple of step", 800 + 700*3},
		{"ragged tail", 5123},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := sampleText(tt.n)
			chunks := SplitText(content, DefaultChunkSize, DefaultChunkOverlap)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				n := utf8.RuneCountInString(c)
				assert.LessOrEqual(t, n, DefaultChunkSize)
				if i < len(chunks)-1 {
					assert.Equal(t, DefaultChunkSize, n, "only the last chunk may be short")
					next := []rune(chunks[i+1])
					cur := []rune(c)
					assert.Equal(t, string(cur[len(cur)-DefaultChunkOverlap:]), string(next[:DefaultChunkOverlap]),
						"chunks %d and %d must share the overlap", i, i+1)
				}
			}
			assert.Equal(t, content, joinChunks(chunks, DefaultChunkOverlap))
		})
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	content := strings.Repeat("é", 1000)
	chunks := SplitText(content, 800, 100)
	require.Len(t, chunks, 2)
	assert.Equal(t, 800, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 300, utf8.RuneCountInString(chunks[1]))
}

func TestSplitTextEdgeCases(t *testing.T) {
	assert.Nil(t, SplitText("", 800, 100))
	assert.Nil(t, SplitText("abc", 0, 0))
	// overlap >= size is clamped to size/2
	assert.Equal(t, []string{"abcd", "cdef"}, SplitText("abcdef", 4, 9))
	assert.Equal(t, []string{"ab", "cd", "e"}, SplitText("abcde", 2, -1))
}

func TestChunkPagesKeepsProvenance(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: sampleText(900)},
		{Number: 4, Text: "short page"},
	}
	chunks := ChunkPages("book.pdf", pages, 800, 100)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 1, chunks[0].ChunkID)
	assert.Equal(t, 1, chunks[1].PageNumber)
	assert.Equal(t, 2, chunks[1].ChunkID)
	assert.Equal(t, 4, chunks[2].PageNumber)
	assert.Equal(t, "short page", chunks[2].Content)

	seen := map[string]bool{}
	for _, c := range chunks {
		assert.Equal(t, "book.pdf", c.SourceFilename)
		assert.NotEmpty(t, c.ID)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestLoadPagesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Agentic AI refers to systems.  \n"), 0o644))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, Page{Number: 1, Text: "Agentic AI refers to systems."}, pages[0])
}

func TestLoadPagesPDF(t *testing.T) {
	pages, err := LoadPages(filepath.Join("testdata", "agentic.pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Agentic AI plans and acts.")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Tools extend what agents can do.")

	chunks := ChunkPages("agentic.pdf", pages, DefaultChunkSize, DefaultChunkOverlap)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[1].PageNumber)
}

func TestLoadPagesMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	src := "# Agentic AI\n\nAgentic AI is **autonomous**. See [docs](https://example.com).\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	text := pages[0].Text
	assert.Contains(t, text, "Agentic AI")
	assert.Contains(t, text, "Agentic AI is autonomous. See docs.")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "https://example.com")
}

func writeWorkbook(t *testing.T, name string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "term"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "meaning"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "agent"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "plans and acts"))
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadPagesSpreadsheets(t *testing.T) {
	for _, name := range []string{"glossary.xlsx", "glossary.xlsm"} {
		t.Run(name, func(t *testing.T) {
			pages, err := LoadPages(writeWorkbook(t, name))
			require.NoError(t, err)
			require.Len(t, pages, 1)
			assert.Equal(t, 1, pages[0].Number)
			assert.Contains(t, pages[0].Text, "Sheet: Sheet1")
			assert.Contains(t, pages[0].Text, "agent\tplans and acts")
		})
	}
}

func TestLoadPagesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestLoadPagesErrors(t *testing.T) {
	_, err := LoadPages("book.epub")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadPages(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractTaggedText(t *testing.T) {
	xml := `<w:p><w:r><w:t>Hello</w:t></w:r><w:tab/><w:r><w:t xml:space="preserve">world</w:t></w:r></w:p>`
	assert.Equal(t, "Hello world", extractTaggedText(xml, "<w:t", "</w:t>"))
	assert.Equal(t, "", extractTaggedText("<w:tbl></w:tbl>", "<w:t", "</w:t>"))
}

func sampleText(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

// joinChunks reverses SplitText for chunks cut with the same overlap.
func joinChunks(chunks []string, overlap int) string {
	var out []rune
	for i, c := range chunks {
		r := []rune(c)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
