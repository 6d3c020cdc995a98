package parser

import (
	"agentic-rag/internal/helper"
	"agentic-rag/internal/models"
)

const (
	DefaultChunkSize    = 800 // characters
	DefaultChunkOverlap = 100 // characters
)

// SplitText cuts content into fixed windows of size characters, each
// starting size-overlap characters after the previous one. Boundaries
// ignore words and sentences. Every adjacent pair shares exactly overlap
// characters; only the last window may be shorter than size.
func SplitText(content string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// ChunkPages splits every page independently so each chunk keeps the page
// it came from.
func ChunkPages(source string, pages []Page, size, overlap int) []models.Chunk {
	var chunks []models.Chunk
	for _, page := range pages {
		for i, text := range SplitText(page.Text, size, overlap) {
			chunkID := i + 1
			chunks = append(chunks, models.Chunk{
				ID:             helper.ChunkUUID(source, page.Number, chunkID),
				Content:        text,
				SourceFilename: source,
				PageNumber:     page.Number,
				ChunkID:        chunkID,
			})
		}
	}
	return chunks
}
