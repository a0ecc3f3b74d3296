package service

import (
	"strings"

	"github.com/textmill/textmill/internal/domain"
)

// Section is a heading-delimited region of an extracted document.
// Offsets and pages are optional; extractors fill what they know.
type Section struct {
	Heading     string
	Body        string
	PageStart   *int
	PageEnd     *int
	OffsetStart *int
	OffsetEnd   *int
}

// ChunkConfig controls section chunking.
type ChunkConfig struct {
	TargetTokens  int
	MaxTokens     int
	OverlapTokens int
	MinTokens     int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetTokens:  768,
		MaxTokens:     1200,
		OverlapTokens: 100,
		MinTokens:     200,
	}
}

// ChunkSections turns extracted sections into ordered chunks. Sections
// at or under MaxTokens become a single chunk; larger sections are
// windowed at TargetTokens with OverlapTokens of overlap. A final
// merge pass folds chunks under MinTokens into a neighbor. Results
// carry Index, Heading, Text, TokenCount and source positions; the
// caller assigns IDs and the document.
func ChunkSections(sections []Section, cfg ChunkConfig, tok Tokenizer) []domain.Chunk {
	if cfg.TargetTokens <= 0 {
		cfg = DefaultChunkConfig()
	}

	chunks := make([]domain.Chunk, 0, len(sections))
	for _, sec := range sections {
		body := strings.TrimSpace(sec.Body)
		if body == "" {
			continue
		}

		count := tok.CountTokens(body)
		if count <= cfg.MaxTokens {
			chunks = append(chunks, domain.Chunk{
				Heading:           sec.Heading,
				Text:              body,
				TokenCount:        count,
				SourcePageStart:   sec.PageStart,
				SourcePageEnd:     sec.PageEnd,
				SourceOffsetStart: sec.OffsetStart,
				SourceOffsetEnd:   sec.OffsetEnd,
			})
			continue
		}

		for _, piece := range tok.SplitTokens(body, cfg.TargetTokens, cfg.OverlapTokens) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			chunks = append(chunks, domain.Chunk{
				Heading:           sec.Heading,
				Text:              piece,
				TokenCount:        tok.CountTokens(piece),
				SourcePageStart:   sec.PageStart,
				SourcePageEnd:     sec.PageEnd,
				SourceOffsetStart: sec.OffsetStart,
				SourceOffsetEnd:   sec.OffsetEnd,
			})
		}
	}

	chunks = mergeSmallChunks(chunks, cfg, tok)

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// mergeSmallChunks folds each chunk below MinTokens into whichever
// adjacent neighbor has the fewer tokens, preferring the following
// chunk on a tie. A document whose only chunk is small keeps it.
// Merged chunks may exceed MaxTokens; they are never re-split.
func mergeSmallChunks(chunks []domain.Chunk, cfg ChunkConfig, tok Tokenizer) []domain.Chunk {
	if cfg.MinTokens <= 0 {
		return chunks
	}

	i := 0
	for len(chunks) > 1 && i < len(chunks) {
		if chunks[i].TokenCount >= cfg.MinTokens {
			i++
			continue
		}

		target := i + 1
		if i == len(chunks)-1 || (i > 0 && chunks[i-1].TokenCount < chunks[i+1].TokenCount) {
			target = i - 1
		}

		if target < i {
			chunks[target] = mergeChunks(chunks[target], chunks[i], chunks[target].Heading, tok)
			chunks = append(chunks[:i], chunks[i+1:]...)
			// re-examine the widened predecessor
			i = target
		} else {
			chunks[i] = mergeChunks(chunks[i], chunks[target], chunks[target].Heading, tok)
			chunks = append(chunks[:target], chunks[target+1:]...)
			// re-examine position i in case the result is still small
		}
	}
	return chunks
}

// mergeChunks concatenates two adjacent chunks in document order,
// recounts tokens, and widens the source range to cover both.
func mergeChunks(a, b domain.Chunk, heading string, tok Tokenizer) domain.Chunk {
	text := a.Text + "\n\n" + b.Text
	return domain.Chunk{
		Heading:           heading,
		Text:              text,
		TokenCount:        tok.CountTokens(text),
		SourcePageStart:   minIntPtr(a.SourcePageStart, b.SourcePageStart),
		SourcePageEnd:     maxIntPtr(a.SourcePageEnd, b.SourcePageEnd),
		SourceOffsetStart: minIntPtr(a.SourceOffsetStart, b.SourceOffsetStart),
		SourceOffsetEnd:   maxIntPtr(a.SourceOffsetEnd, b.SourceOffsetEnd),
	}
}

func minIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a <= *b {
		return a
	}
	return b
}

func maxIntPtr(a, b *int) *int {
	if a == nil {
		return b
	}
	if b == nil || *a >= *b {
		return a
	}
	return b
}
