package domain

// SearchHit is a ranked reference to a chunk from one retrieval
// backend. Score semantics differ per backend; only the ordering is
// comparable.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// SearchResult is a fused hybrid search result.
type SearchResult struct {
	Chunk        *Chunk
	DocumentID   string
	Score        float64
	SemanticRank int // 0 when the chunk was absent from that list
	LexicalRank  int
}

// SearchMode reports which backends contributed to a search response.
type SearchMode string

const (
	SearchModeHybrid       SearchMode = "hybrid"
	SearchModeSemanticOnly SearchMode = "semantic_only"
	SearchModeLexicalOnly  SearchMode = "lexical_only"
)
