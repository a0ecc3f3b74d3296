package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/textmill/textmill/internal/domain"
)

const (
	defaultSearchLimit    = 10
	maxSearchLimit        = 100
	candidateMultiplier   = 2
	defaultRRFK           = 60
	defaultSemanticWeight = 1.0
	defaultFulltextWeight = 1.0
)

// VectorSearcher is the semantic side of hybrid search.
type VectorSearcher interface {
	SemanticSearch(ctx context.Context, projectID, documentID string, embedding []float32, limit int) ([]domain.SearchHit, error)
}

// LexicalSearcher is the full-text side of hybrid search.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, projectID, documentID, query string, limit int) ([]domain.SearchHit, error)
}

// ChunkHydrator loads chunk bodies for fused results.
type ChunkHydrator interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)
}

// QueryEmbedder turns a search query into an embedding.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// FusionConfig tunes reciprocal rank fusion.
type FusionConfig struct {
	RRFK           int
	SemanticWeight float64
	FulltextWeight float64
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		RRFK:           defaultRRFK,
		SemanticWeight: defaultSemanticWeight,
		FulltextWeight: defaultFulltextWeight,
	}
}

type SearchInput struct {
	ProjectID string
	Query     string
	Limit     int

	// DocumentID narrows the search to a single document. Empty
	// searches the whole project.
	DocumentID string
}

type SearchOutput struct {
	Results []*domain.SearchResult
	Mode    domain.SearchMode
}

// RetrievalService fuses semantic and lexical retrieval with
// reciprocal rank fusion. Either backend may be absent or failing;
// the service degrades to the surviving side and only errors when
// both are gone.
type RetrievalService struct {
	vectors  VectorSearcher
	lexical  LexicalSearcher
	chunks   ChunkHydrator
	embedder QueryEmbedder
	cfg      FusionConfig
}

func NewRetrievalService(vectors VectorSearcher, lexical LexicalSearcher, chunks ChunkHydrator, embedder QueryEmbedder, cfg FusionConfig) *RetrievalService {
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaultRRFK
	}
	if cfg.SemanticWeight <= 0 {
		cfg.SemanticWeight = defaultSemanticWeight
	}
	if cfg.FulltextWeight <= 0 {
		cfg.FulltextWeight = defaultFulltextWeight
	}
	return &RetrievalService{
		vectors:  vectors,
		lexical:  lexical,
		chunks:   chunks,
		embedder: embedder,
		cfg:      cfg,
	}
}

// HybridSearch runs both retrieval backends over-fetched to twice the
// requested limit, fuses the ranked lists, and hydrates the winning
// chunks. Results are ordered by fused score with chunk ID as the
// deterministic tie-break.
func (s *RetrievalService) HybridSearch(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	if input.ProjectID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "project id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	candidateLimit := limit * candidateMultiplier

	var (
		wg           sync.WaitGroup
		semanticHits []domain.SearchHit
		lexicalHits  []domain.SearchHit
		semanticErr  error
		lexicalErr   error
	)

	semanticAvailable := s.vectors != nil && s.embedder != nil
	if semanticAvailable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			embedding, err := s.embedder.EmbedText(ctx, query)
			if err != nil {
				semanticErr = err
				return
			}
			semanticHits, semanticErr = s.vectors.SemanticSearch(ctx, input.ProjectID, input.DocumentID, embedding, candidateLimit)
		}()
	} else {
		semanticErr = domain.ErrSearchUnavailable
	}

	lexicalAvailable := s.lexical != nil
	if lexicalAvailable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lexicalHits, lexicalErr = s.lexical.LexicalSearch(ctx, input.ProjectID, input.DocumentID, query, candidateLimit)
		}()
	} else {
		lexicalErr = domain.ErrSearchUnavailable
	}

	wg.Wait()

	if semanticErr != nil && lexicalErr != nil {
		return nil, domain.ErrSearchUnavailable
	}

	mode := domain.SearchModeHybrid
	switch {
	case semanticErr != nil:
		mode = domain.SearchModeLexicalOnly
		semanticHits = nil
	case lexicalErr != nil:
		mode = domain.SearchModeSemanticOnly
		lexicalHits = nil
	case len(lexicalHits) == 0 && len(semanticHits) > 0:
		mode = domain.SearchModeSemanticOnly
	case len(semanticHits) == 0 && len(lexicalHits) > 0:
		mode = domain.SearchModeLexicalOnly
	}

	fused := s.fuse(semanticHits, lexicalHits)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results, err := s.hydrate(ctx, fused)
	if err != nil {
		return nil, err
	}

	return &SearchOutput{Results: results, Mode: mode}, nil
}

type fusionCandidate struct {
	chunkID      string
	documentID   string
	rrfScore     float64
	semanticRank int
	lexicalRank  int
}

// fuse merges the two ranked lists with reciprocal rank fusion:
// each appearance contributes weight / (k + rank), rank starting at
// 1 for the best hit. A chunk absent from one list simply gets no
// contribution from that side.
func (s *RetrievalService) fuse(semanticHits, lexicalHits []domain.SearchHit) []*fusionCandidate {
	candidates := make(map[string]*fusionCandidate)

	addList := func(hits []domain.SearchHit, weight float64, semantic bool) {
		for i, h := range hits {
			cand, ok := candidates[h.ChunkID]
			if !ok {
				cand = &fusionCandidate{chunkID: h.ChunkID, documentID: h.DocumentID}
				candidates[h.ChunkID] = cand
			}
			rank := i + 1
			cand.rrfScore += weight / float64(s.cfg.RRFK+rank)
			if semantic {
				cand.semanticRank = rank
			} else {
				cand.lexicalRank = rank
			}
		}
	}

	addList(semanticHits, s.cfg.SemanticWeight, true)
	addList(lexicalHits, s.cfg.FulltextWeight, false)

	out := make([]*fusionCandidate, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rrfScore != out[j].rrfScore {
			return out[i].rrfScore > out[j].rrfScore
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// hydrate loads chunk bodies for the fused candidates, preserving
// fusion order. Candidates whose chunk vanished between retrieval and
// hydration are dropped.
func (s *RetrievalService) hydrate(ctx context.Context, fused []*fusionCandidate) ([]*domain.SearchResult, error) {
	if len(fused) == 0 {
		return []*domain.SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.chunkID
	}

	byID, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.SearchResult, 0, len(fused))
	for _, c := range fused {
		chunk, ok := byID[c.chunkID]
		if !ok {
			continue
		}
		results = append(results, &domain.SearchResult{
			Chunk:        chunk,
			DocumentID:   c.documentID,
			Score:        c.rrfScore,
			SemanticRank: c.semanticRank,
			LexicalRank:  c.lexicalRank,
		})
	}
	return results, nil
}
