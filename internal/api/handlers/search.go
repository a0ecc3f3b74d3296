package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/textmill/textmill/internal/api"
	"github.com/textmill/textmill/internal/service"
)

type SearchService interface {
	HybridSearch(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	ProjectID  string `json:"project_id"`
	Query      string `json:"query"`
	Limit      int    `json:"limit"`
	DocumentID string `json:"document_id"`
}

type SearchResultResponse struct {
	Chunk        *ChunkResponse `json:"chunk"`
	DocumentID   string         `json:"document_id"`
	Score        float64        `json:"score"`
	SemanticRank int            `json:"semantic_rank,omitempty"`
	LexicalRank  int            `json:"lexical_rank,omitempty"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
	Mode    string                  `json:"mode"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	output, err := h.svc.HybridSearch(r.Context(), service.SearchInput{
		ProjectID:  req.ProjectID,
		Query:      req.Query,
		Limit:      req.Limit,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]*SearchResultResponse, len(output.Results))
	for i, res := range output.Results {
		results[i] = &SearchResultResponse{
			Chunk:        chunkToResponse(res.Chunk),
			DocumentID:   res.DocumentID,
			Score:        res.Score,
			SemanticRank: res.SemanticRank,
			LexicalRank:  res.LexicalRank,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{
		Results: results,
		Mode:    string(output.Mode),
	})
}
