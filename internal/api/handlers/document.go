package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/textmill/textmill/internal/api"
	"github.com/textmill/textmill/internal/domain"
	"github.com/textmill/textmill/internal/service"
)

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
	ListChunks(ctx context.Context, documentID string) ([]*domain.Chunk, error)
	Reprocess(ctx context.Context, documentID string) error
	Delete(ctx context.Context, documentID string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Filename        string `json:"filename"`
	MimeType        string `json:"mime_type,omitempty"`
	SizeBytes       int64  `json:"size_bytes"`
	Status          string `json:"status"`
	ProcessingError string `json:"processing_error,omitempty"`
	TokenCount      *int   `json:"token_count,omitempty"`
	ParserType      string `json:"parser_type,omitempty"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	UploadedAt      string `json:"uploaded_at"`
	ProcessedAt     string `json:"processed_at,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:              d.ID,
		ProjectID:       d.ProjectID,
		Filename:        d.Filename,
		MimeType:        d.MimeType,
		SizeBytes:       d.SizeBytes,
		Status:          string(d.Status),
		ProcessingError: d.ProcessingError,
		TokenCount:      d.TokenCount,
		ParserType:      d.ParserType,
		EmbeddingModel:  d.EmbeddingModel,
		UploadedAt:      d.UploadedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.ProcessedAt != nil {
		resp.ProcessedAt = d.ProcessedAt.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

type ChunkResponse struct {
	ID                string `json:"id"`
	DocumentID        string `json:"document_id"`
	Index             int    `json:"index"`
	Heading           string `json:"heading,omitempty"`
	Text              string `json:"text"`
	TokenCount        int    `json:"token_count"`
	SourcePageStart   *int   `json:"source_page_start,omitempty"`
	SourcePageEnd     *int   `json:"source_page_end,omitempty"`
	SourceOffsetStart *int   `json:"source_offset_start,omitempty"`
	SourceOffsetEnd   *int   `json:"source_offset_end,omitempty"`
}

func chunkToResponse(c *domain.Chunk) *ChunkResponse {
	return &ChunkResponse{
		ID:                c.ID,
		DocumentID:        c.DocumentID,
		Index:             c.Index,
		Heading:           c.Heading,
		Text:              c.Text,
		TokenCount:        c.TokenCount,
		SourcePageStart:   c.SourcePageStart,
		SourcePageEnd:     c.SourcePageEnd,
		SourceOffsetStart: c.SourceOffsetStart,
		SourceOffsetEnd:   c.SourceOffsetEnd,
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		api.Error(w, http.StatusBadRequest, "project id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	doc, err := h.svc.Upload(r.Context(), service.UploadInput{
		ProjectID: projectID,
		Filename:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.svc.List(r.Context(), service.ListDocumentsInput{
		ProjectID: projectID,
		Cursor:    r.URL.Query().Get("cursor"),
		Limit:     limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(output.Items))
	for i, d := range output.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

type ChunkListResponse struct {
	Items []*ChunkResponse `json:"items"`
}

func (h *DocumentHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.svc.ListChunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ChunkResponse, len(chunks))
	for i, c := range chunks {
		responses[i] = chunkToResponse(c)
	}

	api.Success(w, http.StatusOK, ChunkListResponse{Items: responses})
}

func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if err := h.svc.Reprocess(r.Context(), documentID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, map[string]string{"document_id": documentID, "status": "queued"})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
