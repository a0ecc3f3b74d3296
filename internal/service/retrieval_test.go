package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/textmill/textmill/internal/domain"
)

type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SemanticSearch(ctx context.Context, projectID, documentID string, embedding []float32, limit int) ([]domain.SearchHit, error) {
	args := m.Called(ctx, projectID, documentID, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchHit), args.Error(1)
}

type MockLexicalSearcher struct {
	mock.Mock
}

func (m *MockLexicalSearcher) LexicalSearch(ctx context.Context, projectID, documentID, query string, limit int) ([]domain.SearchHit, error) {
	args := m.Called(ctx, projectID, documentID, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchHit), args.Error(1)
}

type MockChunkHydrator struct {
	mock.Mock
}

func (m *MockChunkHydrator) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.Chunk), args.Error(1)
}

type MockQueryEmbedder struct {
	mock.Mock
}

func (m *MockQueryEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func hit(chunkID string) domain.SearchHit {
	return domain.SearchHit{ChunkID: chunkID, DocumentID: "doc-1", Score: 0.5}
}

func chunksByID(ids ...string) map[string]*domain.Chunk {
	out := make(map[string]*domain.Chunk, len(ids))
	for _, id := range ids {
		out[id] = &domain.Chunk{ID: id, DocumentID: "doc-1", Text: "body of " + id}
	}
	return out
}

func newTestRetrieval(v *MockVectorSearcher, l *MockLexicalSearcher, c *MockChunkHydrator, e *MockQueryEmbedder) *RetrievalService {
	return NewRetrievalService(v, l, c, e, DefaultFusionConfig())
}

func TestHybridSearch_ValidatesInput(t *testing.T) {
	svc := newTestRetrieval(new(MockVectorSearcher), new(MockLexicalSearcher), new(MockChunkHydrator), new(MockQueryEmbedder))

	_, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "   "})
	assert.Error(t, err)

	_, err = svc.HybridSearch(context.Background(), SearchInput{Query: "hello"})
	assert.Error(t, err)
}

func TestHybridSearch_EqualScoreTieBreaksOnChunkID(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	// beta and alpha mirror each other's ranks (1 and 3 on opposite
	// sides), so both fuse to 1/61 + 1/63 and the lower chunk ID wins.
	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{hit("beta"), hit("sem-mid"), hit("alpha")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{hit("alpha"), hit("lex-mid"), hit("beta")}, nil)
	hydrator.On("GetByIDs", mock.Anything, mock.Anything).
		Return(chunksByID("alpha", "beta", "sem-mid", "lex-mid"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, out.Results, 4)

	assert.Equal(t, "alpha", out.Results[0].Chunk.ID)
	assert.Equal(t, "beta", out.Results[1].Chunk.ID)
	assert.InDelta(t, 1.0/61+1.0/63, out.Results[0].Score, 1e-9)
	assert.InDelta(t, out.Results[0].Score, out.Results[1].Score, 1e-12)
	assert.Equal(t, 3, out.Results[0].SemanticRank)
	assert.Equal(t, 1, out.Results[0].LexicalRank)
	assert.Equal(t, 1, out.Results[1].SemanticRank)
	assert.Equal(t, 3, out.Results[1].LexicalRank)
}

func TestHybridSearch_DocumentFilterForwarded(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "doc-1", mock.Anything, 20).
		Return([]domain.SearchHit{hit("a")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "doc-1", "q", 20).
		Return([]domain.SearchHit{hit("a")}, nil)
	hydrator.On("GetByIDs", mock.Anything, []string{"a"}).
		Return(chunksByID("a"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{
		ProjectID:  "p1",
		Query:      "q",
		Limit:      10,
		DocumentID: "doc-1",
	})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	vectors.AssertExpectations(t)
	lexical.AssertExpectations(t)
}

func TestHybridSearch_ChunkInBothListsWins(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedding := []float32{0.1, 0.2}
	embedder.On("EmbedText", mock.Anything, "golang").Return(embedding, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", embedding, 20).
		Return([]domain.SearchHit{hit("both"), hit("sem-only")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "golang", 20).
		Return([]domain.SearchHit{hit("lex-only"), hit("both")}, nil)
	hydrator.On("GetByIDs", mock.Anything, mock.Anything).
		Return(chunksByID("both", "sem-only", "lex-only"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "golang", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeHybrid, out.Mode)
	require.Len(t, out.Results, 3)

	// both: 1/61 + 1/62 beats either single appearance
	assert.Equal(t, "both", out.Results[0].Chunk.ID)
	assert.InDelta(t, 1.0/61+1.0/62, out.Results[0].Score, 1e-9)
	assert.Equal(t, 1, out.Results[0].SemanticRank)
	assert.Equal(t, 2, out.Results[0].LexicalRank)

	assert.Equal(t, "lex-only", out.Results[1].Chunk.ID)
	assert.InDelta(t, 1.0/61, out.Results[1].Score, 1e-9)
	assert.Equal(t, "sem-only", out.Results[2].Chunk.ID)
	assert.InDelta(t, 1.0/62, out.Results[2].Score, 1e-9)

	vectors.AssertExpectations(t)
	lexical.AssertExpectations(t)
}

func TestHybridSearch_AbsentSideContributesNothing(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	// semantic rank 2 + lexical rank 2 outranks semantic rank 1 alone
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{hit("a"), hit("b")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{hit("c"), hit("b")}, nil)
	hydrator.On("GetByIDs", mock.Anything, mock.Anything).
		Return(chunksByID("a", "b", "c"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "b", out.Results[0].Chunk.ID)
	assert.InDelta(t, 2.0/62, out.Results[0].Score, 1e-9)
	assert.Equal(t, "a", out.Results[1].Chunk.ID)
	assert.Equal(t, 0, out.Results[1].LexicalRank)
	assert.Equal(t, "c", out.Results[2].Chunk.ID)
	assert.Equal(t, 0, out.Results[2].SemanticRank)
}

func TestHybridSearch_SemanticDownDegradesToLexical(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return(nil, errors.New("embedding provider down"))
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{hit("l1"), hit("l2")}, nil)
	hydrator.On("GetByIDs", mock.Anything, []string{"l1", "l2"}).
		Return(chunksByID("l1", "l2"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeLexicalOnly, out.Mode)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "l1", out.Results[0].Chunk.ID)
	assert.Equal(t, "l2", out.Results[1].Chunk.ID)
	vectors.AssertNotCalled(t, "SemanticSearch")
}

func TestHybridSearch_LexicalDownDegradesToSemantic(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{hit("s1")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return(nil, errors.New("index offline"))
	hydrator.On("GetByIDs", mock.Anything, []string{"s1"}).
		Return(chunksByID("s1"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeSemanticOnly, out.Mode)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "s1", out.Results[0].Chunk.ID)
}

func TestHybridSearch_BothDownReturnsUnavailable(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return(nil, errors.New("down"))
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return(nil, errors.New("also down"))

	svc := newTestRetrieval(vectors, lexical, new(MockChunkHydrator), embedder)
	_, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	assert.ErrorIs(t, err, domain.ErrSearchUnavailable)
}

func TestHybridSearch_NoBackendsConfigured(t *testing.T) {
	svc := NewRetrievalService(nil, nil, new(MockChunkHydrator), nil, DefaultFusionConfig())

	_, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q"})
	assert.ErrorIs(t, err, domain.ErrSearchUnavailable)
}

func TestHybridSearch_EmptyBothSidesIsEmptyNotError(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{}, nil)

	svc := newTestRetrieval(vectors, lexical, new(MockChunkHydrator), embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeHybrid, out.Mode)
	assert.Empty(t, out.Results)
}

func TestHybridSearch_EmptyLexicalReportsSemanticOnly(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{hit("s1"), hit("s2")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{}, nil)
	hydrator.On("GetByIDs", mock.Anything, []string{"s1", "s2"}).
		Return(chunksByID("s1", "s2"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeSemanticOnly, out.Mode)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "s1", out.Results[0].Chunk.ID)
}

func TestHybridSearch_EmptySemanticReportsLexicalOnly(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{hit("l1")}, nil)
	hydrator.On("GetByIDs", mock.Anything, []string{"l1"}).
		Return(chunksByID("l1"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, domain.SearchModeLexicalOnly, out.Mode)
	require.Len(t, out.Results, 1)
}

func TestHybridSearch_TruncatesToLimit(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 4).
		Return([]domain.SearchHit{hit("a"), hit("b"), hit("c"), hit("d")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 4).
		Return([]domain.SearchHit{}, nil)
	hydrator.On("GetByIDs", mock.Anything, []string{"a", "b"}).
		Return(chunksByID("a", "b"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 2})

	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "a", out.Results[0].Chunk.ID)
	assert.Equal(t, "b", out.Results[1].Chunk.ID)
	hydrator.AssertExpectations(t)
}

func TestHybridSearch_DropsChunksMissingAtHydration(t *testing.T) {
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	hydrator := new(MockChunkHydrator)
	embedder := new(MockQueryEmbedder)

	embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
	vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
		Return([]domain.SearchHit{hit("gone"), hit("here")}, nil)
	lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
		Return([]domain.SearchHit{}, nil)
	hydrator.On("GetByIDs", mock.Anything, mock.Anything).
		Return(chunksByID("here"), nil)

	svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
	out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "here", out.Results[0].Chunk.ID)
}

func TestHybridSearch_Deterministic(t *testing.T) {
	run := func() []string {
		vectors := new(MockVectorSearcher)
		lexical := new(MockLexicalSearcher)
		hydrator := new(MockChunkHydrator)
		embedder := new(MockQueryEmbedder)

		embedder.On("EmbedText", mock.Anything, "q").Return([]float32{0.1}, nil)
		vectors.On("SemanticSearch", mock.Anything, "p1", "", mock.Anything, 20).
			Return([]domain.SearchHit{hit("x"), hit("y"), hit("z")}, nil)
		lexical.On("LexicalSearch", mock.Anything, "p1", "", "q", 20).
			Return([]domain.SearchHit{hit("z"), hit("w")}, nil)
		hydrator.On("GetByIDs", mock.Anything, mock.Anything).
			Return(chunksByID("x", "y", "z", "w"), nil)

		svc := newTestRetrieval(vectors, lexical, hydrator, embedder)
		out, err := svc.HybridSearch(context.Background(), SearchInput{ProjectID: "p1", Query: "q", Limit: 10})
		require.NoError(t, err)

		ids := make([]string, len(out.Results))
		for i, r := range out.Results {
			ids[i] = r.Chunk.ID
		}
		return ids
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}
