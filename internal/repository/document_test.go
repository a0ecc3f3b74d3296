//go:build integration

package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textmill/textmill/internal/domain"
	"github.com/textmill/textmill/internal/pagination"
	"github.com/textmill/textmill/internal/testutil"
)

func seedProject(ctx context.Context, t *testing.T, repo *ProjectRepository) *domain.Project {
	t.Helper()
	project := newTestProject("Project " + uuid.NewString())
	require.NoError(t, repo.Create(ctx, project))
	return project
}

func newTestDocument(projectID string) *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.NewDocument(uuid.NewString(), projectID, "report.md", "text/markdown", 128, now)
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)
	doc := newTestDocument(project.ID)
	require.NoError(t, docRepo.Create(ctx, doc))

	retrieved, err := docRepo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, retrieved.ID)
	assert.Equal(t, project.ID, retrieved.ProjectID)
	assert.Equal(t, "report.md", retrieved.Filename)
	assert.Equal(t, domain.DocumentStatusUploaded, retrieved.Status)
	assert.Nil(t, retrieved.TokenCount)
	assert.Nil(t, retrieved.ProcessedAt)
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	docRepo := NewDocumentRepository(pool)

	_, err := docRepo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ProcessingLifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)
	doc := newTestDocument(project.ID)
	require.NoError(t, docRepo.Create(ctx, doc))

	require.NoError(t, docRepo.ClaimForProcessing(ctx, doc.ID))

	// a second claim while processing is refused
	err := docRepo.ClaimForProcessing(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentAlreadyProcessing)

	require.NoError(t, docRepo.SetTokenCount(ctx, doc.ID, 342))
	require.NoError(t, docRepo.SetProcessingMeta(ctx, doc.ID, "markdown", "section", "text-embedding-3-small"))

	processedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, docRepo.MarkReady(ctx, doc.ID, processedAt))

	retrieved, err := docRepo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusReady, retrieved.Status)
	require.NotNil(t, retrieved.TokenCount)
	assert.Equal(t, 342, *retrieved.TokenCount)
	assert.Equal(t, "markdown", retrieved.ParserType)
	assert.Equal(t, "section", retrieved.ChunkingStrategy)
	assert.Equal(t, "text-embedding-3-small", retrieved.EmbeddingModel)
	require.NotNil(t, retrieved.ProcessedAt)
	assert.Empty(t, retrieved.ProcessingError)

	// a ready document can be reclaimed for reprocessing
	require.NoError(t, docRepo.ClaimForProcessing(ctx, doc.ID))
}

func TestDocumentRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)
	doc := newTestDocument(project.ID)
	require.NoError(t, docRepo.Create(ctx, doc))
	require.NoError(t, docRepo.ClaimForProcessing(ctx, doc.ID))

	longErr := strings.Repeat("x", domain.MaxProcessingErrorLen+500)
	require.NoError(t, docRepo.MarkFailed(ctx, doc.ID, longErr, time.Now().UTC()))

	retrieved, err := docRepo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, retrieved.Status)
	assert.Len(t, retrieved.ProcessingError, domain.MaxProcessingErrorLen)

	// failed documents are reclaimable and the claim clears the error
	require.NoError(t, docRepo.ClaimForProcessing(ctx, doc.ID))
	retrieved, err = docRepo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusProcessing, retrieved.Status)
	assert.Empty(t, retrieved.ProcessingError)
}

func TestDocumentRepository_MarkReady_RequiresProcessing(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)
	doc := newTestDocument(project.ID)
	require.NoError(t, docRepo.Create(ctx, doc))

	err := docRepo.MarkReady(ctx, doc.ID, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestDocumentRepository_ListByProjectWithCursor(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		doc := newTestDocument(project.ID)
		doc.CreatedAt = base.Add(time.Duration(i) * time.Second)
		doc.UpdatedAt = doc.CreatedAt
		require.NoError(t, docRepo.Create(ctx, doc))
	}

	page1, err := docRepo.ListByProjectWithCursor(ctx, project.ID, nil, 3)
	require.NoError(t, err)
	assert.Len(t, page1.Items, 3)
	assert.True(t, page1.HasMore)
	require.NotEmpty(t, page1.NextCursor)

	// newest first
	assert.True(t, page1.Items[0].CreatedAt.After(page1.Items[1].CreatedAt))

	cursor, err := pagination.DecodeCursor(page1.NextCursor)
	require.NoError(t, err)

	page2, err := docRepo.ListByProjectWithCursor(ctx, project.ID, cursor, 3)
	require.NoError(t, err)
	assert.Len(t, page2.Items, 2)
	assert.False(t, page2.HasMore)
	assert.Empty(t, page2.NextCursor)

	seen := map[string]bool{}
	for _, d := range append(page1.Items, page2.Items...) {
		assert.False(t, seen[d.ID])
		seen[d.ID] = true
	}
}

func TestDocumentRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	projectRepo := NewProjectRepository(pool)
	docRepo := NewDocumentRepository(pool)

	project := seedProject(ctx, t, projectRepo)
	doc := newTestDocument(project.ID)
	require.NoError(t, docRepo.Create(ctx, doc))

	require.NoError(t, docRepo.Delete(ctx, doc.ID))
	_, err := docRepo.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	assert.ErrorIs(t, docRepo.Delete(ctx, doc.ID), domain.ErrDocumentNotFound)
}
