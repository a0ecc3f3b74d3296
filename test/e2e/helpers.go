//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/textmill/textmill/internal/api/handlers"
	"github.com/textmill/textmill/internal/jobs"
	"github.com/textmill/textmill/internal/repository"
	"github.com/textmill/textmill/internal/server"
	"github.com/textmill/textmill/internal/service"
	"github.com/textmill/textmill/internal/storage"
	"github.com/textmill/textmill/internal/testutil"
)

const embeddingDimensions = 1536

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Worker       *jobs.Worker
	BlobStore    *storage.S3BlobStore
	APIKeyToken  string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, a
// running server, and a background processing worker driven by a
// deterministic embedder.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	blobStore, err := storage.NewS3BlobStore(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	if err := blobStore.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser, worker := startServer(t, pool, blobStore, port)

	env := &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Worker:       worker,
		BlobStore:    blobStore,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Worker != nil {
		e.Worker.Stop()
	}
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap mints an API key through the open provisioning endpoint.
func (e *E2ETestEnv) Bootstrap() {
	keyResp, err := e.Post("/apikeys", map[string]string{"name": "e2e-test-key"}, "")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}

	var keyData struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(keyResp.Data, &keyData); err != nil {
		e.T.Fatalf("failed to parse key response: %v", err)
	}
	e.APIKeyToken = keyData.Token
}

// CreateProject creates a project and returns its ID.
func (e *E2ETestEnv) CreateProject(name string) string {
	resp, err := e.Post("/projects", map[string]string{"name": name}, e.APIKeyToken)
	if err != nil {
		e.T.Fatalf("failed to create project: %v", err)
	}

	var project struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &project); err != nil {
		e.T.Fatalf("failed to parse project response: %v", err)
	}
	return project.ID
}

// UploadDocument uploads content as a multipart file and returns the
// document ID.
func (e *E2ETestEnv) UploadDocument(projectID, filename, contentType string, content []byte) string {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		e.T.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		e.T.Fatalf("failed to write form file: %v", err)
	}
	writer.Close()

	req, err := http.NewRequest("POST", e.ServerURL+"/projects/"+projectID+"/documents", &buf)
	if err != nil {
		e.T.Fatalf("failed to create upload request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKeyToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("upload request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		e.T.Fatalf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		e.T.Fatalf("failed to parse upload response: %v", err)
	}

	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(apiResp.Data, &doc); err != nil {
		e.T.Fatalf("failed to parse document: %v", err)
	}
	return doc.ID
}

// WaitForDocumentStatus polls until the document reaches the wanted
// status or the timeout expires.
func (e *E2ETestEnv) WaitForDocumentStatus(documentID, status string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	var last string
	for time.Now().Before(deadline) {
		resp, err := e.Get("/documents/"+documentID, e.APIKeyToken)
		if err == nil {
			var doc struct {
				Status          string `json:"status"`
				ProcessingError string `json:"processing_error"`
			}
			if err := json.Unmarshal(resp.Data, &doc); err == nil {
				last = doc.Status
				if doc.Status == status {
					return
				}
				if doc.Status == "failed" && status != "failed" {
					e.T.Fatalf("document %s failed: %s", documentID, doc.ProcessingError)
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("document %s did not reach status %q within %v (last: %q)", documentID, status, timeout, last)
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer starts the HTTP server with all handlers plus the
// processing worker.
func startServer(t *testing.T, pool *pgxpool.Pool, blobStore *storage.S3BlobStore, port int) (string, func(), *jobs.Worker) {
	projectRepo := repository.NewProjectRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	vectorRepo := repository.NewVectorRepository(pool)
	jobRepo := repository.NewProcessingJobRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	embedder := &fakeEmbedder{}

	authSvc := service.NewAuthService(apiKeyRepo, uuidGen)
	documentSvc := service.NewDocumentService(documentRepo, projectRepo, chunkRepo, vectorRepo, jobRepo, blobStore)
	retrievalSvc := service.NewRetrievalService(vectorRepo, chunkRepo, chunkRepo, embedder, service.DefaultFusionConfig())
	processingSvc := service.NewProcessingService(documentRepo, vectorRepo, blobStore, embedder, txRunner, service.NewTokenizer(), service.ProcessingConfig{
		EmbeddingModel: "fake-embedding-model",
	})

	cfg := server.RouterConfig{
		AuthValidator:   authSvc,
		ProjectHandler:  handlers.NewProjectHandler(projectRepo),
		DocumentHandler: handlers.NewDocumentHandler(documentSvc),
		SearchHandler:   handlers.NewSearchHandler(retrievalSvc),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	processingWorker := jobs.NewProcessingWorker(jobRepo, processingSvc)
	worker := jobs.NewWorker(processingWorker, 100*time.Millisecond)
	worker.Start(context.Background())

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, worker
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// fakeEmbedder produces deterministic unit vectors derived from the
// input text, so similar texts do not cluster but the full pipeline
// runs without a provider.
type fakeEmbedder struct{}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedText(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return embedText(text), nil
}

func embedText(text string) []float32 {
	vec := make([]float32, embeddingDimensions)
	seed := fnvHash(text)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int32(seed>>33)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func fnvHash(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var h uint64 = offset64
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	// Mix in the length so prefixes diverge
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(s)))
	for _, b := range lenBytes {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}
