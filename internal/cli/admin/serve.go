package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/textmill/textmill/internal/api/handlers"
	"github.com/textmill/textmill/internal/config"
	"github.com/textmill/textmill/internal/jobs"
	"github.com/textmill/textmill/internal/openai"
	"github.com/textmill/textmill/internal/repository"
	"github.com/textmill/textmill/internal/server"
	"github.com/textmill/textmill/internal/service"
	"github.com/textmill/textmill/internal/storage"
	"github.com/textmill/textmill/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the textmill API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	vectorRepo := repository.NewVectorRepository(pool)
	jobRepo := repository.NewProcessingJobRepository(pool)
	projectRepo := repository.NewProjectRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(apiKeyRepo, uuidGen)

	if cfg.InitAPIKey != "" {
		if err := bootstrapInitialAPIKey(ctx, cfg.InitAPIKey, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial API key: %w", err)
		}
	}

	var blobStore service.BlobStore
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Store, err := storage.NewS3BlobStore(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 blob store: %w", err)
		}
		if err := s3Store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobStore = s3Store
	} else {
		blobStore = repository.NewBlobRepository(pool)
		log.Println("storing document blobs in postgres")
	}

	tokenizer := service.NewTokenizer()
	chunkCfg := service.ChunkConfig{
		TargetTokens:  cfg.TargetChunkTokens,
		MaxTokens:     cfg.MaxChunkTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		MinTokens:     cfg.MinChunkTokens,
	}

	var embeddingClient *openai.Client
	var processingWorker *jobs.Worker
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
		})

		processingSvc := service.NewProcessingService(
			documentRepo, vectorRepo, blobStore, embeddingClient, txRunner, tokenizer,
			service.ProcessingConfig{
				ChunkConfig:    chunkCfg,
				EmbeddingModel: cfg.EmbeddingModel,
				BatchSize:      cfg.EmbeddingBatchSize,
			},
		)

		processor := jobs.NewProcessingWorker(jobRepo, processingSvc)
		processingWorker = jobs.NewWorker(processor, 10*time.Second)
		go processingWorker.Start(ctx)
		log.Println("processing worker started")
	} else {
		log.Println("OPENAI_API_KEY not set: document processing disabled")
	}

	documentSvc := service.NewDocumentService(documentRepo, projectRepo, chunkRepo, vectorRepo, jobRepo, blobStore)

	fusionCfg := service.FusionConfig{
		RRFK:           cfg.RRFK,
		SemanticWeight: cfg.SemanticWeight,
		FulltextWeight: cfg.FulltextWeight,
	}
	var queryEmbedder service.QueryEmbedder
	if embeddingClient != nil {
		queryEmbedder = embeddingClient
	}
	retrievalSvc := service.NewRetrievalService(vectorRepo, chunkRepo, chunkRepo, queryEmbedder, fusionCfg)

	routerCfg := server.RouterConfig{
		AuthValidator:   authSvc,
		ProjectHandler:  handlers.NewProjectHandler(projectRepo),
		DocumentHandler: handlers.NewDocumentHandler(documentSvc),
		SearchHandler:   handlers.NewSearchHandler(retrievalSvc),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
		MaxBodyBytes:    cfg.MaxUploadBytes,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if processingWorker != nil {
		processingWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func bootstrapInitialAPIKey(ctx context.Context, token string, authSvc *service.AuthService) error {
	if !service.IsValidAPIToken(token) {
		return fmt.Errorf("invalid TEXTMILL_INIT_API_KEY format (expected 'tml_<64 hex chars>')")
	}

	if keyID, err := authSvc.ValidateAPIKey(ctx, token); err == nil {
		log.Printf("bootstrap: API key already exists (id: %s)", keyID)
		return nil
	}

	if err := authSvc.CreateAPIKeyWithToken(ctx, "bootstrap", token); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	log.Printf("bootstrap: created API key")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
