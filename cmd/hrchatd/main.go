package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/auth"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/config"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/embedder"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/llm"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository/postgres"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/retrieval"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/server"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/service"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up structured logging
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting HR chat service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	// Initialize repositories
	userRepo := postgres.NewUserRepo(db)
	documentRepo := postgres.NewDocumentRepo(db)
	conversationRepo := postgres.NewConversationRepo(db)
	profileRepo := postgres.NewProfileRepo(db)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant")

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Initialize Ollama LLM
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	// Worker pool for batch ingestion
	pool, err := ants.NewPool(cfg.IngestWorkers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	// Auth
	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Expiry = cfg.JWTExpiry
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Hybrid retriever over the vector store and Postgres full-text search
	retriever := retrieval.NewRetriever(
		retrieval.NewSemanticSearcher(vectorStore),
		retrieval.NewKeywordSearcher(documentRepo),
		cfg.SearchTimeout,
		logger,
	)

	// Initialize services
	defaultProfile, err := cfg.DefaultProfile()
	if err != nil {
		return fmt.Errorf("invalid default profile configuration: %w", err)
	}
	profileSvc := service.NewProfileService(profileRepo, defaultProfile, logger)
	authSvc := service.NewAuthService(userRepo, vectorStore, jwtManager, logger)
	documentSvc := service.NewDocumentService(documentRepo, userRepo, profileSvc, embed, vectorStore, pool, logger)
	chatSvc := service.NewChatService(conversationRepo, userRepo, profileSvc, embed, retriever, llmClient, logger)

	// Create HTTP server
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         logger,
		AllowedOrigins: []string{"*"}, // Configure in production
		DB:             db.Pool,
		Handlers:       server.NewHandlers(authSvc, documentSvc, chatSvc, profileSvc, jwtManager, logger),
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.UserRepository     = (*postgres.UserRepo)(nil)
	_ repository.DocumentRepository = (*postgres.DocumentRepo)(nil)
	_ retrieval.ChunkIndex          = (*postgres.DocumentRepo)(nil)
	_ vectorstore.VectorStore       = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder             = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                       = (*llm.OllamaClient)(nil)
)
