package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/embedder"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/ingestion"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/vectorstore"
)

// DocumentService handles document ingestion and management.
type DocumentService struct {
	docRepo  repository.DocumentRepository
	userRepo repository.UserRepository
	profiles *ProfileService
	embedder embedder.Embedder
	vectorDB vectorstore.VectorStore
	pipeline *ingestion.Pipeline
	pool     *ants.Pool
	logger   *slog.Logger
}

// NewDocumentService creates a new DocumentService. The worker pool bounds
// how many documents are processed concurrently during batch uploads.
func NewDocumentService(
	docRepo repository.DocumentRepository,
	userRepo repository.UserRepository,
	profiles *ProfileService,
	emb embedder.Embedder,
	vectorDB vectorstore.VectorStore,
	pool *ants.Pool,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docRepo:  docRepo,
		userRepo: userRepo,
		profiles: profiles,
		embedder: emb,
		vectorDB: vectorDB,
		pipeline: ingestion.NewPipeline(nil),
		pool:     pool,
		logger:   logger,
	}
}

// IngestInput is one document to ingest.
type IngestInput struct {
	Title    string
	Content  string
	Metadata map[string]string
}

// Ingest chunks, embeds, and indexes one document for a user. On success the
// document is ready for retrieval; on failure it is recorded as failed with
// the error message so the user can see what went wrong.
func (s *DocumentService) Ingest(ctx context.Context, userID uuid.UUID, input IngestInput) (*repository.Document, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	p := s.profiles.Resolve(ctx, user.ProfileName)

	result, err := s.pipeline.Process(ctx, input.Content, p)
	if err != nil {
		return nil, err
	}

	// Same content uploaded twice is a no-op.
	if existing, err := s.docRepo.GetByHash(ctx, userID, result.ContentHash); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	title := input.Title
	if title == "" {
		title = "Untitled Document"
	}

	now := time.Now()
	doc := &repository.Document{
		ID:          result.DocumentID,
		UserID:      userID,
		Title:       title,
		ContentHash: result.ContentHash,
		Structured:  result.Structured,
		Status:      repository.DocumentStatusProcessing,
		Metadata:    mergeMetadata(input.Metadata, map[string]string{"title": title}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	if err := s.index(ctx, userID, doc, result); err != nil {
		s.markFailed(ctx, doc, err)
		return doc, err
	}

	doc.Status = repository.DocumentStatusReady
	doc.ChunkCount = len(result.Chunks)
	doc.UpdatedAt = time.Now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return doc, fmt.Errorf("failed to mark document ready: %w", err)
	}
	return doc, nil
}

// index embeds the chunks and writes them to both stores. The vector store is
// written first; the relational chunk set is swapped atomically afterwards so
// keyword search only ever sees complete documents.
func (s *DocumentService) index(ctx context.Context, userID uuid.UUID, doc *repository.Document, result *ingestion.PipelineResult) error {
	texts := make([]string, len(result.Chunks))
	for i, c := range result.Chunks {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if err := s.vectorDB.EnsureCollection(ctx, userID.String(), s.embedder.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	chunkIDs := make([]uuid.UUID, len(result.Chunks))
	vectorChunks := make([]vectorstore.Chunk, len(result.Chunks))
	docChunks := make([]*repository.DocumentChunk, len(result.Chunks))
	now := time.Now()
	for i, c := range result.Chunks {
		chunkIDs[i] = uuid.New()

		metadata := mergeMetadata(c.Metadata, map[string]string{
			"title":       doc.Title,
			"chunk_index": strconv.Itoa(c.Index),
		})
		vectorChunks[i] = vectorstore.Chunk{
			ID:         chunkIDs[i].String(),
			DocumentID: doc.ID.String(),
			Content:    c.Text,
			Vector:     embeddings[i],
			Metadata:   metadata,
		}
		docChunks[i] = &repository.DocumentChunk{
			ID:           chunkIDs[i],
			DocumentID:   doc.ID,
			ChunkIndex:   c.Index,
			Content:      c.Text,
			SpanStart:    c.Span.Start,
			SpanEnd:      c.Span.End,
			SectionLabel: c.Label,
			Metadata:     metadata,
			CreatedAt:    now,
		}
	}

	if err := s.vectorDB.Upsert(ctx, userID.String(), vectorChunks); err != nil {
		return fmt.Errorf("vector storage failed: %w", err)
	}
	if err := s.docRepo.ReplaceChunks(ctx, doc.ID, docChunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// BatchResult pairs one batch input with its outcome.
type BatchResult struct {
	Title    string
	Document *repository.Document
	Err      error
}

// IngestBatch processes several documents over the worker pool and returns
// one result per input, in input order. A failing document does not stop the
// rest of the batch.
func (s *DocumentService) IngestBatch(ctx context.Context, userID uuid.UUID, inputs []IngestInput) []BatchResult {
	results := make([]BatchResult, len(inputs))

	var wg sync.WaitGroup
	for i, input := range inputs {
		i, input := i, input
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			doc, err := s.Ingest(ctx, userID, input)
			results[i] = BatchResult{Title: input.Title, Document: doc, Err: err}
			if err != nil {
				s.logger.Warn("batch ingest item failed",
					"user_id", userID, "title", input.Title, "error", err)
			}
		}
		if err := s.pool.Submit(submit); err != nil {
			// Pool rejected the task (released or overloaded); run inline.
			submit()
		}
	}
	wg.Wait()

	return results
}

// Get retrieves one of the user's documents
func (s *DocumentService) Get(ctx context.Context, userID, docID uuid.UUID) (*repository.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

// List retrieves the user's documents with pagination
func (s *DocumentService) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*repository.Document, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.docRepo.List(ctx, userID, status, limit, offset)
}

// GetChunks retrieves a document's chunks in document order
func (s *DocumentService) GetChunks(ctx context.Context, userID, docID uuid.UUID, limit, offset int) ([]*repository.DocumentChunk, error) {
	if _, err := s.Get(ctx, userID, docID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.docRepo.GetChunks(ctx, docID, limit, offset)
}

// Delete removes a document from both stores
func (s *DocumentService) Delete(ctx context.Context, userID, docID uuid.UUID) error {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return err
	}

	if err := s.vectorDB.Delete(ctx, userID.String(), doc.ID.String()); err != nil {
		// The relational rows are the source of truth; orphaned vectors are
		// re-created on the next ingest of the same document.
		s.logger.Warn("failed to delete vectors", "document_id", doc.ID, "error", err)
	}

	return s.docRepo.Delete(ctx, doc.ID)
}

func (s *DocumentService) markFailed(ctx context.Context, doc *repository.Document, cause error) {
	doc.Status = repository.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	doc.UpdatedAt = time.Now()
	if err := s.docRepo.Update(ctx, doc); err != nil {
		s.logger.Error("failed to record document failure", "document_id", doc.ID, "error", err)
	}
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
