package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

// PipelineResult holds the result of processing one document.
type PipelineResult struct {
	// DocumentID is a unique identifier for this processing run.
	DocumentID uuid.UUID

	// ContentHash is the SHA-256 hash of the original content, used to skip
	// re-processing unchanged uploads.
	ContentHash string

	// NormalizedText is the text the chunk spans refer to.
	NormalizedText string

	Structured bool
	Chunks     []Chunk
	Stats      PipelineStats
}

// PipelineStats contains statistics about a pipeline run.
type PipelineStats struct {
	OriginalChars   int
	ChunkCount      int
	TotalChunkChars int
	AvgChunkChars   int
	BoundaryCount   int
	ProcessingTime  time.Duration
}

// Pipeline turns raw extracted document text into chunks ready for
// embedding. It is stateless apart from default metadata; one document is
// processed at a time and many pipelines (or calls) may run in parallel.
type Pipeline struct {
	defaultMetadata map[string]string
}

// NewPipeline creates a pipeline. defaultMetadata is copied into every chunk
// without overriding chunk-level keys; it may be nil.
func NewPipeline(defaultMetadata map[string]string) *Pipeline {
	return &Pipeline{defaultMetadata: defaultMetadata}
}

// Process chunks content under p. Chunks are created once per run and are
// immutable; re-processing a document yields a fresh set the caller swaps in
// atomically.
func (pl *Pipeline) Process(ctx context.Context, content string, p profile.Profile) (*PipelineResult, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	normalized := Normalize(content)
	if normalized == "" {
		return nil, ErrEmptyContent
	}
	shape := DetectStructure(normalized)

	chunks, err := segmentShaped(normalized, shape, p)
	if err != nil {
		return nil, err
	}

	documentID := uuid.New()
	contentHash := hashContent(content)

	for i := range chunks {
		for k, v := range pl.defaultMetadata {
			if _, exists := chunks[i].Metadata[k]; !exists {
				chunks[i].Metadata[k] = v
			}
		}
		chunks[i].Metadata["document_id"] = documentID.String()
		chunks[i].Metadata["content_hash"] = contentHash
	}

	return &PipelineResult{
		DocumentID:     documentID,
		ContentHash:    contentHash,
		NormalizedText: normalized,
		Structured:     shape.Structured,
		Chunks:         chunks,
		Stats:          calculateStats(normalized, chunks, len(shape.Boundaries), time.Since(startTime)),
	}, nil
}

func calculateStats(normalized string, chunks []Chunk, boundaries int, elapsed time.Duration) PipelineStats {
	totalChars := 0
	for _, chunk := range chunks {
		totalChars += utf8.RuneCountInString(chunk.Text)
	}

	avgChars := 0
	if len(chunks) > 0 {
		avgChars = totalChars / len(chunks)
	}

	return PipelineStats{
		OriginalChars:   utf8.RuneCountInString(normalized),
		ChunkCount:      len(chunks),
		TotalChunkChars: totalChars,
		AvgChunkChars:   avgChars,
		BoundaryCount:   boundaries,
		ProcessingTime:  elapsed,
	}
}

// hashContent generates a SHA-256 hash of the content.
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(hash[:])
}
