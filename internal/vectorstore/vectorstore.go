// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// Chunk represents a document chunk with its embedding
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Vector     []float32 // Dense vector from embedding model
	Metadata   map[string]string
}

// SearchResult represents a search result from the vector store
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32
	Metadata   map[string]string
}

// VectorStore defines the interface for vector storage operations.
// Data is isolated per user: every operation is scoped to one user's collection.
type VectorStore interface {
	// EnsureCollection creates the user's collection if it does not exist yet
	EnsureCollection(ctx context.Context, userID string, dimension int) error

	// DeleteCollection deletes a user's collection, dropping every chunk the
	// user ever indexed. Called when the account is deleted.
	DeleteCollection(ctx context.Context, userID string) error

	// Upsert inserts or updates chunks in the user's collection
	Upsert(ctx context.Context, userID string, chunks []Chunk) error

	// Search performs cosine similarity search and returns up to topK results
	// ordered by descending score. Scores are raw similarities; thresholding
	// happens downstream after hybrid merging.
	Search(ctx context.Context, userID string, vector []float32, topK int) ([]SearchResult, error)

	// Delete removes all chunks belonging to a document
	Delete(ctx context.Context, userID string, documentID string) error
}
