// Package retrieval implements hybrid search over a user's document chunks.
//
// Two rankers run side by side: semantic search over embeddings in the vector
// store and keyword search over Postgres full-text indexes. Their results are
// normalized, quota-sampled by the profile's semantic ratio, and blended into
// a single relevance-ordered list.
package retrieval

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is returned when no ranker could produce results, e.g.
// both the vector store and the database are unreachable. A single failing
// ranker degrades to its counterpart instead.
var ErrStoreUnavailable = errors.New("retrieval stores unavailable")

// Query carries both representations of the user's question: the raw text for
// keyword search and its embedding for semantic search.
type Query struct {
	Text   string
	Vector []float32
}

// Candidate is a chunk proposed by one ranker, carrying that ranker's raw
// score. Raw scores from different rankers are not comparable; Merge
// normalizes them before blending.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Index      int    // chunk position within its document
	Content    string
	Section    string
	Score      float64
}

// Result is a merged retrieval result.
type Result struct {
	Candidate

	// SemanticScore and KeywordScore are the min-max normalized per-ranker
	// scores, zero when the chunk was absent from that ranker's list.
	SemanticScore float64
	KeywordScore  float64

	// Blended is the ratio-weighted combination the final ordering uses.
	Blended float64

	// Source records which rankers proposed the chunk: "semantic", "keyword",
	// or "both".
	Source string
}

// Searcher is one ranker over a user's chunks.
type Searcher interface {
	Search(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error)
}
