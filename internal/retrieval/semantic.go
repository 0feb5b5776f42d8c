package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/vectorstore"
)

// SemanticSearcher ranks chunks by cosine similarity in the vector store.
type SemanticSearcher struct {
	store vectorstore.VectorStore
}

func NewSemanticSearcher(store vectorstore.VectorStore) *SemanticSearcher {
	return &SemanticSearcher{store: store}
}

func (s *SemanticSearcher) Search(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
	if len(q.Vector) == 0 {
		return nil, errors.New("query vector is empty")
	}

	results, err := s.store.Search(ctx, userID, q.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		c := Candidate{
			ChunkID:    r.ID,
			DocumentID: r.DocumentID,
			Content:    r.Content,
			Section:    r.Metadata["section"],
			Score:      float64(r.Score),
		}
		if idx, err := strconv.Atoi(r.Metadata["chunk_index"]); err == nil {
			c.Index = idx
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

var _ Searcher = (*SemanticSearcher)(nil)
