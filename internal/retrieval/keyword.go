package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
)

// ChunkIndex is the slice of the document repository the keyword ranker needs.
type ChunkIndex interface {
	SearchChunks(ctx context.Context, userID uuid.UUID, query string, limit int) ([]repository.ChunkSearchResult, error)
}

// KeywordSearcher ranks chunks by Postgres full-text rank.
type KeywordSearcher struct {
	index ChunkIndex
}

func NewKeywordSearcher(index ChunkIndex) *KeywordSearcher {
	return &KeywordSearcher{index: index}
}

func (s *KeywordSearcher) Search(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	hits, err := s.index.SearchChunks(ctx, uid, q.Text, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, Candidate{
			ChunkID:    h.ID.String(),
			DocumentID: h.DocumentID.String(),
			Index:      h.ChunkIndex,
			Content:    h.Content,
			Section:    h.SectionLabel,
			Score:      float64(h.Rank),
		})
	}
	return candidates, nil
}

var _ Searcher = (*KeywordSearcher)(nil)
