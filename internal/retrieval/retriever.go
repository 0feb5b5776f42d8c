package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

const defaultSearchTimeout = 5 * time.Second

// Retriever runs the semantic and keyword rankers concurrently and merges
// their results. A ranker that fails or times out degrades to an empty list;
// the query only fails when both rankers do.
type Retriever struct {
	semantic Searcher
	keyword  Searcher
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRetriever creates a retriever over the two rankers. A timeout of zero
// selects the default per-ranker deadline.
func NewRetriever(semantic, keyword Searcher, timeout time.Duration, logger *slog.Logger) *Retriever {
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		semantic: semantic,
		keyword:  keyword,
		timeout:  timeout,
		logger:   logger,
	}
}

// Retrieve runs hybrid search for a user's query under the given profile.
func (r *Retriever) Retrieve(ctx context.Context, userID string, q Query, p profile.Profile) ([]Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var (
		semList, kwList []Candidate
		semErr, kwErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semList, semErr = r.search(gctx, r.semantic, "semantic", userID, q, p.TopK)
		return nil
	})
	g.Go(func() error {
		kwList, kwErr = r.search(gctx, r.keyword, "keyword", userID, q, p.TopK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if semErr != nil && kwErr != nil {
		return nil, fmt.Errorf("semantic: %v; keyword: %v: %w", semErr, kwErr, ErrStoreUnavailable)
	}

	return Merge(semList, kwList, p), nil
}

// search runs one ranker under the per-ranker deadline. Failures are logged
// and surfaced to the caller, which decides whether degradation is possible.
func (r *Retriever) search(ctx context.Context, s Searcher, name, userID string, q Query, limit int) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	candidates, err := s.Search(ctx, userID, q, limit)
	if err != nil {
		r.logger.Warn("ranker failed, degrading to remaining results",
			"ranker", name,
			"user_id", userID,
			"error", err)
		return nil, err
	}
	return candidates, nil
}
