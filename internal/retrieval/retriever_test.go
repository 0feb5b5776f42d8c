package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

type searcherFunc func(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error)

func (f searcherFunc) Search(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
	return f(ctx, userID, q, limit)
}

func fixedSearcher(candidates ...Candidate) searcherFunc {
	return func(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
		return candidates, nil
	}
}

func failingSearcher(err error) searcherFunc {
	return func(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
		return nil, err
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetriever_MergesBothRankers(t *testing.T) {
	sem := fixedSearcher(cand("A", 0, 0.9))
	kw := fixedSearcher(cand("B", 1, 4.0))
	r := NewRetriever(sem, kw, 0, discardLogger())

	results, err := r.Retrieve(context.Background(), "user-1", Query{Text: "annual leave", Vector: []float32{0.1}}, mergeProfile(2, 0.5, 0.0))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, resultIDs(results))
}

func TestRetriever_DegradesWhenOneRankerFails(t *testing.T) {
	sem := failingSearcher(errors.New("qdrant unreachable"))
	kw := fixedSearcher(cand("K1", 0, 2.0), cand("K2", 1, 1.0))
	r := NewRetriever(sem, kw, 0, discardLogger())

	results, err := r.Retrieve(context.Background(), "user-1", Query{Text: "overtime"}, mergeProfile(4, 0.5, 0.0))

	require.NoError(t, err)
	assert.Equal(t, []string{"K1", "K2"}, resultIDs(results))
	for _, res := range results {
		assert.Equal(t, "keyword", res.Source)
	}
}

func TestRetriever_BothRankersFail(t *testing.T) {
	boom := errors.New("down")
	r := NewRetriever(failingSearcher(boom), failingSearcher(boom), 0, discardLogger())

	_, err := r.Retrieve(context.Background(), "user-1", Query{Text: "q"}, mergeProfile(2, 0.5, 0.0))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRetriever_SlowRankerDegrades(t *testing.T) {
	slow := searcherFunc(func(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	kw := fixedSearcher(cand("K1", 0, 2.0))
	r := NewRetriever(slow, kw, 20*time.Millisecond, discardLogger())

	results, err := r.Retrieve(context.Background(), "user-1", Query{Text: "q"}, mergeProfile(2, 0.5, 0.0))

	require.NoError(t, err)
	assert.Equal(t, []string{"K1"}, resultIDs(results))
}

func TestRetriever_InvalidProfile(t *testing.T) {
	r := NewRetriever(fixedSearcher(), fixedSearcher(), 0, discardLogger())
	p := profile.Default()
	p.TopK = 0

	_, err := r.Retrieve(context.Background(), "user-1", Query{Text: "q"}, p)

	assert.ErrorIs(t, err, profile.ErrInvalidProfile)
}

func TestRetriever_PassesLimitAndUser(t *testing.T) {
	var gotUser string
	var gotLimit int
	sem := searcherFunc(func(ctx context.Context, userID string, q Query, limit int) ([]Candidate, error) {
		gotUser, gotLimit = userID, limit
		return nil, nil
	})
	r := NewRetriever(sem, fixedSearcher(), 0, discardLogger())

	_, err := r.Retrieve(context.Background(), "user-42", Query{Text: "q"}, mergeProfile(7, 1.0, 0.0))

	require.NoError(t, err)
	assert.Equal(t, "user-42", gotUser)
	assert.Equal(t, 7, gotLimit)
}
