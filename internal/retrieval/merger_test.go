package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

func mergeProfile(topK int, ratio, threshold float64) profile.Profile {
	p := profile.Default()
	p.TopK = topK
	p.SemanticRatio = ratio
	p.RelevanceThreshold = threshold
	return p
}

func cand(id string, index int, score float64) Candidate {
	return Candidate{ChunkID: id, DocumentID: "doc-1", Index: index, Score: score}
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	return ids
}

func TestMerge_QuotaAndBlend(t *testing.T) {
	semantic := []Candidate{cand("A", 0, 0.9), cand("B", 1, 0.4)}
	keyword := []Candidate{cand("B", 1, 5.0), cand("C", 2, 1.0)}

	results := Merge(semantic, keyword, mergeProfile(2, 0.5, 0.3))

	// One slot each: A from the semantic side, B from the keyword side, both
	// normalized to 1.0 within their list and blended to 0.5. C never gets a
	// slot. The A/B tie breaks on document order.
	require.Len(t, results, 2)
	assert.Equal(t, []string{"A", "B"}, resultIDs(results))
	assert.InDelta(t, 0.5, results[0].Blended, 1e-9)
	assert.InDelta(t, 0.5, results[1].Blended, 1e-9)
	assert.Equal(t, "semantic", results[0].Source)
	assert.Equal(t, "keyword", results[1].Source)
}

func TestMerge_ChunkInBothLists(t *testing.T) {
	semantic := []Candidate{cand("X", 0, 0.9), cand("Y", 1, 0.1)}
	keyword := []Candidate{cand("X", 0, 3.0), cand("Z", 2, 1.0)}

	results := Merge(semantic, keyword, mergeProfile(4, 0.5, 0.0))

	require.NotEmpty(t, results)
	assert.Equal(t, "X", results[0].ChunkID)
	assert.Equal(t, "both", results[0].Source)
	assert.InDelta(t, 1.0, results[0].Blended, 1e-9)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].KeywordScore, 1e-9)
}

func TestMerge_ThresholdFiltersAfterBlending(t *testing.T) {
	semantic := []Candidate{cand("X", 0, 0.9), cand("Y", 1, 0.1)}
	keyword := []Candidate{cand("X", 0, 3.0), cand("Z", 2, 1.0)}

	results := Merge(semantic, keyword, mergeProfile(4, 0.5, 0.3))

	// Y and Z normalize to 0 within their lists, so their blended score falls
	// below the threshold even though their raw scores are positive.
	assert.Equal(t, []string{"X"}, resultIDs(results))
}

func TestMerge_RatioExtremes(t *testing.T) {
	semantic := []Candidate{cand("S1", 0, 0.9), cand("S2", 1, 0.5)}
	keyword := []Candidate{cand("K1", 2, 4.0), cand("K2", 3, 2.0)}

	// ratio=1: all slots are semantic, keyword results never surface.
	results := Merge(semantic, keyword, mergeProfile(2, 1.0, 0.0))
	assert.Equal(t, []string{"S1", "S2"}, resultIDs(results))

	// ratio=0: pure keyword search.
	results = Merge(semantic, keyword, mergeProfile(2, 0.0, 0.0))
	assert.Equal(t, []string{"K1", "K2"}, resultIDs(results))
}

func TestMerge_SingleCandidateNormalizesToOne(t *testing.T) {
	semantic := []Candidate{cand("A", 0, 0.42)}

	results := Merge(semantic, nil, mergeProfile(2, 1.0, 0.5))

	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].Blended, 1e-9)
}

func TestMerge_EqualScoresNormalizeToOne(t *testing.T) {
	semantic := []Candidate{cand("A", 0, 0.7), cand("B", 1, 0.7), cand("C", 2, 0.7)}

	results := Merge(semantic, nil, mergeProfile(3, 1.0, 0.5))

	require.Len(t, results, 3)
	for _, r := range results {
		assert.InDelta(t, 1.0, r.Blended, 1e-9)
	}
	// Equal blended scores fall back to document order.
	assert.Equal(t, []string{"A", "B", "C"}, resultIDs(results))
}

func TestMerge_EmptyInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil, mergeProfile(5, 0.5, 0.3)))

	p := mergeProfile(0, 0.5, 0.3)
	results := Merge([]Candidate{cand("A", 0, 0.9)}, nil, p)
	assert.Empty(t, results)
}

func TestMerge_TruncatesToTopK(t *testing.T) {
	semantic := make([]Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		semantic = append(semantic, cand(string(rune('a'+i)), i, float64(10-i)))
	}

	results := Merge(semantic, nil, mergeProfile(3, 1.0, 0.0))

	assert.Equal(t, []string{"a", "b", "c"}, resultIDs(results))
}

func TestMerge_Deterministic(t *testing.T) {
	semantic := []Candidate{cand("A", 0, 0.9), cand("B", 1, 0.4), cand("C", 2, 0.4)}
	keyword := []Candidate{cand("B", 1, 5.0), cand("D", 3, 1.0)}
	p := mergeProfile(4, 0.6, 0.1)

	first := Merge(semantic, keyword, p)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Merge(semantic, keyword, p))
	}
}
