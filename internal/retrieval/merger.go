package retrieval

import (
	"math"
	"sort"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

// Merge blends a semantic and a keyword result list into one ranked list.
//
// Each list is min-max normalized independently, then sampled by quota:
// round(top_k * semantic_ratio) slots go to the semantic list and the rest to
// the keyword list. The union of the samples is scored as
//
//	blended = ratio*semantic + (1-ratio)*keyword
//
// with a missing side contributing zero, ordered by blended score with
// document-order tie-breaking, filtered by the relevance threshold, and
// truncated to top_k. The same inputs always produce the same output.
func Merge(semantic, keyword []Candidate, p profile.Profile) []Result {
	if p.TopK <= 0 {
		return []Result{}
	}

	sem := sortByScore(semantic)
	kw := sortByScore(keyword)
	semNorm := normalize(sem)
	kwNorm := normalize(kw)

	semQuota := int(math.Round(float64(p.TopK) * p.SemanticRatio))
	if semQuota > p.TopK {
		semQuota = p.TopK
	}
	kwQuota := p.TopK - semQuota
	if semQuota > len(sem) {
		semQuota = len(sem)
	}
	if kwQuota > len(kw) {
		kwQuota = len(kw)
	}

	merged := make(map[string]*Result)
	var order []string

	for i, c := range sem[:semQuota] {
		r := &Result{Candidate: c, SemanticScore: semNorm[i], Source: "semantic"}
		merged[c.ChunkID] = r
		order = append(order, c.ChunkID)
	}
	for i, c := range kw[:kwQuota] {
		if r, ok := merged[c.ChunkID]; ok {
			r.KeywordScore = kwNorm[i]
			r.Source = "both"
			continue
		}
		r := &Result{Candidate: c, KeywordScore: kwNorm[i], Source: "keyword"}
		merged[c.ChunkID] = r
		order = append(order, c.ChunkID)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := merged[id]
		r.Blended = p.SemanticRatio*r.SemanticScore + (1-p.SemanticRatio)*r.KeywordScore
		if r.Blended < p.RelevanceThreshold {
			continue
		}
		results = append(results, *r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Blended != b.Blended {
			return a.Blended > b.Blended
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Index < b.Index
	})

	if len(results) > p.TopK {
		results = results[:p.TopK]
	}
	return results
}

// normalize min-max scales candidate scores to [0, 1] in list order. A list
// whose scores are all equal (including a single-element list) normalizes to
// all ones, since its scores carry no ordering information.
func normalize(candidates []Candidate) []float64 {
	if len(candidates) == 0 {
		return nil
	}

	min, max := candidates[0].Score, candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}

	norm := make([]float64, len(candidates))
	if max == min {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, c := range candidates {
		norm[i] = (c.Score - min) / (max - min)
	}
	return norm
}

// sortByScore returns a copy sorted by descending raw score, preserving the
// input order among equal scores.
func sortByScore(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}
