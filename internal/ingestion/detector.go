// Package ingestion handles document processing: structure detection,
// segmentation, and pipeline orchestration.
package ingestion

import (
	"regexp"
	"sort"
)

// structuredMarkerMin is the number of distinct boundary markers a document
// needs before it is treated as structured.
const structuredMarkerMin = 3

// Boundary marks the start of a structural section in the normalized text.
type Boundary struct {
	// Offset is the byte offset of the marker in the normalized text.
	Offset int

	// Label is the marker text itself, e.g. "第三條" or "Article 2".
	Label string
}

// Shape describes how a document should be segmented: by section boundaries
// when structured, by paragraph breaks otherwise.
type Shape struct {
	Structured bool
	Boundaries []Boundary
}

// boundaryPatterns are the marker families recognized in HR and legal
// documents. Chinese legal articles appear both with numerals spelled out
// (第三條) and with digits (第3條).
var boundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`第[一二三四五六七八九十百千]+條`),
	regexp.MustCompile(`第[0-9]+條`),
	regexp.MustCompile(`(?i)Article\s+[0-9]+`),
	regexp.MustCompile(`(?i)Section\s+[0-9]+`),
}

// DetectStructure scans text for section-boundary markers across all pattern
// families. Matches are merged into a single offset-sorted list; coincident
// matches from different families count once. A document with at least
// structuredMarkerMin distinct boundaries is considered structured. Zero
// matches is not an error, it simply yields an unstructured shape.
func DetectStructure(text string) Shape {
	var boundaries []Boundary
	for _, re := range boundaryPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			boundaries = append(boundaries, Boundary{Offset: loc[0], Label: text[loc[0]:loc[1]]})
		}
	}

	sort.SliceStable(boundaries, func(i, j int) bool {
		return boundaries[i].Offset < boundaries[j].Offset
	})

	// Drop coincident matches, keeping the first family's label.
	deduped := boundaries[:0]
	for _, b := range boundaries {
		if len(deduped) > 0 && deduped[len(deduped)-1].Offset == b.Offset {
			continue
		}
		deduped = append(deduped, b)
	}

	return Shape{
		Structured: len(deduped) >= structuredMarkerMin,
		Boundaries: deduped,
	}
}
