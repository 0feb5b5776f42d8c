package ingestion

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

var (
	// ErrEmptyContent is returned when a document is empty or whitespace-only
	// after normalization. The caller sent degenerate input; retrying will
	// not help.
	ErrEmptyContent = errors.New("empty content")

	// ErrChunkInvariant is returned when segmentation produces chunks that
	// break the span-tiling contract. It indicates a bug, not bad input, and
	// aborts processing for the document.
	ErrChunkInvariant = errors.New("chunk invariant violated")
)

// Span is a half-open byte range [Start, End) into the normalized text.
// Chunk spans tile the normalized text exactly: concatenating the spans of
// all chunks in index order reconstructs it with no gaps and no overlap.
type Span struct {
	Start int
	End   int
}

// Chunk is one retrievable unit of a document.
type Chunk struct {
	// Index is the position of the chunk within its document, starting at 0
	// and strictly increasing.
	Index int

	// Text is what gets embedded and returned as evidence: the overlap
	// prefix carried from the preceding sibling (when the chunk came out of
	// an oversize split) followed by the trimmed body.
	Text string

	// Span locates the chunk body in the normalized text. Spans, not Text,
	// are authoritative for reconstruction since Text may duplicate overlap.
	Span Span

	// Label is the structural marker that opened this section ("第三條",
	// "Article 2"). Empty for unstructured documents and preamble chunks.
	Label string

	Metadata map[string]string
}

// segment is the working unit inside the segmentation passes.
type segment struct {
	span    Span
	label   string
	overlap string // trailing text of the previous sibling in a split
	split   bool
}

var (
	horizontalWS = regexp.MustCompile(`[ \t]+`)
	newlineRuns  = regexp.MustCompile(`\n{3,}`)
	paragraphSep = regexp.MustCompile(`\n\s*\n`)
)

// Normalize collapses horizontal whitespace runs, squeezes blank-line runs
// down to a single paragraph break, and trims the result. Paragraph breaks
// are preserved because the unstructured strategy cuts on them.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalWS.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Segment splits text into ordered, size-bounded chunks under p.
//
// The document shape is decided once: structured documents are cut at
// section-boundary markers, unstructured ones at paragraph breaks. Base
// segments longer than p.ChunkSize are re-split at sentence boundaries with
// p.ChunkOverlap characters of trailing context carried forward; segments
// shorter than p.MinChunkSize are merged into a neighbor unless the merge
// would exceed p.ChunkSize.
//
// Identical (text, p) input always yields identical chunk boundaries.
func Segment(text string, p profile.Profile) ([]Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	normalized := Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyContent
	}

	return segmentShaped(normalized, DetectStructure(normalized), p)
}

// segmentShaped runs the segmentation passes on already-normalized text with
// a precomputed shape. Callers that need the normalized text or the shape for
// themselves use this to avoid recomputing them.
func segmentShaped(normalized string, shape Shape, p profile.Profile) ([]Chunk, error) {
	var segs []segment
	if shape.Structured {
		segs = boundarySegments(normalized, shape.Boundaries)
	} else {
		segs = paragraphSegments(normalized)
	}

	segs = splitOversize(normalized, segs, p)
	segs = mergeUndersize(normalized, segs, p)

	chunks, err := buildChunks(normalized, segs, shape)
	if err != nil {
		return nil, err
	}
	if err := verifySpans(normalized, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// boundarySegments cuts the text at each boundary offset, one segment per
// section. Text before the first marker becomes an unlabeled preamble
// segment so no content is lost.
func boundarySegments(text string, bounds []Boundary) []segment {
	segs := make([]segment, 0, len(bounds)+1)
	if len(bounds) == 0 {
		return []segment{{span: Span{0, len(text)}}}
	}
	if bounds[0].Offset > 0 {
		segs = append(segs, segment{span: Span{0, bounds[0].Offset}})
	}
	for i, b := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1].Offset
		}
		segs = append(segs, segment{span: Span{b.Offset, end}, label: b.Label})
	}
	return segs
}

// paragraphSegments cuts the text at blank-line runs. Each segment's span
// extends through the separator that follows it so the spans tile the text.
func paragraphSegments(text string) []segment {
	var segs []segment
	start := 0
	for _, sep := range paragraphSep.FindAllStringIndex(text, -1) {
		if sep[0] <= start {
			continue
		}
		segs = append(segs, segment{span: Span{start, sep[1]}})
		start = sep[1]
	}
	if start < len(text) {
		segs = append(segs, segment{span: Span{start, len(text)}})
	}
	return segs
}

// segSize is the chunk length measure: runes of the trimmed body.
func segSize(text string, s segment) int {
	return utf8.RuneCountInString(strings.TrimSpace(text[s.span.Start:s.span.End]))
}

func spanRunes(text string, s Span) int {
	return utf8.RuneCountInString(text[s.Start:s.End])
}

// splitOversize re-splits any segment longer than p.ChunkSize at sentence
// boundaries, greedily packing sentences up to the limit. Consecutive
// sub-segments carry the trailing p.ChunkOverlap runes of their predecessor
// as an overlap prefix to preserve cross-boundary context.
func splitOversize(text string, segs []segment, p profile.Profile) []segment {
	var out []segment
	for _, seg := range segs {
		if segSize(text, seg) <= p.ChunkSize {
			out = append(out, seg)
			continue
		}

		sentences := sentenceSpans(text, seg.span)
		sentences = hardSplitLong(text, sentences, p.ChunkSize)

		var packed []Span
		cur := Span{sentences[0].Start, sentences[0].Start}
		curSize := 0
		for _, sp := range sentences {
			n := spanRunes(text, sp)
			if curSize > 0 && curSize+n > p.ChunkSize {
				packed = append(packed, cur)
				cur = Span{sp.Start, sp.Start}
				curSize = 0
			}
			cur.End = sp.End
			curSize += n
		}
		if cur.End > cur.Start {
			packed = append(packed, cur)
		}

		for i, sp := range packed {
			sub := segment{span: sp, label: seg.label, split: true}
			if i > 0 {
				prev := strings.TrimSpace(text[packed[i-1].Start:packed[i-1].End])
				sub.overlap = overlapTail(prev, p.ChunkOverlap)
			}
			out = append(out, sub)
		}
	}
	return out
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// sentenceSpans cuts a segment span into sentence spans that tile it.
// Terminator runs and the whitespace after them are absorbed into the
// sentence they end.
func sentenceSpans(text string, seg Span) []Span {
	var spans []Span
	start := seg.Start
	i := seg.Start
	terminated := false
	for i < seg.End {
		r, size := utf8.DecodeRuneInString(text[i:seg.End])
		if terminated {
			if isSentenceTerminator(r) || unicode.IsSpace(r) {
				i += size
				continue
			}
			spans = append(spans, Span{start, i})
			start = i
			terminated = false
			continue
		}
		i += size
		if isSentenceTerminator(r) {
			terminated = true
		}
	}
	if start < seg.End {
		spans = append(spans, Span{start, seg.End})
	}
	return spans
}

// hardSplitLong cuts any single sentence longer than limit into limit-sized
// rune windows so that no chunk can exceed the size bound.
func hardSplitLong(text string, spans []Span, limit int) []Span {
	var out []Span
	for _, sp := range spans {
		if spanRunes(text, sp) <= limit {
			out = append(out, sp)
			continue
		}
		start := sp.Start
		count := 0
		for i := sp.Start; i < sp.End; {
			_, size := utf8.DecodeRuneInString(text[i:sp.End])
			i += size
			count++
			if count == limit {
				out = append(out, Span{start, i})
				start = i
				count = 0
			}
		}
		if start < sp.End {
			out = append(out, Span{start, sp.End})
		}
	}
	return out
}

// overlapTail returns the last overlap runes of text, advanced to the first
// space when one exists so a word is not cut in half. Chinese text has no
// spaces and is carried whole.
func overlapTail(text string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= overlap {
		return text
	}
	tail := string(runes[len(runes)-overlap:])
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		if trimmed := strings.TrimSpace(tail[i+1:]); trimmed != "" {
			return trimmed
		}
	}
	return tail
}

// mergeUndersize merges segments shorter than p.MinChunkSize forward into
// the next segment, or backward into the previous one when the forward merge
// would exceed p.ChunkSize. A short segment that fits neither way is kept
// standalone rather than blowing the size bound.
func mergeUndersize(text string, segs []segment, p profile.Profile) []segment {
	if p.MinChunkSize <= 0 || len(segs) < 2 {
		return segs
	}

	var out []segment
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		size := segSize(text, seg)
		if size >= p.MinChunkSize {
			out = append(out, seg)
			continue
		}

		if i+1 < len(segs) && size+segSize(text, segs[i+1]) <= p.ChunkSize {
			next := segs[i+1]
			label := seg.label
			if label == "" {
				label = next.label
			}
			// The merged segment now contains the context the next
			// segment's overlap prefix duplicated, so the prefix is dropped.
			segs[i+1] = segment{
				span:    Span{seg.span.Start, next.span.End},
				label:   label,
				overlap: seg.overlap,
				split:   seg.split && next.split,
			}
			continue
		}

		if len(out) > 0 && segSize(text, out[len(out)-1])+size <= p.ChunkSize {
			prev := &out[len(out)-1]
			prev.span.End = seg.span.End
			if prev.label == "" {
				prev.label = seg.label
			}
			continue
		}

		out = append(out, seg)
	}
	return out
}

func buildChunks(text string, segs []segment, shape Shape) ([]Chunk, error) {
	strategy := "paragraph"
	if shape.Structured {
		strategy = "structured"
	}

	chunks := make([]Chunk, 0, len(segs))
	for i, seg := range segs {
		body := strings.TrimSpace(text[seg.span.Start:seg.span.End])
		if body == "" {
			return nil, fmt.Errorf("%w: empty chunk body at index %d", ErrChunkInvariant, i)
		}

		chunkText := body
		metadata := map[string]string{
			"strategy":   strategy,
			"char_count": strconv.Itoa(utf8.RuneCountInString(body)),
		}
		if seg.overlap != "" {
			chunkText = seg.overlap + " " + body
			metadata["overlap_chars"] = strconv.Itoa(utf8.RuneCountInString(seg.overlap))
		}
		if seg.split {
			metadata["split"] = "true"
		}
		if seg.label != "" {
			metadata["section"] = seg.label
		}

		chunks = append(chunks, Chunk{
			Index:    i,
			Text:     chunkText,
			Span:     seg.span,
			Label:    seg.label,
			Metadata: metadata,
		})
	}
	return chunks, nil
}

// verifySpans checks the segmentation contract: indexes strictly increasing
// from 0 and spans tiling the normalized text exactly.
func verifySpans(text string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks produced for non-empty text", ErrChunkInvariant)
	}
	if chunks[0].Span.Start != 0 {
		return fmt.Errorf("%w: first span starts at %d", ErrChunkInvariant, chunks[0].Span.Start)
	}
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("%w: chunk %d has index %d", ErrChunkInvariant, i, c.Index)
		}
		if c.Span.Start >= c.Span.End {
			return fmt.Errorf("%w: chunk %d has degenerate span [%d,%d)", ErrChunkInvariant, i, c.Span.Start, c.Span.End)
		}
		if i > 0 && c.Span.Start != chunks[i-1].Span.End {
			return fmt.Errorf("%w: gap between chunks %d and %d", ErrChunkInvariant, i-1, i)
		}
	}
	if last := chunks[len(chunks)-1].Span.End; last != len(text) {
		return fmt.Errorf("%w: last span ends at %d, text has %d bytes", ErrChunkInvariant, last, len(text))
	}
	return nil
}
