package ingestion

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

func testProfile(chunkSize, overlap, minSize int) profile.Profile {
	p := profile.Default()
	p.ChunkSize = chunkSize
	p.ChunkOverlap = overlap
	p.MinChunkSize = minSize
	return p
}

// reconstruct concatenates chunk spans; the result must equal the normalized
// text byte for byte.
func reconstruct(normalized string, chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(normalized[c.Span.Start:c.Span.End])
	}
	return sb.String()
}

func assertRoundTrip(t *testing.T, text string, chunks []Chunk) {
	t.Helper()
	normalized := Normalize(text)
	if got := reconstruct(normalized, chunks); got != normalized {
		t.Errorf("span concatenation does not reconstruct normalized text\ngot:  %q\nwant: %q", got, normalized)
	}
}

func assertSizeBounds(t *testing.T, text string, chunks []Chunk, p profile.Profile) {
	t.Helper()
	normalized := Normalize(text)
	for i, c := range chunks {
		body := strings.TrimSpace(normalized[c.Span.Start:c.Span.End])
		n := utf8.RuneCountInString(body)
		if n > p.ChunkSize {
			t.Errorf("chunk %d body has %d chars, exceeds chunk_size %d", i, n, p.ChunkSize)
		}
		// +1 allows for the space joining the overlap prefix to the body.
		if total := utf8.RuneCountInString(c.Text); total > p.ChunkSize+p.ChunkOverlap+1 {
			t.Errorf("chunk %d text has %d chars, exceeds chunk_size+overlap %d", i, total, p.ChunkSize+p.ChunkOverlap)
		}
	}
}

func TestSegment_EmptyContent(t *testing.T) {
	p := profile.Default()

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		if _, err := Segment(input, p); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Segment(%q) error = %v, expected ErrEmptyContent", input, err)
		}
	}
}

func TestSegment_InvalidProfile(t *testing.T) {
	p := profile.Default()
	p.ChunkOverlap = p.ChunkSize

	if _, err := Segment("some text", p); !errors.Is(err, profile.ErrInvalidProfile) {
		t.Errorf("expected ErrInvalidProfile, got %v", err)
	}
}

func TestSegment_SingleParagraph(t *testing.T) {
	p := testProfile(1000, 100, 0)
	text := "The company grants fourteen days of paid annual leave to every employee."

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].Text != text {
		t.Errorf("chunk text = %q, expected original text", chunks[0].Text)
	}
	if chunks[0].Metadata["strategy"] != "paragraph" {
		t.Errorf("expected paragraph strategy, got %q", chunks[0].Metadata["strategy"])
	}
	assertRoundTrip(t, text, chunks)
}

func TestSegment_StructuredDocument(t *testing.T) {
	p := testProfile(1000, 100, 0)
	text := "公司規章前言。\n\n第一條 員工每日工作八小時。\n\n第二條 員工每年享有十四天特別休假。\n\n第三條 加班須事先申請主管核准。"

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected preamble + 3 article chunks, got %d", len(chunks))
	}

	if chunks[0].Label != "" {
		t.Errorf("preamble chunk should be unlabeled, got %q", chunks[0].Label)
	}
	wantLabels := []string{"第一條", "第二條", "第三條"}
	for i, want := range wantLabels {
		c := chunks[i+1]
		if c.Label != want {
			t.Errorf("chunk %d label = %q, expected %q", i+1, c.Label, want)
		}
		if c.Metadata["section"] != want {
			t.Errorf("chunk %d section metadata = %q, expected %q", i+1, c.Metadata["section"], want)
		}
		if !strings.HasPrefix(c.Text, want) {
			t.Errorf("chunk %d text %q should start with its marker", i+1, c.Text)
		}
		if c.Metadata["strategy"] != "structured" {
			t.Errorf("chunk %d strategy = %q, expected structured", i+1, c.Metadata["strategy"])
		}
	}
	assertRoundTrip(t, text, chunks)
}

func TestSegment_MergeAndSplitScenario(t *testing.T) {
	// Three paragraphs of roughly 200/50/600 chars with chunk_size=300 and
	// min_chunk_size=100: the 50-char paragraph merges into a neighbor and
	// the 600-char paragraph splits into two overlapping sub-chunks.
	p := testProfile(300, 30, 100)

	para1 := strings.TrimSpace(strings.Repeat("one two three four. ", 10)) // 199 chars
	para2 := strings.TrimSpace(strings.Repeat("12345678. ", 5))            // 49 chars
	para3 := strings.TrimSpace(strings.Repeat("one two three four. ", 30)) // 599 chars
	text := para1 + "\n\n" + para2 + "\n\n" + para3

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	// The short paragraph merged backward into the first chunk.
	if !strings.Contains(chunks[0].Text, "12345678.") {
		t.Errorf("short paragraph was not merged into chunk 0: %q", chunks[0].Text)
	}

	// The long paragraph split into two sub-chunks, the second carrying an
	// overlap prefix from the first.
	for _, i := range []int{1, 2} {
		if chunks[i].Metadata["split"] != "true" {
			t.Errorf("chunk %d should be marked as split", i)
		}
	}
	if chunks[1].Metadata["overlap_chars"] != "" {
		t.Error("first sub-chunk of a split should carry no overlap prefix")
	}
	if chunks[2].Metadata["overlap_chars"] == "" {
		t.Error("second sub-chunk of the split should carry an overlap prefix")
	}
	body := strings.TrimSpace(Normalize(text)[chunks[2].Span.Start:chunks[2].Span.End])
	if chunks[2].Text == body {
		t.Error("second sub-chunk text should be prefixed with overlap context")
	}
	if !strings.HasSuffix(chunks[2].Text, body) {
		t.Error("second sub-chunk text should end with its own body")
	}

	assertRoundTrip(t, text, chunks)
	assertSizeBounds(t, text, chunks, p)
}

func TestSegment_CJKSentenceSplit(t *testing.T) {
	p := testProfile(200, 20, 50)
	text := strings.Repeat("本公司員工應遵守本規章之規定。", 30)

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the long CJK paragraph to split, got %d chunks", len(chunks))
	}
	assertRoundTrip(t, text, chunks)
	assertSizeBounds(t, text, chunks, p)
}

func TestSegment_MinSizeException(t *testing.T) {
	p := testProfile(300, 30, 100)
	para1 := strings.TrimSpace(strings.Repeat("one two three four. ", 10))
	para2 := strings.TrimSpace(strings.Repeat("12345678. ", 5))
	para3 := strings.TrimSpace(strings.Repeat("one two three four. ", 30))
	text := para1 + "\n\n" + para2 + "\n\n" + para3

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	normalized := Normalize(text)
	for i, c := range chunks[:len(chunks)-1] {
		body := strings.TrimSpace(normalized[c.Span.Start:c.Span.End])
		if n := utf8.RuneCountInString(body); n < p.MinChunkSize {
			t.Errorf("chunk %d has %d chars, below min_chunk_size %d", i, n, p.MinChunkSize)
		}
	}
}

func TestSegment_Idempotent(t *testing.T) {
	p := testProfile(300, 30, 100)
	text := "第一條 員工守則內容。\n\n第二條 " + strings.Repeat("工作時間相關規定說明。", 40) + "\n\n第三條 請假規定。"

	first, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	second, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed on second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("segmenting the same (text, profile) twice produced different chunks")
	}
}

func TestSegment_IndexesStrictlyIncreasing(t *testing.T) {
	p := testProfile(150, 20, 40)
	text := strings.Repeat("A policy sentence about leave. ", 50)

	chunks, err := Segment(text, p)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk at position %d has index %d", i, c.Index)
		}
	}
	assertRoundTrip(t, text, chunks)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"collapse spaces", "a  b\t\tc", "a b c"},
		{"squeeze newline runs", "a\n\n\n\nb", "a\n\nb"},
		{"preserve paragraph break", "a\n\nb", "a\n\nb"},
		{"crlf", "a\r\nb", "a\nb"},
		{"trim", "  a  ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.want)
			}
		})
	}
}
