package ingestion

import (
	"sort"
	"testing"
)

func TestDetectStructure_Threshold(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		structured bool
		markers    int
	}{
		{
			name:       "three english articles",
			text:       "Article 1 intro text. Article 2 more text. Article 3 closing text.",
			structured: true,
			markers:    3,
		},
		{
			name:       "two markers is below threshold",
			text:       "Article 1 intro text. Article 2 more text. No further markers.",
			structured: false,
			markers:    2,
		},
		{
			name:       "chinese numeral articles",
			text:       "第一條 員工守則。第二條 工作時間。第三條 請假規定。",
			structured: true,
			markers:    3,
		},
		{
			name:       "mixed families",
			text:       "第1條 總則。Section 2 benefits. Article 3 leave policy.",
			structured: true,
			markers:    3,
		},
		{
			name:       "plain prose",
			text:       "This handbook explains the company vacation policy in detail.",
			structured: false,
			markers:    0,
		},
		{
			name:       "empty",
			text:       "",
			structured: false,
			markers:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape := DetectStructure(tt.text)
			if shape.Structured != tt.structured {
				t.Errorf("Structured = %v, expected %v", shape.Structured, tt.structured)
			}
			if len(shape.Boundaries) != tt.markers {
				t.Errorf("got %d boundaries, expected %d: %v", len(shape.Boundaries), tt.markers, shape.Boundaries)
			}
		})
	}
}

func TestDetectStructure_OffsetsSortedAndLabeled(t *testing.T) {
	text := "Preamble.\n\n第一條 第一段內容。\n\nArticle 2 second section.\n\nSection 3 third section."
	shape := DetectStructure(text)

	if !shape.Structured {
		t.Fatal("expected structured document")
	}
	if !sort.SliceIsSorted(shape.Boundaries, func(i, j int) bool {
		return shape.Boundaries[i].Offset < shape.Boundaries[j].Offset
	}) {
		t.Errorf("boundaries not sorted by offset: %v", shape.Boundaries)
	}

	labels := []string{"第一條", "Article 2", "Section 3"}
	for i, want := range labels {
		if shape.Boundaries[i].Label != want {
			t.Errorf("boundary %d label = %q, expected %q", i, shape.Boundaries[i].Label, want)
		}
		if text[shape.Boundaries[i].Offset:shape.Boundaries[i].Offset+len(want)] != want {
			t.Errorf("boundary %d offset %d does not point at %q", i, shape.Boundaries[i].Offset, want)
		}
	}
}

func TestDetectStructure_CaseInsensitiveEnglish(t *testing.T) {
	text := "ARTICLE 1 one. article 2 two. Article 3 three."
	shape := DetectStructure(text)
	if !shape.Structured {
		t.Errorf("expected case-insensitive matching to find 3 markers, got %d", len(shape.Boundaries))
	}
}
