package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	valid := Default()

	tests := []struct {
		name   string
		mutate func(*Profile)
		wantOK bool
	}{
		{"default", func(p *Profile) {}, true},
		{"ratio zero", func(p *Profile) { p.SemanticRatio = 0 }, true},
		{"ratio one", func(p *Profile) { p.SemanticRatio = 1 }, true},
		{"threshold bounds", func(p *Profile) { p.RelevanceThreshold = 1 }, true},
		{"zero overlap", func(p *Profile) { p.ChunkOverlap = 0 }, true},
		{"chunk size zero", func(p *Profile) { p.ChunkSize = 0 }, false},
		{"overlap equals chunk size", func(p *Profile) { p.ChunkOverlap = p.ChunkSize }, false},
		{"overlap above chunk size", func(p *Profile) { p.ChunkOverlap = p.ChunkSize + 1 }, false},
		{"negative overlap", func(p *Profile) { p.ChunkOverlap = -1 }, false},
		{"chunk size below min", func(p *Profile) { p.ChunkSize = p.MinChunkSize - 1; p.ChunkOverlap = 0 }, false},
		{"top_k zero", func(p *Profile) { p.TopK = 0 }, false},
		{"ratio below range", func(p *Profile) { p.SemanticRatio = -0.1 }, false},
		{"ratio above range", func(p *Profile) { p.SemanticRatio = 1.1 }, false},
		{"threshold above range", func(p *Profile) { p.RelevanceThreshold = 1.5 }, false},
		{"template without placeholder", func(p *Profile) { p.RAGPromptTemplate = "no placeholder here" }, false},
		{"temperature out of range", func(p *Profile) { p.Temperature = 2 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidProfile))
			}
		})
	}
}

func TestNewRejectsInvalid(t *testing.T) {
	p := Default()
	p.TopK = 0
	_, err := New(p)
	require.ErrorIs(t, err, ErrInvalidProfile)

	got, err := New(Default())
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}
