package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfileUsesConfiguredValues(t *testing.T) {
	t.Setenv("DEFAULT_CHUNK_SIZE", "500")
	t.Setenv("DEFAULT_CHUNK_OVERLAP", "50")
	t.Setenv("DEFAULT_MIN_CHUNK_SIZE", "100")
	t.Setenv("DEFAULT_TOP_K", "3")
	t.Setenv("DEFAULT_SEMANTIC_RATIO", "0.8")
	t.Setenv("DEFAULT_RELEVANCE_THRESHOLD", "0.1")

	cfg, err := Load()
	require.NoError(t, err)

	p, err := cfg.DefaultProfile()
	require.NoError(t, err)

	assert.Equal(t, 500, p.ChunkSize)
	assert.Equal(t, 50, p.ChunkOverlap)
	assert.Equal(t, 100, p.MinChunkSize)
	assert.Equal(t, 3, p.TopK)
	assert.Equal(t, 0.8, p.SemanticRatio)
	assert.Equal(t, 0.1, p.RelevanceThreshold)

	// Prompt settings still come from the built-in profile.
	assert.NotEmpty(t, p.RAGPromptTemplate)
	assert.NotEmpty(t, p.LLMModel)
}

func TestDefaultProfileRejectsInvalidConfiguration(t *testing.T) {
	t.Setenv("DEFAULT_CHUNK_SIZE", "100")
	t.Setenv("DEFAULT_CHUNK_OVERLAP", "200")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.DefaultProfile()
	require.Error(t, err)
}
