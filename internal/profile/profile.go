// Package profile defines the immutable per-user parameter bundle that drives
// chunking, retrieval, and answer generation.
package profile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProfile is the base error for all profile validation failures.
// Callers can match it with errors.Is to distinguish configuration problems
// from runtime failures.
var ErrInvalidProfile = errors.New("invalid profile")

// ContextPlaceholder must appear in RAGPromptTemplate; it is replaced with
// the retrieved evidence at query time.
const ContextPlaceholder = "{context}"

// Profile bundles chunking and retrieval parameters together with the prompt
// settings for a single user. It is a value type: validated once at
// construction and passed by value through every call, never mutated.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Chunking (sizes in characters of the normalized text)
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	MinChunkSize int `json:"min_chunk_size"`

	// Retrieval
	TopK               int     `json:"top_k"`
	SemanticRatio      float64 `json:"semantic_ratio"`
	RelevanceThreshold float64 `json:"relevance_threshold"`

	// Generation
	SystemPrompt      string  `json:"system_prompt"`
	RAGPromptTemplate string  `json:"rag_prompt_template"`
	LLMModel          string  `json:"llm_model"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	MaxTokens         int     `json:"max_tokens"`
}

// Default returns the built-in profile used when a user has not selected one.
func Default() Profile {
	return Profile{
		Name:               "default",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		MinChunkSize:       300,
		TopK:               10,
		SemanticRatio:      0.5,
		RelevanceThreshold: 0.3,
		SystemPrompt:       defaultSystemPrompt,
		RAGPromptTemplate:  defaultRAGPromptTemplate,
		LLMModel:           "llama3.2",
		Temperature:        0.7,
		TopP:               0.9,
		MaxTokens:          2048,
	}
}

// New validates p and returns it. It is the only sanctioned way to build a
// Profile from external input.
func New(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks every cross-field constraint. A Profile that passes
// Validate never causes a configuration failure downstream.
func (p Profile) Validate() error {
	if p.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidProfile, p.ChunkSize)
	}
	if p.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap cannot be negative, got %d", ErrInvalidProfile, p.ChunkOverlap)
	}
	if p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be less than chunk_size (%d)", ErrInvalidProfile, p.ChunkOverlap, p.ChunkSize)
	}
	if p.MinChunkSize < 0 {
		return fmt.Errorf("%w: min_chunk_size cannot be negative, got %d", ErrInvalidProfile, p.MinChunkSize)
	}
	if p.ChunkSize < p.MinChunkSize {
		return fmt.Errorf("%w: chunk_size (%d) must be at least min_chunk_size (%d)", ErrInvalidProfile, p.ChunkSize, p.MinChunkSize)
	}
	if p.TopK < 1 {
		return fmt.Errorf("%w: top_k must be at least 1, got %d", ErrInvalidProfile, p.TopK)
	}
	if p.SemanticRatio < 0 || p.SemanticRatio > 1 {
		return fmt.Errorf("%w: semantic_ratio must be in [0,1], got %g", ErrInvalidProfile, p.SemanticRatio)
	}
	if p.RelevanceThreshold < 0 || p.RelevanceThreshold > 1 {
		return fmt.Errorf("%w: relevance_threshold must be in [0,1], got %g", ErrInvalidProfile, p.RelevanceThreshold)
	}
	if p.RAGPromptTemplate != "" && !strings.Contains(p.RAGPromptTemplate, ContextPlaceholder) {
		return fmt.Errorf("%w: rag_prompt_template must contain %s", ErrInvalidProfile, ContextPlaceholder)
	}
	if p.Temperature < 0 || p.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be in [0,1], got %g", ErrInvalidProfile, p.Temperature)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("%w: top_p must be in [0,1], got %g", ErrInvalidProfile, p.TopP)
	}
	if p.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens cannot be negative, got %d", ErrInvalidProfile, p.MaxTokens)
	}
	return nil
}

const defaultSystemPrompt = `You are an HR assistant. Answer questions about company policies, benefits, and procedures accurately and concisely. If you do not know the answer, say so.`

const defaultRAGPromptTemplate = `You are an HR assistant. Answer the question using only the reference documents below. Cite the document number for every claim. If the documents do not contain the answer, say that the uploaded documents do not cover it.

Reference documents:
{context}`
