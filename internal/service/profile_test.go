package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
)

func TestResolveUsesConfiguredFallback(t *testing.T) {
	fallback := profile.Default()
	fallback.ChunkSize = 500
	fallback.TopK = 3

	svc := NewProfileService(&fakeProfileRepo{}, fallback, discardLogger())

	for _, name := range []string{"", "no-such-profile"} {
		p := svc.Resolve(context.Background(), name)
		assert.Equal(t, 500, p.ChunkSize, "name %q", name)
		assert.Equal(t, 3, p.TopK, "name %q", name)
	}
}

func TestResolvePrefersStoredProfile(t *testing.T) {
	stored := profile.Default()
	stored.Name = "strict"
	stored.TopK = 5

	repo := &fakeProfileRepo{}
	svc := NewProfileService(repo, profile.Default(), discardLogger())
	_, err := svc.Create(context.Background(), stored)
	require.NoError(t, err)

	p := svc.Resolve(context.Background(), "strict")
	assert.Equal(t, 5, p.TopK)
}

func TestProfileCreateValidates(t *testing.T) {
	svc := NewProfileService(&fakeProfileRepo{}, profile.Default(), discardLogger())

	unnamed := profile.Default()
	unnamed.Name = ""
	_, err := svc.Create(context.Background(), unnamed)
	require.ErrorIs(t, err, profile.ErrInvalidProfile)

	broken := profile.Default()
	broken.ChunkOverlap = broken.ChunkSize
	_, err = svc.Create(context.Background(), broken)
	require.ErrorIs(t, err, profile.ErrInvalidProfile)
}

func TestProfileUpdateMissing(t *testing.T) {
	svc := NewProfileService(&fakeProfileRepo{}, profile.Default(), discardLogger())

	missing := profile.Default()
	missing.Name = "absent"
	_, err := svc.Update(context.Background(), missing)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
