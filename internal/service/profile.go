// Package service implements the application services behind the HTTP API:
// authentication, document ingestion, prompt profile management, and chat.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
)

// ProfileService manages stored prompt profiles.
type ProfileService struct {
	repo     repository.ProfileRepository
	fallback profile.Profile
	logger   *slog.Logger
}

// NewProfileService creates a new ProfileService. fallback is the profile
// used when a user has none selected or their selection cannot be loaded;
// deployments derive it from configuration.
func NewProfileService(repo repository.ProfileRepository, fallback profile.Profile, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback.Validate() != nil {
		fallback = profile.Default()
	}
	return &ProfileService{repo: repo, fallback: fallback, logger: logger}
}

// Create validates and stores a new profile
func (s *ProfileService) Create(ctx context.Context, p profile.Profile) (*repository.PromptProfile, error) {
	validated, err := profile.New(p)
	if err != nil {
		return nil, err
	}
	if validated.Name == "" {
		return nil, fmt.Errorf("%w: name is required", profile.ErrInvalidProfile)
	}

	now := time.Now()
	stored := &repository.PromptProfile{
		ID:        uuid.New(),
		Profile:   validated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Get retrieves a stored profile by name
func (s *ProfileService) Get(ctx context.Context, name string) (*repository.PromptProfile, error) {
	return s.repo.GetByName(ctx, name)
}

// List retrieves all stored profiles
func (s *ProfileService) List(ctx context.Context) ([]*repository.PromptProfile, error) {
	return s.repo.List(ctx)
}

// Update validates and replaces a stored profile
func (s *ProfileService) Update(ctx context.Context, p profile.Profile) (*repository.PromptProfile, error) {
	validated, err := profile.New(p)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.GetByName(ctx, validated.Name)
	if err != nil {
		return nil, err
	}
	stored.Profile = validated
	stored.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes a stored profile by name
func (s *ProfileService) Delete(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, name)
}

// Resolve returns the profile to use for the given name. An empty name or a
// missing profile falls back to the configured default so a stale reference
// never blocks a user's query.
func (s *ProfileService) Resolve(ctx context.Context, name string) profile.Profile {
	if name == "" {
		return s.fallback
	}
	stored, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("profile lookup failed, using default", "profile", name, "error", err)
		}
		return s.fallback
	}
	return stored.Profile
}
