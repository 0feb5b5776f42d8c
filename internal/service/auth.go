package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/auth"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/vectorstore"
)

// ErrInvalidCredentials is returned when login fails. It deliberately does
// not distinguish an unknown email from a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidInput marks client mistakes (bad email, short password, empty
// question) so the transport layer can report them as such.
var ErrInvalidInput = errors.New("invalid input")

// AuthService handles registration, login, token refresh, and account
// lifecycle.
type AuthService struct {
	userRepo repository.UserRepository
	vectors  vectorstore.VectorStore
	jwt      *auth.JWTManager
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, vectors vectorstore.VectorStore, jwt *auth.JWTManager, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{userRepo: userRepo, vectors: vectors, jwt: jwt, logger: logger}
}

// Register creates a user account and returns it with a signed token
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*repository.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	user := &repository.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and returns the user with a signed token
func (s *AuthService) Login(ctx context.Context, email, password string) (*repository.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := auth.CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrWrongPassword) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return user, token, nil
}

// Refresh exchanges a valid or recently expired token for a fresh one
func (s *AuthService) Refresh(ctx context.Context, token string) (string, error) {
	return s.jwt.RefreshToken(token)
}

// DeleteAccount removes the user and everything derived from them. Documents,
// chunks, and conversations go with the user row via cascading deletes; the
// vector collection is dropped separately since Qdrant knows nothing about
// the relational schema. A failed collection drop is logged, not returned:
// the account is already gone and orphaned vectors are unreachable without it.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.vectors.DeleteCollection(ctx, userID.String()); err != nil {
		s.logger.Warn("failed to drop vector collection for deleted account",
			"user_id", userID, "error", err)
	}
	return nil
}

// SetActiveProfile records which prompt profile the user's queries should use
func (s *AuthService) SetActiveProfile(ctx context.Context, userID uuid.UUID, profileName string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	user.ProfileName = profileName
	return s.userRepo.Update(ctx, user)
}
