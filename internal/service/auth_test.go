package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/auth"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/vectorstore"
)

type fakeVectorStore struct {
	deletedCollections []string
	deleteErr          error
}

func (f *fakeVectorStore) EnsureCollection(_ context.Context, _ string, _ int) error { return nil }

func (f *fakeVectorStore) DeleteCollection(_ context.Context, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedCollections = append(f.deletedCollections, userID)
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, _ string, _ []vectorstore.Chunk) error {
	return nil
}

func (f *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, _ string, _ string) error { return nil }

var _ vectorstore.VectorStore = (*fakeVectorStore)(nil)

func newAuthService() (*AuthService, *fakeUserRepo) {
	svc, repo, _ := newAuthServiceWithVectors()
	return svc, repo
}

func newAuthServiceWithVectors() (*AuthService, *fakeUserRepo, *fakeVectorStore) {
	repo := &fakeUserRepo{users: make(map[uuid.UUID]*repository.User)}
	vectors := &fakeVectorStore{}
	jwt := auth.NewJWTManager(auth.DefaultJWTConfig("test-secret"))
	return NewAuthService(repo, vectors, jwt, discardLogger()), repo, vectors
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService()

	user, token, err := svc.Register(context.Background(), "  Pat@Example.COM ", "hunter2hunter2", "Pat")
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", user.Email)
	assert.Equal(t, "Pat", user.DisplayName)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)

	got, loginToken, err := svc.Login(context.Background(), "pat@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, loginToken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"empty email", "", "hunter2hunter2"},
		{"no at sign", "pat.example.com", "hunter2hunter2"},
		{"short password", "pat@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(context.Background(), tt.email, tt.password, "Pat")
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService()

	_, _, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	_, _, err = svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat Again")
	require.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthService()

	_, _, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "pat@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "hunter2hunter2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshIssuesNewToken(t *testing.T) {
	svc, _ := newAuthService()

	_, token, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed)

	_, err = svc.Refresh(context.Background(), "not-a-token")
	require.Error(t, err)
}

func TestDeleteAccount(t *testing.T) {
	svc, repo, vectors := newAuthServiceWithVectors()

	user, _, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(context.Background(), user.ID))

	_, err = repo.GetByID(context.Background(), user.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, []string{user.ID.String()}, vectors.deletedCollections)

	err = svc.DeleteAccount(context.Background(), uuid.New())
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteAccountSurvivesVectorStoreFailure(t *testing.T) {
	svc, repo, vectors := newAuthServiceWithVectors()
	vectors.deleteErr = errors.New("qdrant down")

	user, _, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(context.Background(), user.ID))

	_, err = repo.GetByID(context.Background(), user.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetActiveProfile(t *testing.T) {
	svc, repo := newAuthService()

	user, _, err := svc.Register(context.Background(), "pat@example.com", "hunter2hunter2", "Pat")
	require.NoError(t, err)

	require.NoError(t, svc.SetActiveProfile(context.Background(), user.ID, "strict"))

	stored, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "strict", stored.ProfileName)

	err = svc.SetActiveProfile(context.Background(), uuid.New(), "strict")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
