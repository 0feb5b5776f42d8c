package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
)

// ProfileRepo implements repository.ProfileRepository
type ProfileRepo struct {
	db *DB
}

// NewProfileRepo creates a new prompt profile repository
func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Create creates a new prompt profile
func (r *ProfileRepo) Create(ctx context.Context, p *repository.PromptProfile) error {
	profileJSON, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		INSERT INTO prompt_profiles (id, name, profile, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		p.ID, p.Profile.Name, profileJSON, p.IsDefault, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("profile %s: %w", p.Profile.Name, repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByName retrieves a prompt profile by name
func (r *ProfileRepo) GetByName(ctx context.Context, name string) (*repository.PromptProfile, error) {
	query := `
		SELECT id, profile, is_default, created_at, updated_at
		FROM prompt_profiles
		WHERE name = $1
	`
	var p repository.PromptProfile
	var profileJSON []byte
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(
		&p.ID, &profileJSON, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if err := json.Unmarshal(profileJSON, &p.Profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// List retrieves all prompt profiles ordered by name
func (r *ProfileRepo) List(ctx context.Context) ([]*repository.PromptProfile, error) {
	query := `
		SELECT id, profile, is_default, created_at, updated_at
		FROM prompt_profiles
		ORDER BY name
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*repository.PromptProfile
	for rows.Next() {
		var p repository.PromptProfile
		var profileJSON []byte
		if err := rows.Scan(&p.ID, &profileJSON, &p.IsDefault,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		if err := json.Unmarshal(profileJSON, &p.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		profiles = append(profiles, &p)
	}

	return profiles, nil
}

// Update updates a prompt profile
func (r *ProfileRepo) Update(ctx context.Context, p *repository.PromptProfile) error {
	profileJSON, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	query := `
		UPDATE prompt_profiles
		SET profile = $2, is_default = $3, updated_at = NOW()
		WHERE name = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, p.Profile.Name, profileJSON, p.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a prompt profile by name
func (r *ProfileRepo) Delete(ctx context.Context, name string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM prompt_profiles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure ProfileRepo implements the interface
var _ repository.ProfileRepository = (*ProfileRepo)(nil)
