package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
)

// ConversationRepo implements repository.ConversationRepository
type ConversationRepo struct {
	db *DB
}

// NewConversationRepo creates a new conversation repository
func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create creates a new conversation
func (r *ConversationRepo) Create(ctx context.Context, conv *repository.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Conversation, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	var conv repository.Conversation
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// List retrieves a user's conversations, newest first
func (r *ConversationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Conversation, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*repository.Conversation
	for rows.Next() {
		var conv repository.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title,
			&conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, &conv)
	}

	return convs, total, nil
}

// Update updates a conversation
func (r *ConversationRepo) Update(ctx context.Context, conv *repository.Conversation) error {
	query := `
		UPDATE conversations
		SET title = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, conv.ID, conv.Title)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a conversation and its messages
func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateMessage appends a message to a conversation and bumps the
// conversation's updated_at so listing stays ordered by activity.
func (r *ConversationRepo) CreateMessage(ctx context.Context, msg *repository.Message) error {
	refsJSON, err := json.Marshal(msg.ChunkRefs)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk refs: %w", err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, chunk_refs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, refsJSON, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// GetMessages retrieves a conversation's messages in chronological order
func (r *ConversationRepo) GetMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*repository.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, chunk_refs, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var msgs []*repository.Message
	for rows.Next() {
		var msg repository.Message
		var refsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&refsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(refsJSON) > 0 {
			if err := json.Unmarshal(refsJSON, &msg.ChunkRefs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk refs: %w", err)
			}
		}
		msgs = append(msgs, &msg)
	}

	return msgs, nil
}

// RecentMessages retrieves the last limit messages of a conversation in
// chronological order.
func (r *ConversationRepo) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*repository.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, chunk_refs, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []*repository.Message
	for rows.Next() {
		var msg repository.Message
		var refsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&refsJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if len(refsJSON) > 0 {
			if err := json.Unmarshal(refsJSON, &msg.ChunkRefs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk refs: %w", err)
			}
		}
		msgs = append(msgs, &msg)
	}

	// Newest-first from the query; flip to chronological for the prompt.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Ensure ConversationRepo implements the interface
var _ repository.ConversationRepository = (*ConversationRepo)(nil)
