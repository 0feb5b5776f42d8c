// Package repository defines domain models and data access interfaces for
// users, documents, conversations, and prompt profiles.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated, e.g.
// registering an email that is already taken.
var ErrDuplicate = errors.New("already exists")

// User represents a registered user. All documents, conversations, and
// search results are scoped to one user.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	DisplayName  string
	ProfileName  string // active prompt profile, empty means the default
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document represents an ingested document
type Document struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Title        string
	ContentHash  string
	Structured   bool
	ChunkCount   int
	Status       string
	ErrorMessage string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document status values
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// DocumentChunk represents a chunk of a document
type DocumentChunk struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	ChunkIndex   int
	Content      string
	SpanStart    int
	SpanEnd      int
	SectionLabel string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// ChunkSearchResult is a full-text search hit over a user's chunks. Rank is
// the Postgres ts_rank score, comparable only within a single result list.
type ChunkSearchResult struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	ChunkIndex   int
	Content      string
	SectionLabel string
	Rank         float32
}

// Conversation represents one chat thread
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents one turn in a conversation. ChunkRefs records which
// chunks grounded an assistant answer, empty for user messages.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	ChunkRefs      []ChunkRef
	CreatedAt      time.Time
}

// Message role values
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChunkRef is a citation from an assistant message to an evidence chunk.
type ChunkRef struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Score      float64   `json:"score"`
}

// PromptProfile is a stored, named parameter bundle.
type PromptProfile struct {
	ID        uuid.UUID
	Profile   profile.Profile
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRepository defines operations for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentRepository defines operations for document and chunk persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, userID uuid.UUID, hash string) (*Document, error)
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*Document, int, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Chunk operations. ReplaceChunks swaps a document's chunk set
	// atomically so readers never observe a half-ingested document.
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*DocumentChunk) error
	GetChunks(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*DocumentChunk, error)

	// SearchChunks runs full-text search over one user's chunks, ordered by
	// descending rank.
	SearchChunks(ctx context.Context, userID uuid.UUID, query string, limit int) ([]ChunkSearchResult, error)
}

// ConversationRepository defines operations for conversation persistence
type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, int, error)
	Update(ctx context.Context, conv *Conversation) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Message operations. GetMessages pages from the start of the
	// conversation; RecentMessages returns the last limit messages in
	// chronological order, for prompt history windows.
	CreateMessage(ctx context.Context, msg *Message) error
	GetMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*Message, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Message, error)
}

// ProfileRepository defines operations for prompt profile persistence
type ProfileRepository interface {
	Create(ctx context.Context, p *PromptProfile) error
	GetByName(ctx context.Context, name string) (*PromptProfile, error)
	List(ctx context.Context) ([]*PromptProfile, error)
	Update(ctx context.Context, p *PromptProfile) error
	Delete(ctx context.Context, name string) error
}
