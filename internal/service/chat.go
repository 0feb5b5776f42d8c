package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/llm"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/retrieval"
)

// historyWindow is how many recent messages are replayed into the prompt.
const historyWindow = 10

// maxTitleRunes bounds auto-generated conversation titles.
const maxTitleRunes = 80

// Retriever is the retrieval dependency of ChatService. It is satisfied by
// *retrieval.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, userID string, q retrieval.Query, p profile.Profile) ([]retrieval.Result, error)
}

// Embedder is the query-embedding dependency of ChatService.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Answer is the outcome of one chat turn.
type Answer struct {
	ConversationID uuid.UUID
	Reply          string
	Sources        []retrieval.Result

	// Degraded is true when retrieval was unavailable and the answer was
	// generated without document evidence.
	Degraded bool
}

// ChatService runs retrieval-augmented chat turns over a user's documents.
type ChatService struct {
	convRepo  repository.ConversationRepository
	userRepo  repository.UserRepository
	profiles  *ProfileService
	embedder  Embedder
	retriever Retriever
	llmClient llm.LLM
	logger    *slog.Logger
}

// NewChatService creates a new ChatService
func NewChatService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	profiles *ProfileService,
	emb Embedder,
	retriever Retriever,
	llmClient llm.LLM,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{
		convRepo:  convRepo,
		userRepo:  userRepo,
		profiles:  profiles,
		embedder:  emb,
		retriever: retriever,
		llmClient: llmClient,
		logger:    logger,
	}
}

// StreamAnswer is the streaming counterpart of Answer. ConversationID,
// Sources, and Degraded are known before generation starts; Tokens delivers
// the reply incrementally. The turn is persisted after the last token, so a
// closed channel without an error chunk means both messages are stored.
type StreamAnswer struct {
	ConversationID uuid.UUID
	Sources        []retrieval.Result
	Degraded       bool
	Tokens         <-chan llm.StreamChunk
}

// turn is the prepared state of one chat exchange before generation.
type turn struct {
	conv     *repository.Conversation
	question string
	prompt   string
	opts     llm.GenerateOptions
	results  []retrieval.Result
	degraded bool
}

// prepareTurn does everything before generation: validate the question, load
// the user's profile, resolve or create the conversation, replay recent
// history, and retrieve evidence.
//
// Retrieval failures degrade rather than fail the turn: the question is still
// answered, with an empty evidence list and degraded set.
func (s *ChatService) prepareTurn(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, question string) (*turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidInput)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	p := s.profiles.Resolve(ctx, user.ProfileName)

	conv, err := s.resolveConversation(ctx, userID, conversationID, question)
	if err != nil {
		return nil, err
	}

	history, err := s.convRepo.RecentMessages(ctx, conv.ID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	results, degraded := s.retrieve(ctx, userID, question, p)

	return &turn{
		conv:     conv,
		question: question,
		prompt:   buildPrompt(p, history, results, question),
		opts: llm.GenerateOptions{
			Model:        p.LLMModel,
			SystemPrompt: p.SystemPrompt,
			Temperature:  float32(p.Temperature),
			TopP:         float32(p.TopP),
			MaxTokens:    p.MaxTokens,
		},
		results:  results,
		degraded: degraded,
	}, nil
}

// Ask runs one chat turn: retrieve evidence for the question, generate an
// answer grounded in it, and persist both sides of the exchange. A nil
// conversationID starts a new conversation.
func (s *ChatService) Ask(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, question string) (*Answer, error) {
	t, err := s.prepareTurn(ctx, userID, conversationID, question)
	if err != nil {
		return nil, err
	}

	reply, err := s.llmClient.Generate(ctx, t.prompt, t.opts)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	if err := s.persistTurn(ctx, t.conv.ID, t.question, reply, t.results); err != nil {
		return nil, err
	}

	return &Answer{
		ConversationID: t.conv.ID,
		Reply:          reply,
		Sources:        t.results,
		Degraded:       t.degraded,
	}, nil
}

// AskStream is Ask with the reply streamed token by token. Sources are
// resolved before generation so the transport can send them ahead of the
// first token. The full reply is accumulated and the turn persisted once the
// model finishes; a mid-stream error is forwarded on the channel and the
// turn is not persisted.
func (s *ChatService) AskStream(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, question string) (*StreamAnswer, error) {
	t, err := s.prepareTurn(ctx, userID, conversationID, question)
	if err != nil {
		return nil, err
	}

	stream, err := s.llmClient.GenerateStream(ctx, t.prompt, t.opts)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var reply strings.Builder
		for chunk := range stream {
			if chunk.Error != nil {
				s.logger.Warn("generation stream failed",
					"conversation_id", t.conv.ID, "error", chunk.Error)
				out <- chunk
				return
			}
			reply.WriteString(chunk.Token)
			out <- chunk
		}

		if err := s.persistTurn(ctx, t.conv.ID, t.question, reply.String(), t.results); err != nil {
			s.logger.Error("failed to persist streamed turn",
				"conversation_id", t.conv.ID, "error", err)
			out <- llm.StreamChunk{Error: err}
		}
	}()

	return &StreamAnswer{
		ConversationID: t.conv.ID,
		Sources:        t.results,
		Degraded:       t.degraded,
		Tokens:         out,
	}, nil
}

// retrieve runs hybrid search for the question. The query embedding and the
// search itself may both fail; either way the turn continues without
// evidence.
func (s *ChatService) retrieve(ctx context.Context, userID uuid.UUID, question string, p profile.Profile) ([]retrieval.Result, bool) {
	q := retrieval.Query{Text: question}
	if vector, err := s.embedder.Embed(ctx, question); err != nil {
		s.logger.Warn("query embedding failed, keyword search only",
			"user_id", userID, "error", err)
	} else {
		q.Vector = vector
	}

	results, err := s.retriever.Retrieve(ctx, userID.String(), q, p)
	if err != nil {
		s.logger.Warn("retrieval unavailable, answering without evidence",
			"user_id", userID, "error", err)
		return nil, true
	}
	return results, false
}

func (s *ChatService) resolveConversation(ctx context.Context, userID uuid.UUID, conversationID *uuid.UUID, question string) (*repository.Conversation, error) {
	if conversationID != nil {
		conv, err := s.convRepo.GetByID(ctx, *conversationID)
		if err != nil {
			return nil, err
		}
		if conv.UserID != userID {
			return nil, repository.ErrNotFound
		}
		return conv, nil
	}

	now := time.Now()
	conv := &repository.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     truncateTitle(question),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) persistTurn(ctx context.Context, conversationID uuid.UUID, question, reply string, results []retrieval.Result) error {
	refs := make([]repository.ChunkRef, 0, len(results))
	for _, r := range results {
		chunkID, err := uuid.Parse(r.ChunkID)
		if err != nil {
			continue
		}
		docID, err := uuid.Parse(r.DocumentID)
		if err != nil {
			continue
		}
		refs = append(refs, repository.ChunkRef{
			ChunkID:    chunkID,
			DocumentID: docID,
			Score:      r.Blended,
		})
	}

	now := time.Now()
	userMsg := &repository.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           repository.RoleUser,
		Content:        question,
		CreatedAt:      now,
	}
	if err := s.convRepo.CreateMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to persist question: %w", err)
	}

	assistantMsg := &repository.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           repository.RoleAssistant,
		Content:        reply,
		ChunkRefs:      refs,
		CreatedAt:      now.Add(time.Millisecond),
	}
	if err := s.convRepo.CreateMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("failed to persist answer: %w", err)
	}
	return nil
}

// History returns a conversation's messages, oldest first
func (s *ChatService) History(ctx context.Context, userID, conversationID uuid.UUID, limit, offset int) ([]*repository.Message, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, repository.ErrNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	return s.convRepo.GetMessages(ctx, conversationID, limit, offset)
}

// ListConversations returns the user's conversations, most recent first
func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Conversation, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.convRepo.List(ctx, userID, limit, offset)
}

// DeleteConversation removes a conversation and its messages
func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.UserID != userID {
		return repository.ErrNotFound
	}
	return s.convRepo.Delete(ctx, conversationID)
}

// buildPrompt renders the profile's template with the retrieved evidence and
// appends the conversation history and the question.
func buildPrompt(p profile.Profile, history []*repository.Message, results []retrieval.Result, question string) string {
	template := p.RAGPromptTemplate
	if template == "" {
		template = profile.Default().RAGPromptTemplate
	}

	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(template, profile.ContextPlaceholder, renderContext(results)))
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("## Conversation History\n")
		for _, msg := range history {
			sb.WriteString(msg.Role)
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Question\n")
	sb.WriteString(question)
	sb.WriteString("\n\n## Answer (be brief and direct)\n")

	return sb.String()
}

func renderContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return "(no relevant documents found)"
	}

	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[Doc %d]", i+1)
		if r.Section != "" {
			fmt.Fprintf(&sb, " (%s)", r.Section)
		}
		sb.WriteString("\n")
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncateTitle(question string) string {
	if utf8.RuneCountInString(question) <= maxTitleRunes {
		return question
	}
	runes := []rune(question)
	return string(runes[:maxTitleRunes])
}
