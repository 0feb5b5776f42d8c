package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/auth"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/ingestion"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/profile"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/repository"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/retrieval"
	"github.com/tttingzhang999/chatbot-with-rag-sub000/internal/service"
)

// Handlers wires the application services into HTTP routes.
type Handlers struct {
	auth      *service.AuthService
	documents *service.DocumentService
	chat      *service.ChatService
	profiles  *service.ProfileService
	jwt       *auth.JWTManager
	logger    *slog.Logger
}

// NewHandlers creates the handler set for the API.
func NewHandlers(
	authSvc *service.AuthService,
	documents *service.DocumentService,
	chat *service.ChatService,
	profiles *service.ProfileService,
	jwt *auth.JWTManager,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		auth:      authSvc,
		documents: documents,
		chat:      chat,
		profiles:  profiles,
		jwt:       jwt,
		logger:    logger,
	}
}

// Routes builds the /api/v1 router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Put("/me/profile", h.handleSetActiveProfile)
		r.Delete("/me", h.handleDeleteAccount)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.handleIngestDocument)
			r.Post("/batch", h.handleIngestBatch)
			r.Get("/", h.handleListDocuments)
			r.Get("/{id}", h.handleGetDocument)
			r.Get("/{id}/chunks", h.handleGetDocumentChunks)
			r.Delete("/{id}", h.handleDeleteDocument)
		})

		r.Post("/chat", h.handleChat)
		r.Post("/chat/stream", h.handleChatStream)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.handleListConversations)
			r.Get("/{id}/messages", h.handleGetMessages)
			r.Delete("/{id}", h.handleDeleteConversation)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Post("/", h.handleCreateProfile)
			r.Get("/", h.handleListProfiles)
			r.Get("/{name}", h.handleGetProfile)
			r.Put("/{name}", h.handleUpdateProfile)
			r.Delete("/{name}", h.handleDeleteProfile)
		})
	})

	return r
}

// requireAuth validates the Bearer token and puts the user on the context.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			h.writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}

		claims, err := h.jwt.ValidateToken(header[len(prefix):])
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		userID, err := claims.GetUserID()
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.WithUser(r.Context(), &auth.UserInfo{ID: userID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// --- auth ---

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string    `json:"token"`
	User  *userView `json:"user,omitempty"`
}

type userView struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ProfileName string    `json:"profile_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newUserView(u *repository.User) *userView {
	return &userView{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		ProfileName: u.ProfileName,
		CreatedAt:   u.CreatedAt,
	}
}

func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: newUserView(user)})
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: newUserView(user)})
}

func (h *Handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.auth.Refresh(r.Context(), req.Token)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handlers) handleSetActiveProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		ProfileName string `json:"profile_name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.SetActiveProfile(r.Context(), userID, req.ProfileName); err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"profile_name": req.ProfileName})
}

func (h *Handlers) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), userID); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- documents ---

type ingestRequest struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type documentView struct {
	ID           uuid.UUID         `json:"id"`
	Title        string            `json:"title"`
	ContentHash  string            `json:"content_hash"`
	Structured   bool              `json:"structured"`
	ChunkCount   int               `json:"chunk_count"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func newDocumentView(d *repository.Document) *documentView {
	return &documentView{
		ID:           d.ID,
		Title:        d.Title,
		ContentHash:  d.ContentHash,
		Structured:   d.Structured,
		ChunkCount:   d.ChunkCount,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (h *Handlers) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req ingestRequest
	if !h.decode(w, r, &req) {
		return
	}

	doc, err := h.documents.Ingest(r.Context(), userID, service.IngestInput{
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newDocumentView(doc))
}

type batchIngestResponse struct {
	Results []batchItemView `json:"results"`
}

type batchItemView struct {
	Title    string        `json:"title"`
	Document *documentView `json:"document,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (h *Handlers) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Documents []ingestRequest `json:"documents"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, http.StatusBadRequest, "documents list is empty")
		return
	}

	inputs := make([]service.IngestInput, len(req.Documents))
	for i, d := range req.Documents {
		inputs[i] = service.IngestInput{Title: d.Title, Content: d.Content, Metadata: d.Metadata}
	}

	results := h.documents.IngestBatch(r.Context(), userID, inputs)

	resp := batchIngestResponse{Results: make([]batchItemView, len(results))}
	for i, res := range results {
		item := batchItemView{Title: res.Title}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else if res.Document != nil {
			item.Document = newDocumentView(res.Document)
		}
		resp.Results[i] = item
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r, 50)
	status := r.URL.Query().Get("status")

	docs, total, err := h.documents.List(r.Context(), userID, status, limit, offset)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]*documentView, len(docs))
	for i, d := range docs {
		views[i] = newDocumentView(d)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": views,
		"total":     total,
	})
}

func (h *Handlers) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Get(r.Context(), userID, docID)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newDocumentView(doc))
}

type chunkView struct {
	ID           uuid.UUID `json:"id"`
	ChunkIndex   int       `json:"chunk_index"`
	Content      string    `json:"content"`
	SpanStart    int       `json:"span_start"`
	SpanEnd      int       `json:"span_end"`
	SectionLabel string    `json:"section_label,omitempty"`
}

func (h *Handlers) handleGetDocumentChunks(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r, 100)

	chunks, err := h.documents.GetChunks(r.Context(), userID, docID, limit, offset)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]chunkView, len(chunks))
	for i, c := range chunks {
		views[i] = chunkView{
			ID:           c.ID,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
			SpanStart:    c.SpanStart,
			SpanEnd:      c.SpanEnd,
			SectionLabel: c.SectionLabel,
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"chunks": views})
}

func (h *Handlers) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	docID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), userID, docID); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- chat ---

type chatRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Question       string     `json:"question"`
}

type sourceView struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score"`
}

type chatResponse struct {
	ConversationID uuid.UUID    `json:"conversation_id"`
	Reply          string       `json:"reply"`
	Sources        []sourceView `json:"sources"`
	Degraded       bool         `json:"degraded,omitempty"`
}

func newSourceViews(results []retrieval.Result) []sourceView {
	views := make([]sourceView, len(results))
	for i, res := range results {
		views[i] = sourceView{
			ChunkID:    res.ChunkID,
			DocumentID: res.DocumentID,
			Content:    res.Content,
			Section:    res.Section,
			Score:      res.Blended,
		}
	}
	return views
}

func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}

	answer, err := h.chat.Ask(r.Context(), userID, req.ConversationID, req.Question)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: answer.ConversationID,
		Reply:          answer.Reply,
		Sources:        newSourceViews(answer.Sources),
		Degraded:       answer.Degraded,
	})
}

// handleChatStream answers over server-sent events. A "meta" event with the
// conversation, sources, and degraded flag comes first, then one "token"
// event per model token, then "done". Errors mid-stream surface as an
// "error" event since the 200 header is already gone.
func (h *Handlers) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.chat.AskStream(r.Context(), userID, req.ConversationID, req.Question)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.writeSSE(w, "meta", streamMeta{
		ConversationID: stream.ConversationID,
		Sources:        newSourceViews(stream.Sources),
		Degraded:       stream.Degraded,
	})
	flusher.Flush()

	for chunk := range stream.Tokens {
		switch {
		case chunk.Error != nil:
			h.writeSSE(w, "error", map[string]string{"error": "generation failed"})
		case chunk.Done:
			h.writeSSE(w, "done", map[string]bool{"done": true})
		case chunk.Token != "":
			h.writeSSE(w, "token", map[string]string{"token": chunk.Token})
		default:
			continue
		}
		flusher.Flush()
	}
}

type streamMeta struct {
	ConversationID uuid.UUID    `json:"conversation_id"`
	Sources        []sourceView `json:"sources"`
	Degraded       bool         `json:"degraded"`
}

// writeSSE writes one server-sent event with a JSON payload.
func (h *Handlers) writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode stream event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

type conversationView struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *Handlers) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r, 50)

	convs, total, err := h.chat.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]conversationView, len(convs))
	for i, c := range convs {
		views[i] = conversationView{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"conversations": views,
		"total":         total,
	})
}

type messageView struct {
	ID        uuid.UUID             `json:"id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	ChunkRefs []repository.ChunkRef `json:"chunk_refs,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func (h *Handlers) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r, 100)

	msgs, err := h.chat.History(r.Context(), userID, convID, limit, offset)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = messageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			ChunkRefs: m.ChunkRefs,
			CreatedAt: m.CreatedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

func (h *Handlers) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.chat.DeleteConversation(r.Context(), userID, convID); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- profiles ---

type profileView struct {
	profile.Profile
	IsDefault bool      `json:"is_default"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newProfileView(p *repository.PromptProfile) profileView {
	return profileView{Profile: p.Profile, IsDefault: p.IsDefault, UpdatedAt: p.UpdatedAt}
}

func (h *Handlers) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !h.decode(w, r, &p) {
		return
	}

	stored, err := h.profiles.Create(r.Context(), p)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newProfileView(stored))
}

func (h *Handlers) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	stored, err := h.profiles.List(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	views := make([]profileView, len(stored))
	for i, p := range stored {
		views[i] = newProfileView(p)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"profiles": views})
}

func (h *Handlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	stored, err := h.profiles.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProfileView(stored))
}

func (h *Handlers) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if !h.decode(w, r, &p) {
		return
	}
	p.Name = chi.URLParam(r, "name")

	stored, err := h.profiles.Update(r.Context(), p)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newProfileView(stored))
}

func (h *Handlers) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.serviceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// serviceError maps sentinel errors from the service layer to HTTP status
// codes. Unknown errors become 500s with the detail kept out of the response.
func (h *Handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrDuplicate):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, profile.ErrInvalidProfile),
		errors.Is(err, ingestion.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retrieval.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "retrieval backends unavailable")
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
