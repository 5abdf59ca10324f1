// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/export"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr listens on loopback only.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize caps every request body (1MB).
	MaxRequestBodySize = 1 << 20

	// MaxMessageLength caps prompt and edit text.
	MaxMessageLength = 100000

	// Version is the server version.
	Version = "0.1.0"
)

// ============================================================================
// CONFIG
// ============================================================================

// Config holds server settings.
type Config struct {
	Addr        string
	RateLimit   float64 // requests per second per IP; 0 disables limiting
	RateBurst   int
	CORSOrigins []string

	// ShowQuery is the default for POST /api/messages when the request
	// omits show_query.
	ShowQuery bool

	// Logger receives request logs. Nil uses log.Default().
	Logger *log.Logger
}

// DefaultConfig returns loopback defaults.
func DefaultConfig() Config {
	return Config{
		Addr:      DefaultAddr,
		RateLimit: 10,
		RateBurst: 20,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the chat API.
type Server struct {
	cfg    Config
	router *http.ServeMux
	chat   *chat.Service

	mu     sync.Mutex
	server *http.Server
}

// New creates a Server around svc.
func New(cfg Config, svc *chat.Service) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	s := &Server{
		cfg:    cfg,
		router: http.NewServeMux(),
		chat:   svc,
	}
	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/render", s.handleRender)
	s.router.HandleFunc("GET /api/highlight.css", s.handleHighlightCSS)

	s.router.HandleFunc("GET /api/chats", s.handleListChats)
	s.router.HandleFunc("POST /api/chats", s.handleCreateChat)
	s.router.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.router.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.router.HandleFunc("POST /api/chats/{id}/select", s.handleSelectChat)
	s.router.HandleFunc("GET /api/chats/{id}/export", s.handleExportChat)

	s.router.HandleFunc("POST /api/messages", s.handleSendMessage)
	s.router.HandleFunc("PATCH /api/messages/{id}", s.handleUpdateMessage)
	s.router.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteMessage)

	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cors := DefaultCORSConfig()
	if len(s.cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = s.cfg.CORSOrigins
	}

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		CORSMiddleware(cors),
		LoggingMiddleware(s.cfg.Logger),
	}
	if s.cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until Shutdown. It
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: answers stream for as long as the backend talks.
	}
	srv := s.server
	s.mu.Unlock()

	log.Printf("SERVER_START | addr=%s version=%s", s.cfg.Addr, Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return srv.Shutdown(ctx)
}

// ============================================================================
// RENDER HANDLERS
// ============================================================================

// RenderRequest is the body of POST /api/render.
type RenderRequest struct {
	Text string `json:"text"`
}

// SpanInfo describes one LaTeX span found in the text.
type SpanInfo struct {
	Kind      string `json:"kind"`
	Delimiter string `json:"delimiter"`
	Expr      string `json:"expr"`
	Offset    int    `json:"offset"`
}

// RenderResponse is the result of POST /api/render.
type RenderResponse struct {
	HTML          string     `json:"html"`
	ContainsLatex bool       `json:"contains_latex"`
	Spans         []SpanInfo `json:"spans"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	spans := render.FindSpans(req.Text)
	info := make([]SpanInfo, len(spans))
	for i, sp := range spans {
		info[i] = SpanInfo{
			Kind:      sp.Kind.String(),
			Delimiter: sp.Delim.String(),
			Expr:      sp.Expr,
			Offset:    sp.Offset,
		}
	}

	s.writeJSON(w, http.StatusOK, RenderResponse{
		HTML:          s.chat.Renderer().Render(req.Text),
		ContainsLatex: len(spans) > 0,
		Spans:         info,
	})
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if err := s.chat.Renderer().Highlighter().WriteCSS(w); err != nil {
		log.Printf("CSS_ERROR | err=%v", err)
	}
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

// ChatListResponse is the result of GET /api/chats.
type ChatListResponse struct {
	Chats     []storage.ChatMeta `json:"chats"`
	CurrentID string             `json:"current_id"`
}

// MessageView is a stored message plus its rendered HTML.
type MessageView struct {
	storage.Message
	HTML string `json:"html"`
}

// ChatView is a chat with rendered messages.
type ChatView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []MessageView `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (s *Server) chatView(c storage.Chat) ChatView {
	msgs := make([]MessageView, len(c.Messages))
	for i, m := range c.Messages {
		msgs[i] = MessageView{Message: m, HTML: s.chat.RenderMessage(m)}
	}
	return ChatView{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	store := s.chat.Store
	if q := r.URL.Query().Get("q"); q != "" {
		s.writeJSON(w, http.StatusOK, ChatListResponse{Chats: store.Search(q), CurrentID: store.CurrentChatID()})
		return
	}
	s.writeJSON(w, http.StatusOK, ChatListResponse{Chats: store.List(), CurrentID: store.CurrentChatID()})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.chat.Store.CreateNewChat(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.chatView(c))
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.chat.Store.Chat(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.chatView(c))
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Store.DeleteChat(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Store.SelectChat(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportChat(w http.ResponseWriter, r *http.Request) {
	c, err := s.chat.Store.Chat(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp, err := export.New(format, nil, s.chat.Renderer())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := exp.Export(&c)
	if err != nil {
		if errors.Is(err, export.ErrEmptyChat) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("EXPORT_ERROR | chat=%s format=%s err=%v", c.ID, format, err)
		s.writeError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	w.Header().Set("Content-Type", exp.MimeType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "chat"+exp.FileExtension()))
	w.Write(body)
}

// ============================================================================
// MESSAGE HANDLERS
// ============================================================================

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	Text      string `json:"text"`
	ShowQuery *bool  `json:"show_query,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
}

// StreamEvent is one SSE payload sent to the browser.
type StreamEvent struct {
	Type      string `json:"type"`
	TextDelta string `json:"textDelta,omitempty"`
	HTML      string `json:"html,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Demo      bool   `json:"demo,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, chat.ErrEmptyMessage.Error())
		return
	}
	if len(req.Text) > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Message exceeds maximum length of %d", MaxMessageLength))
		return
	}
	if req.ChatID != "" {
		if _, err := s.chat.Store.Chat(req.ChatID); err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	showQuery := s.cfg.ShowQuery
	if req.ShowQuery != nil {
		showQuery = *req.ShowQuery
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_, err := s.chat.Send(r.Context(), req.Text, chat.SendOptions{ChatID: req.ChatID, ShowQuery: showQuery}, func(u chat.Update) {
		s.sendEvent(w, flusher, StreamEvent{
			Type:      "text-delta",
			TextDelta: u.Delta,
			HTML:      u.HTML,
			MessageID: u.MessageID,
			Demo:      u.Demo,
		})
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.Printf("SEND_ERROR | chat=%s err=%v", req.ChatID, err)
		s.sendEvent(w, flusher, StreamEvent{Type: "error", Error: publicError(err)})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, ev StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// UpdateMessageRequest is the body of PATCH /api/messages/{id}.
type UpdateMessageRequest struct {
	Content string `json:"content"`
	ChatID  string `json:"chat_id,omitempty"`
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req UpdateMessageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Content) > MaxMessageLength {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Message exceeds maximum length of %d", MaxMessageLength))
		return
	}
	if err := s.chat.Store.UpdateMessage(r.Context(), req.ChatID, r.PathValue("id"), req.Content); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if err := s.chat.Store.DeleteMessage(r.Context(), chatID, r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Backend  string `json:"backend"`
	Detail   string `json:"detail"`
	DemoMode bool   `json:"demo_mode"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := s.chat.Status(r.Context())
	health := HealthResponse{
		Status:   "ok",
		Version:  Version,
		Backend:  string(res.Status),
		Detail:   res.Detail,
		DemoMode: s.chat.Mode.Enabled(),
	}
	if !res.Connected {
		health.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeJSON reads a size-capped JSON body into v. On failure it writes
// the error response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return false
		}
		log.Printf("BAD_REQUEST | path=%s err=%v", r.URL.Path, err)
		s.writeError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound), errors.Is(err, storage.ErrMessageNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("STORE_ERROR | err=%v", err)
		s.writeError(w, http.StatusInternalServerError, "Storage operation failed")
	}
}

// publicError maps a send failure to a message safe for clients.
func publicError(err error) string {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		return "chat not found"
	case errors.Is(err, backend.ErrBadStatus):
		return "The backend returned an error."
	case errors.Is(err, backend.ErrTimeout):
		return "The backend timed out."
	}
	return "Request failed. Please try again."
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}

// LogLatexErrors returns a render error hook that logs each expression
// that failed to typeset.
func LogLatexErrors(logger *log.Logger) render.ErrorHook {
	if logger == nil {
		logger = log.Default()
	}
	return func(span render.Span, err error) {
		logger.Printf("LATEX_ERROR | delim=%s expr=%q err=%v", span.Delim, span.Expr, err)
	}
}
