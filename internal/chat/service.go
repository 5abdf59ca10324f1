// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// =============================================================================
// TYPES
// =============================================================================

// SendOptions are per-request flags.
type SendOptions struct {
	// ChatID pins the request to a chat. Empty means the current chat at
	// the time Send is called; switching chats mid-stream does not move
	// the answer.
	ChatID string

	// ShowQuery asks the backend (or the demo) to append the SQL it ran.
	ShowQuery bool
}

// Update is delivered after every streamed delta.
type Update struct {
	ChatID    string
	MessageID string
	Delta     string // text added by this step
	Text      string // full text so far
	HTML      string // Text rendered
	Demo      bool
}

// UpdateFunc receives streamed updates. It may be nil.
type UpdateFunc func(Update)

// Service runs chat requests.
type Service struct {
	Store  *storage.ChatStore
	Client *backend.Client
	Demo   *offline.Responder
	Mode   *offline.Mode

	mu       sync.RWMutex
	renderer *render.Renderer
	status   backend.ConnectionResult
}

// NewService creates a service. Nil collaborators get defaults: a client
// for the default backend, a demo responder with default pacing, the
// process-wide demo mode and render.Default().
func NewService(store *storage.ChatStore, client *backend.Client, demo *offline.Responder, mode *offline.Mode, renderer *render.Renderer) *Service {
	if client == nil {
		client = backend.NewClient()
	}
	if demo == nil {
		demo = offline.NewResponder(offline.DefaultPacing())
	}
	if mode == nil {
		mode = offline.Global()
	}
	if renderer == nil {
		renderer = render.Default()
	}
	return &Service{
		Store:    store,
		Client:   client,
		Demo:     demo,
		Mode:     mode,
		renderer: renderer,
		status:   backend.ConnectionResult{Status: backend.StatusUnknown},
	}
}

// =============================================================================
// SEND
// =============================================================================

// Send stores text as a user message and streams the assistant answer
// into a loading message, calling onUpdate after each delta. It returns
// the finished assistant message.
//
// A connection failure before any text arrives switches to demo mode and
// the answer comes from the demo responder. Any other failure removes the
// loading message and returns the error. If ctx is cancelled after some
// text arrived, the partial answer is kept and returned with ctx.Err().
func (s *Service) Send(ctx context.Context, text string, opts SendOptions, onUpdate UpdateFunc) (*storage.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}

	chatID := opts.ChatID
	if chatID == "" {
		chatID = s.Store.CurrentChatID()
	}

	if _, err := s.Store.AddMessage(ctx, chatID, storage.RoleUser, text); err != nil {
		return nil, err
	}
	history, err := s.history(chatID)
	if err != nil {
		return nil, err
	}
	loading, err := s.Store.AddLoadingMessage(ctx, chatID)
	if err != nil {
		return nil, err
	}

	st := &stream{svc: s, ctx: ctx, chatID: chatID, msgID: loading.ID, onUpdate: onUpdate}

	if s.Mode.Enabled() {
		return st.finish(s.streamDemo(ctx, st, text, opts.ShowQuery))
	}

	req := s.Client.BuildRequest(history, opts.ShowQuery)
	err = s.Client.Stream(ctx, req, func(d backend.Delta) {
		st.push(d.Text, false)
	})
	if err != nil && backend.IsConnection(err) && st.text() == "" {
		log.Printf("DEMO_FALLBACK | chat=%s err=%v", chatID, err)
		s.Mode.Set(true)
		s.setStatus(backend.ConnectionResult{Status: backend.StatusDisconnected, Detail: "Backend not available"})
		err = s.streamDemo(ctx, st, text, opts.ShowQuery)
	}
	return st.finish(err)
}

func (s *Service) streamDemo(ctx context.Context, st *stream, prompt string, showQuery bool) error {
	return s.Demo.Stream(ctx, prompt, showQuery, func(chunk string) {
		st.push(chunk, true)
	})
}

// history converts the chat's settled messages to wire form.
func (s *Service) history(chatID string) ([]backend.WireMessage, error) {
	c, err := s.Store.Chat(chatID)
	if err != nil {
		return nil, err
	}
	out := make([]backend.WireMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.IsLoading || m.Content == "" {
			continue
		}
		out = append(out, backend.NewTextMessage(string(m.Role), m.Content))
	}
	return out, nil
}

// =============================================================================
// STREAM STATE
// =============================================================================

// stream tracks one answer while it is written into the store.
type stream struct {
	svc      *Service
	ctx      context.Context
	chatID   string
	msgID    string
	onUpdate UpdateFunc

	mu  sync.Mutex
	acc strings.Builder
}

func (st *stream) text() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.acc.String()
}

func (st *stream) push(delta string, demo bool) {
	if delta == "" {
		return
	}
	st.mu.Lock()
	st.acc.WriteString(delta)
	full := st.acc.String()
	st.mu.Unlock()

	if err := st.svc.Store.UpdateLoadingMessage(context.WithoutCancel(st.ctx), st.chatID, st.msgID, full); err != nil {
		log.Printf("STREAM_UPDATE_ERROR | chat=%s msg=%s err=%v", st.chatID, st.msgID, err)
	}
	st.onUpdate(Update{
		ChatID:    st.chatID,
		MessageID: st.msgID,
		Delta:     delta,
		Text:      full,
		HTML:      st.svc.Renderer().Render(full),
		Demo:      demo,
	})
}

// finish settles the loading message according to the stream outcome.
func (st *stream) finish(streamErr error) (*storage.Message, error) {
	ctx := context.WithoutCancel(st.ctx)
	content := st.text()

	if streamErr != nil && !(errors.Is(streamErr, context.Canceled) && content != "") {
		if err := st.svc.Store.RemoveLoadingMessage(ctx, st.chatID, st.msgID); err != nil {
			log.Printf("STREAM_CLEANUP_ERROR | chat=%s msg=%s err=%v", st.chatID, st.msgID, err)
		}
		return nil, streamErr
	}

	if err := st.svc.Store.FinishLoadingMessage(ctx, st.chatID, st.msgID, content); err != nil {
		return nil, err
	}
	c, err := st.svc.Store.Chat(st.chatID)
	if err != nil {
		return nil, err
	}
	for i := range c.Messages {
		if c.Messages[i].ID == st.msgID {
			msg := c.Messages[i]
			return &msg, streamErr
		}
	}
	return nil, storage.ErrMessageNotFound
}

// =============================================================================
// STATUS AND RENDERING
// =============================================================================

// Status tests the backend connection and caches the result. A successful
// test turns demo mode off.
func (s *Service) Status(ctx context.Context) backend.ConnectionResult {
	res := s.Client.TestConnection(ctx)
	if res.Connected {
		s.Mode.Set(false)
	}
	s.setStatus(res)
	return res
}

// LastStatus returns the most recent connection result without probing.
func (s *Service) LastStatus() backend.ConnectionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Service) setStatus(res backend.ConnectionResult) {
	s.mu.Lock()
	s.status = res
	s.mu.Unlock()
}

// RenderMessage returns the HTML for one message. User messages are
// rendered too, so pasted math shows up typeset.
func (s *Service) RenderMessage(msg storage.Message) string {
	return s.Renderer().Render(msg.Content)
}

// Renderer returns the current renderer.
func (s *Service) Renderer() *render.Renderer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderer
}

// SetRenderer swaps the renderer, e.g. after a config reload. Streams in
// flight pick it up on their next update.
func (s *Service) SetRenderer(r *render.Renderer) {
	if r == nil {
		return
	}
	s.mu.Lock()
	s.renderer = r
	s.mu.Unlock()
}
