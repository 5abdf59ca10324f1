// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeBackend answers OPTIONS with 204 and POST with the given deltas.
func fakeBackend(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			b, _ := json.Marshal(backend.StreamEvent{Type: backend.EventTextDelta, TextDelta: d})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, backendURL string) *Server {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.NewMemoryBackend())
	require.NoError(t, err)

	cfg := backend.DefaultConfig()
	cfg.BaseURL = backendURL
	svc := chat.NewService(store, backend.NewClientWithConfig(cfg),
		offline.NewResponder(offline.Pacing{}), &offline.Mode{}, render.New())

	return New(Config{Logger: log.New(io.Discard, "", 0)}, svc)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// sseEvents splits an SSE body into data payloads.
func sseEvents(body string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			out = append(out, data)
		}
	}
	return out
}

// =============================================================================
// RENDER
// =============================================================================

func TestHandleRender(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := do(t, s, http.MethodPost, "/api/render", `{"text":"Area is $\\pi r^2$ and\n\n$$E=mc^2$$"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RenderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.ContainsLatex)
	require.Len(t, resp.Spans, 2)
	require.Equal(t, "inline", resp.Spans[0].Kind)
	require.Equal(t, "$", resp.Spans[0].Delimiter)
	require.Equal(t, `\pi r^2`, resp.Spans[0].Expr)
	require.Equal(t, "block", resp.Spans[1].Kind)
	require.Contains(t, resp.HTML, render.ClassBlockContainer)
}

func TestHandleRender_PlainText(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := do(t, s, http.MethodPost, "/api/render", `{"text":"no math here"}`)
	var resp RenderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.ContainsLatex)
	require.Empty(t, resp.Spans)
	require.Equal(t, "<p>no math here</p>\n", resp.HTML)
}

func TestHandleRender_BadRequests(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := do(t, s, http.MethodPost, "/api/render", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	huge := `{"text":"` + strings.Repeat("a", MaxRequestBodySize+10) + `"}`
	rec = do(t, s, http.MethodPost, "/api/render", huge)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/render", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHighlightCSS(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	rec := do(t, s, http.MethodGet, "/api/highlight.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	require.Contains(t, rec.Body.String(), ".chroma")
}

// =============================================================================
// CHATS
// =============================================================================

func TestChatLifecycle(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := do(t, s, http.MethodPost, "/api/chats", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created ChatView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, storage.DefaultTitle, created.Title)

	rec = do(t, s, http.MethodGet, "/api/chats", "")
	var list ChatListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Chats, 2)
	require.Equal(t, created.ID, list.CurrentID)

	other := list.Chats[1].ID
	rec = do(t, s, http.MethodPost, "/api/chats/"+other+"/select", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, other, s.chat.Store.CurrentChatID())

	rec = do(t, s, http.MethodDelete, "/api/chats/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/chats/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/chats/nope/select", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetChat_RendersMessages(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	ctx := context.Background()
	_, err := s.chat.Store.AddMessage(ctx, "", storage.RoleAssistant, "Ratio $\\frac{1}{2}$")
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/chats/"+s.chat.Store.CurrentChatID(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view ChatView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Messages, 1)
	require.Equal(t, "Ratio $\\frac{1}{2}$", view.Messages[0].Content)
	require.Contains(t, view.Messages[0].HTML, render.ClassInlineContainer)
}

func TestListChats_Search(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	_, err := s.chat.Store.AddMessage(context.Background(), "", storage.RoleUser, "quarterly revenue")
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/chats?q=revenue", "")
	var list ChatListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Chats, 1)

	rec = do(t, s, http.MethodGet, "/api/chats?q=zzz", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Empty(t, list.Chats)
}

func TestExportChat(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	id := s.chat.Store.CurrentChatID()

	rec := do(t, s, http.MethodGet, "/api/chats/"+id+"/export?format=markdown", "")
	require.Equal(t, http.StatusConflict, rec.Code, "empty chats cannot be exported")

	_, err := s.chat.Store.AddMessage(context.Background(), id, storage.RoleUser, "What is $x$?")
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/api/chats/"+id+"/export?format=md", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/markdown", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), `filename="chat.md"`)
	require.Contains(t, rec.Body.String(), "What is $x$?")

	rec = do(t, s, http.MethodGet, "/api/chats/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), render.ClassInlineContainer)

	rec = do(t, s, http.MethodGet, "/api/chats/"+id+"/export?format=pdf", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestSendMessage_StreamsSSE(t *testing.T) {
	be := fakeBackend(t, "Half is ", "$\\frac{1}{2}$")
	s := newTestServer(t, be.URL)

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"what is half?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := sseEvents(rec.Body.String())
	require.Len(t, events, 3)
	require.Equal(t, "[DONE]", events[2])

	var last StreamEvent
	require.NoError(t, json.Unmarshal([]byte(events[1]), &last))
	require.Equal(t, "text-delta", last.Type)
	require.Equal(t, "$\\frac{1}{2}$", last.TextDelta)
	require.Contains(t, last.HTML, render.ClassInlineContainer)
	require.NotEmpty(t, last.MessageID)

	current, _ := s.chat.Store.CurrentChat()
	require.Len(t, current.Messages, 2)
	require.Equal(t, "Half is $\\frac{1}{2}$", current.Messages[1].Content)
}

func TestSendMessage_DemoFallback(t *testing.T) {
	be := httptest.NewServer(http.NotFoundHandler())
	url := be.URL
	be.Close()
	s := newTestServer(t, url)

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"show tables","show_query":true}`)
	events := sseEvents(rec.Body.String())
	require.Greater(t, len(events), 2)

	var first StreamEvent
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	require.True(t, first.Demo)
	require.True(t, s.chat.Mode.Enabled())

	current, _ := s.chat.Store.CurrentChat()
	require.Contains(t, current.Messages[1].Content, "```sql")
}

func TestSendMessage_BackendErrorEvent(t *testing.T) {
	be := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(be.Close)
	s := newTestServer(t, be.URL)

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"hello"}`)
	events := sseEvents(rec.Body.String())
	require.Len(t, events, 2)

	var ev StreamEvent
	require.NoError(t, json.Unmarshal([]byte(events[0]), &ev))
	require.Equal(t, "error", ev.Type)
	require.Equal(t, "The backend returned an error.", ev.Error)
	require.Equal(t, "[DONE]", events[1])
}

func TestSendMessage_Validation(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	long := `{"text":"` + strings.Repeat("x", MaxMessageLength+1) + `"}`
	rec = do(t, s, http.MethodPost, "/api/messages", long)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/messages", `{"text":"hi","chat_id":"missing"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	msg, err := s.chat.Store.AddMessage(context.Background(), "", storage.RoleUser, "draft")
	require.NoError(t, err)

	rec := do(t, s, http.MethodPatch, "/api/messages/"+msg.ID, `{"content":"final"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	current, _ := s.chat.Store.CurrentChat()
	require.Equal(t, "final", current.Messages[0].Content)

	rec = do(t, s, http.MethodPatch, "/api/messages/unknown", `{"content":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/messages/"+msg.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	current, _ = s.chat.Store.CurrentChat()
	require.Empty(t, current.Messages)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHandleHealth(t *testing.T) {
	be := fakeBackend(t)
	s := newTestServer(t, be.URL)

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "connected", health.Backend)
	require.False(t, health.DemoMode)
	require.Equal(t, Version, health.Version)
}

func TestHandleHealth_BackendDown(t *testing.T) {
	be := httptest.NewServer(http.NotFoundHandler())
	url := be.URL
	be.Close()
	s := newTestServer(t, url)

	rec := do(t, s, http.MethodGet, "/health", "")
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "disconnected", health.Backend)
	require.Equal(t, "Backend not available", health.Detail)
}

// =============================================================================
// LIFECYCLE AND HOOKS
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, nil)
	require.Equal(t, DefaultAddr, s.Addr())
	require.NotNil(t, s.cfg.Logger)
	require.NoError(t, s.Shutdown(context.Background()), "shutdown before start is a no-op")
}

func TestLogLatexErrors(t *testing.T) {
	var buf bytes.Buffer
	hook := LogLatexErrors(log.New(&buf, "", 0))

	r := render.New(render.WithErrorHook(hook))
	out := r.Render(`$\frac{1}{2$`)
	require.Contains(t, out, render.ClassError)
	require.Contains(t, buf.String(), "LATEX_ERROR | delim=$ expr=")
}
