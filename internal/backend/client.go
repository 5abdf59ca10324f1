// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the backend client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Type == e.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeBadStatus
	ErrTypeInvalidRequest
)

// Sentinel errors for easy checking.
var (
	ErrConnection = &ClientError{Type: ErrTypeConnection, Message: "backend not available"}
	ErrTimeout    = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrBadStatus  = &ClientError{Type: ErrTypeBadStatus, Message: "backend returned an error status"}
)

// IsConnection reports whether err means the backend could not be reached.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the backend client.
type Config struct {
	// BaseURL is the backend base URL (default: http://localhost:8000)
	BaseURL string

	// SystemPrompt is sent with every chat request.
	SystemPrompt string

	// Timeout bounds a whole streamed answer; zero means no limit beyond
	// the caller's context.
	Timeout time.Duration

	// ConnectTimeout bounds connection tests (default: 5s)
	ConnectTimeout time.Duration
}

// Defaults.
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultConnectTimeout = 5 * time.Second
)

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		SystemPrompt:   DefaultSystemPrompt,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. It is safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client

	mu     sync.RWMutex
	status Status
}

// NewClient creates a client with the default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client, filling zero values with defaults.
func NewClientWithConfig(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	return &Client{
		config: &cfg,
		// Streams are bounded by context, not by a client-wide timeout.
		httpClient: &http.Client{},
		status:     StatusUnknown,
	}
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return *c.config
}

func (c *Client) chatURL() string {
	return c.config.BaseURL + "/api/chat"
}

// BuildRequest wraps history in a request with the configured system prompt.
func (c *Client) BuildRequest(history []WireMessage, showQuery bool) ChatRequest {
	if history == nil {
		history = []WireMessage{}
	}
	return ChatRequest{
		System:    c.config.SystemPrompt,
		Tools:     []any{},
		Messages:  history,
		ShowQuery: showQuery,
	}
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream posts req and calls callback for every text delta, then once
// with Done set. It blocks until the stream ends, ctx is cancelled, or an
// error occurs. A cancelled ctx returns ctx.Err() unwrapped.
func (c *Client) Stream(ctx context.Context, req ChatRequest, callback StreamCallback) error {
	if req.System == "" {
		req.System = c.config.SystemPrompt
	}
	if req.Tools == nil {
		req.Tools = []any{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.classify(ctx, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ClientError{
			Type:    ErrTypeBadStatus,
			Message: "stream request failed: " + resp.Status,
		}
	}
	c.setStatus(StatusConnected)

	reader := NewStreamReader(resp.Body)
	if err := reader.Process(ctx, callback); err != nil {
		if ctx.Err() != nil {
			return c.classify(ctx, err)
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	return nil
}

// classify maps a transport error to a ClientError, passing through
// caller cancellation.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	c.setStatus(StatusDisconnected)
	return &ClientError{Type: ErrTypeConnection, Message: "backend not available", Cause: err}
}

// =============================================================================
// CONNECTION TEST
// =============================================================================

// TestConnection probes the chat endpoint with OPTIONS. Any 2xx, or 405
// from servers that do not implement OPTIONS, counts as connected.
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	c.setStatus(StatusChecking)

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	result := c.probe(ctx)
	c.setStatus(result.Status)
	return result
}

func (c *Client) probe(ctx context.Context) ConnectionResult {
	down := func(detail string) ConnectionResult {
		return ConnectionResult{Status: StatusDisconnected, Detail: detail}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.chatURL(), nil)
	if err != nil {
		return down("Connection failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return down("Connection timeout")
		}
		return down("Backend not available")
	}
	drainAndClose(resp.Body)

	if (resp.StatusCode >= 200 && resp.StatusCode <= 299) || resp.StatusCode == http.StatusMethodNotAllowed {
		return ConnectionResult{Connected: true, Status: StatusConnected, Detail: "Connected to backend"}
	}
	return down("Backend responded with error")
}

// Status returns the last known connection status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
