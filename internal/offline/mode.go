// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
)

// ErrInvalidURLScheme is returned for backend URLs that are not http(s).
var ErrInvalidURLScheme = errors.New("only http and https backend URLs are allowed")

// =============================================================================
// MODE MANAGEMENT
// =============================================================================

// Mode is a demo mode flag safe for concurrent use.
type Mode struct {
	mu      sync.RWMutex
	enabled bool
}

// Set enables or disables demo mode.
func (m *Mode) Set(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Enabled reports whether demo mode is on.
func (m *Mode) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Badge returns "[DEMO]" while enabled, "" otherwise.
func (m *Mode) Badge() string {
	if m.Enabled() {
		return "[DEMO]"
	}
	return ""
}

var global Mode

// Global returns the process-wide mode.
func Global() *Mode {
	return &global
}

// SetDemoMode enables or disables demo mode globally.
func SetDemoMode(enabled bool) {
	global.Set(enabled)
}

// IsDemoMode returns true if demo mode is currently enabled.
func IsDemoMode() bool {
	return global.Enabled()
}

// StatusIndicator returns "DEMO MODE" when in demo mode.
func StatusIndicator() string {
	if IsDemoMode() {
		return "DEMO MODE"
	}
	return ""
}

// StatusBadge returns a formatted badge for the UI.
func StatusBadge() string {
	return global.Badge()
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost checks if a host string refers to a loopback address.
// Accepts "localhost", any 127.0.0.0/8 address and IPv6 loopback, with or
// without a port.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateBackendURL checks that rawURL is an absolute http(s) URL.
func ValidateBackendURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrInvalidURLScheme
	}
	if parsed.Host == "" {
		return errors.New("backend URL has no host")
	}
	return nil
}
