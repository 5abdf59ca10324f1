// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MODE MANAGEMENT TESTS
// =============================================================================

func TestSetDemoMode(t *testing.T) {
	original := IsDemoMode()
	defer SetDemoMode(original)

	SetDemoMode(true)
	if !IsDemoMode() {
		t.Error("IsDemoMode should return true after SetDemoMode(true)")
	}
	if StatusBadge() != "[DEMO]" || StatusIndicator() != "DEMO MODE" {
		t.Errorf("badge=%q indicator=%q", StatusBadge(), StatusIndicator())
	}

	SetDemoMode(false)
	if IsDemoMode() || StatusBadge() != "" {
		t.Error("demo mode should be off")
	}
}

func TestMode_ThreadSafe(t *testing.T) {
	var m Mode
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				m.Set(j%2 == 0)
				_ = m.Enabled()
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host   string
		expect bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"127.0.0.1", true},
		{"127.0.0.1:8000", true},
		{"::1", true},
		{"[::1]:8000", true},
		{"db.internal", false},
		{"192.168.1.10", false},
		{"0.0.0.0", false},
	}
	for _, tt := range tests {
		if got := IsLocalhost(tt.host); got != tt.expect {
			t.Errorf("IsLocalhost(%q) = %v, want %v", tt.host, got, tt.expect)
		}
	}
}

func TestValidateBackendURL(t *testing.T) {
	valid := []string{"http://localhost:8000", "https://sql.example.com/base"}
	for _, u := range valid {
		if err := ValidateBackendURL(u); err != nil {
			t.Errorf("ValidateBackendURL(%q) = %v", u, err)
		}
	}

	if err := ValidateBackendURL("file:///etc/passwd"); !errors.Is(err, ErrInvalidURLScheme) {
		t.Errorf("file URL: got %v", err)
	}
	if err := ValidateBackendURL("http://"); err == nil {
		t.Error("URL without host should fail")
	}
}

// =============================================================================
// RESPONDER TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := map[string]Topic{
		"What tables exist?":          TopicSchema,
		"Describe the SCHEMA":         TopicSchema,
		"Count the active companies":  TopicCount,
		"how many orders last week":   TopicCount,
		"show me a sample":            TopicSample,
		"give an example row":         TopicSample,
		"hello":                       TopicGeneral,
		"how many rows in each table": TopicSchema, // first keyword group wins
	}
	for prompt, want := range tests {
		if got := Classify(prompt); got != want {
			t.Errorf("Classify(%q) = %q, want %q", prompt, got, want)
		}
	}
}

func TestRespond(t *testing.T) {
	r := NewResponder(Pacing{})

	plain := r.Respond("how many customers?", false)
	if !strings.Contains(plain, "1,247") || strings.Contains(plain, "```sql") {
		t.Errorf("unexpected answer: %q", plain)
	}

	withQuery := r.Respond("how many customers?", true)
	if !strings.HasSuffix(withQuery, "```sql\nSELECT COUNT(*) FROM operational.companies WHERE status = 'active'\n```") {
		t.Errorf("missing query section: %q", withQuery)
	}

	general := r.Respond("  tell me something  ", false)
	if !strings.Contains(general, `You asked: "tell me something"`) {
		t.Errorf("general answer should echo the prompt: %q", general)
	}
}

func TestStream_ConcatenationMatchesRespond(t *testing.T) {
	r := NewResponder(Pacing{})
	var sb strings.Builder
	chunks := 0

	err := r.Stream(context.Background(), "show a sample", true, func(c string) {
		sb.WriteString(c)
		chunks++
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if sb.String() != r.Respond("show a sample", true) {
		t.Error("streamed chunks do not reassemble the answer")
	}
	if chunks < 10 {
		t.Errorf("expected word-level chunks, got %d", chunks)
	}
}

func TestStream_Paced(t *testing.T) {
	r := NewResponder(Pacing{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond})
	start := time.Now()
	n := 0
	if err := r.Stream(context.Background(), "hello", false, func(string) { n++ }); err != nil {
		t.Fatal(err)
	}
	// The first word is immediate; every later one waits at least Min.
	if min := time.Duration(n-1) * 5 * time.Millisecond; time.Since(start) < min {
		t.Errorf("stream of %d words finished in %v, expected at least %v", n, time.Since(start), min)
	}
}

func TestStream_Cancelled(t *testing.T) {
	r := NewResponder(Pacing{Min: 20 * time.Millisecond, Max: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	n := 0
	err := r.Stream(ctx, "hello", false, func(string) {
		n++
		if n == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 chunks before cancellation, got %d", n)
	}
}

func TestNewResponder_FixesInvertedPacing(t *testing.T) {
	r := NewResponder(Pacing{Min: 10 * time.Millisecond, Max: time.Millisecond})
	if r.pacing.Max != r.pacing.Min {
		t.Errorf("Max should be raised to Min, got %+v", r.pacing)
	}
}
