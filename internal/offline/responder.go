// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const demoNote = "*Demo mode: no backend is connected, so this answer is canned.*"

// =============================================================================
// CANNED ANSWERS
// =============================================================================

// Topic identifies which canned answer a prompt maps to.
type Topic string

const (
	TopicSchema  Topic = "schema"
	TopicCount   Topic = "count"
	TopicSample  Topic = "sample"
	TopicGeneral Topic = "general"
)

type answer struct {
	body  string
	query string
}

var answers = map[Topic]answer{
	TopicSchema: {
		body: `The database exposes several groups of tables:

- Companies
- Entities
- Transactions
- Sales

Each group lives in its own schema with a shared key layout.

` + demoNote,
		query: "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE'",
	},
	TopicCount: {
		body: `**Result:** 1,247 matching records.

That is about $\frac{1247}{5000} \approx 25\%$ of all companies.

` + demoNote,
		query: "SELECT COUNT(*) FROM operational.companies WHERE status = 'active'",
	},
	TopicSample: {
		body: `A few sample rows:

| ID | Name | Category | Value |
|----|------|----------|-------|
| 1 | Acme Corp | Technology | 50,000,000 |
| 2 | Global Inc | Manufacturing | 75,000,000 |
| 3 | StartupXYZ | Software | 2,500,000 |

` + demoNote,
		query: "SELECT id, name, category, value FROM operational.companies ORDER BY value DESC LIMIT 3",
	},
	TopicGeneral: {
		body: `You asked: "%PROMPT%"

With a backend connected I would:

1. Find the tables that hold the data
2. Write and run a SQL query
3. Summarize the result

` + demoNote + `

Start the backend (default ` + "`http://localhost:8000`" + `) to query a real database.`,
		query: "SELECT * FROM relevant_table WHERE condition = 'user_criteria'",
	},
}

// Classify picks the topic for a prompt by keyword, case-insensitively.
func Classify(prompt string) Topic {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "table") || strings.Contains(p, "schema"):
		return TopicSchema
	case strings.Contains(p, "count") || strings.Contains(p, "how many"):
		return TopicCount
	case strings.Contains(p, "sample") || strings.Contains(p, "example"):
		return TopicSample
	default:
		return TopicGeneral
	}
}

// =============================================================================
// RESPONDER
// =============================================================================

// Pacing controls the delay between streamed words. Each word waits
// between Min and Max.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

// DefaultPacing is 50–150ms per word.
func DefaultPacing() Pacing {
	return Pacing{Min: 50 * time.Millisecond, Max: 150 * time.Millisecond}
}

// Responder produces demo answers.
type Responder struct {
	pacing Pacing
}

// NewResponder creates a responder. A zero Pacing streams without delay.
func NewResponder(p Pacing) *Responder {
	if p.Max < p.Min {
		p.Max = p.Min
	}
	return &Responder{pacing: p}
}

// Respond returns the full answer for prompt. With showQuery set, a
// fenced SQL section with the demo query is appended.
func (r *Responder) Respond(prompt string, showQuery bool) string {
	a := answers[Classify(prompt)]
	body := strings.ReplaceAll(a.body, "%PROMPT%", strings.TrimSpace(prompt))
	if showQuery {
		body += "\n\n---\n**SQL query:**\n```sql\n" + a.query + "\n```"
	}
	return body
}

// Stream emits the answer as word chunks, each followed by the space that
// separated it from the next word, so the concatenated chunks equal
// Respond. It returns ctx.Err() if cancelled between words.
func (r *Responder) Stream(ctx context.Context, prompt string, showQuery bool, emit func(chunk string)) error {
	words := strings.Split(r.Respond(prompt, showQuery), " ")

	// The limiter enforces the minimum spacing; jitter adds the rest.
	limit := rate.Inf
	if r.pacing.Min > 0 {
		limit = rate.Every(r.pacing.Min)
	}
	limiter := rate.NewLimiter(limit, 1)
	spread := r.pacing.Max - r.pacing.Min

	for i, w := range words {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if spread > 0 {
			if err := sleep(ctx, time.Duration(rand.Int64N(int64(spread)))); err != nil {
				return err
			}
		}
		if i < len(words)-1 {
			w += " "
		}
		emit(w)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
