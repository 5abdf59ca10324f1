// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// maxLineSize bounds a single data: line.
const maxLineSize = 1 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader parses the backend's data: line stream.
type StreamReader struct {
	scanner     *bufio.Scanner
	accumulator strings.Builder
	deltas      int
	skipped     int
}

// NewStreamReader creates a stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamReader{scanner: sc}
}

// Process reads the stream and calls callback for each text delta. The
// final callback has Done set. Blank lines, lines without the data:
// prefix, malformed JSON and non-text events are skipped. A stream that
// ends without [DONE] still completes normally.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		delta, done := s.parseLine(s.scanner.Bytes())
		if done {
			break
		}
		if delta != "" {
			s.accumulator.WriteString(delta)
			s.deltas++
			callback(Delta{Text: delta})
		}
	}
	if err := s.scanner.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	callback(Delta{Done: true})
	return nil
}

// parseLine returns the text carried by one line and whether the line
// ends the stream.
func (s *StreamReader) parseLine(line []byte) (string, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return "", false
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return "", false
	}
	payload := line[len(dataPrefix):]
	if string(payload) == doneMarker {
		return "", true
	}

	var ev StreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.skipped++
		return "", false
	}
	if ev.Type != EventTextDelta {
		return "", false
	}
	return ev.TextDelta, false
}

// GetAccumulated returns all text received so far.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// DeltaCount returns the number of text deltas received.
func (s *StreamReader) DeltaCount() int {
	return s.deltas
}

// SkippedCount returns the number of malformed lines.
func (s *StreamReader) SkippedCount() int {
	return s.skipped
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects deltas and timing for one answer.
type StreamAccumulator struct {
	content    strings.Builder
	StartTime  time.Time
	FirstDelta time.Time
	EndTime    time.Time
	Done       bool
}

// NewStreamAccumulator creates a new accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{StartTime: time.Now()}
}

// Add is a StreamCallback.
func (a *StreamAccumulator) Add(d Delta) {
	if d.Text != "" {
		if a.FirstDelta.IsZero() {
			a.FirstDelta = time.Now()
		}
		a.content.WriteString(d.Text)
	}
	if d.Done {
		a.Done = true
		a.EndTime = time.Now()
	}
}

// GetContent returns the accumulated text.
func (a *StreamAccumulator) GetContent() string {
	return a.content.String()
}

// TTFT is the time to the first delta, or zero if none arrived.
func (a *StreamAccumulator) TTFT() time.Duration {
	if a.FirstDelta.IsZero() {
		return 0
	}
	return a.FirstDelta.Sub(a.StartTime)
}

// ParseStream reads a complete stream into a string.
func ParseStream(r io.Reader) (string, error) {
	acc := NewStreamAccumulator()
	if err := NewStreamReader(r).Process(context.Background(), acc.Add); err != nil && !errors.Is(err, io.EOF) {
		return acc.GetContent(), err
	}
	return acc.GetContent(), nil
}
