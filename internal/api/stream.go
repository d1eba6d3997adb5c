// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// maxEventSize bounds a single server-sent event line.
const maxEventSize = 1 << 20

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader parses the server-sent event body of /chat/stream. Each event
// carries a JSON payload of either {"text": ...} or {"error": ...}.
type StreamReader struct {
	scanner *bufio.Scanner
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	chunkCount  int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &StreamReader{scanner: scanner}
}

// Process reads the stream and calls the callback for each text chunk. A
// final chunk with Done set is delivered when the stream ends cleanly.
// Blocks until the stream is complete, an error event arrives, or the
// context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	var data strings.Builder

	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return transportError(err)
		}

		line := s.scanner.Text()

		// A blank line terminates an event.
		if line == "" {
			if data.Len() > 0 {
				if err := s.dispatch(data.String(), callback); err != nil {
					return err
				}
				data.Reset()
			}
			continue
		}

		// Comments and non-data fields are ignored.
		if strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
	}

	if err := s.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return transportError(ctx.Err())
		}
		return &ClientError{Type: ErrTypeStream, Message: "failed to read stream", Cause: err}
	}

	// Tolerate a final event without the trailing blank line.
	if data.Len() > 0 {
		if err := s.dispatch(data.String(), callback); err != nil {
			return err
		}
	}

	if callback != nil {
		callback(StreamChunk{Done: true})
	}
	return nil
}

func (s *StreamReader) dispatch(payload string, callback StreamCallback) error {
	var event struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		// Skip malformed events
		return nil
	}

	if event.Error != "" {
		return &ClientError{Type: ErrTypeStream, Message: event.Error}
	}
	if event.Text == "" {
		return nil
	}

	s.accumulator.WriteString(event.Text)
	s.chunkCount++
	if callback != nil {
		callback(StreamChunk{Text: event.Text})
	}
	return nil
}

// Accumulated returns all text received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// ChunkCount returns the number of text chunks received.
func (s *StreamReader) ChunkCount() int {
	return s.chunkCount
}
