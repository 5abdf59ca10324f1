// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the natural-language SQL
// chat backend.
//
// The backend accepts POST /api/chat with the conversation history and
// answers with a line stream:
//
//	data: {"type":"text-delta","textDelta":"SELECT"}
//	data: {"type":"text-delta","textDelta":" 1"}
//	data: [DONE]
//
// # Key Types
//
//   - Client: sends chat requests and connection probes
//   - ChatRequest, WireMessage: the request body
//   - StreamReader: parses the data: line stream into Deltas
//   - StreamAccumulator: collects deltas into the full answer
//   - ClientError: typed errors (connection, timeout, bad status)
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.Config{BaseURL: url})
//	acc := backend.NewStreamAccumulator()
//	err := client.Stream(ctx, req, acc.Add)
//	if backend.IsConnection(err) {
//	    // fall back to the demo responder
//	}
package backend
