// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline provides demo mode for when the chat backend is
// unreachable.
//
// In demo mode answers come from a Responder that picks a canned markdown
// reply by keyword and streams it word by word, so the rest of the client
// (storage, rendering, the SSE endpoint) behaves as if a backend were
// answering.
//
// # Key Types
//
//   - Mode: thread-safe demo mode flag; a process-wide instance backs
//     SetDemoMode and IsDemoMode
//   - Responder: keyword-matched canned answers with paced streaming
//
// # Usage
//
//	if backend.IsConnection(err) {
//	    offline.SetDemoMode(true)
//	    err = offline.NewResponder(offline.DefaultPacing()).Stream(ctx, prompt, showQuery, cb)
//	}
//
//	fmt.Println(offline.StatusBadge()) // "[DEMO]" while in demo mode
package offline
