// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat ties the chat store, the backend client, the demo responder
// and the renderer into one send-and-stream flow.
//
// # Key Types
//
//   - Service: sends a prompt and streams the answer into a loading message
//   - SendOptions: per-request flags such as ShowQuery
//   - Update: one streamed step, carrying raw text and rendered HTML
//
// # Usage
//
//	svc := chat.NewService(store, client, offline.NewResponder(offline.DefaultPacing()), offline.Global(), render.Default())
//	msg, err := svc.Send(ctx, "how many customers?", chat.SendOptions{}, func(u chat.Update) {
//	    fmt.Print(u.Delta)
//	})
//
// When the backend cannot be reached before any text arrives, Send turns on
// demo mode and answers from the canned responder instead. Later sends stay
// in demo mode until it is switched off.
package chat
