// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes rendering and chat over HTTP.
//
// # Endpoints
//
//   - POST   /api/render                - render markdown with math
//   - GET    /api/chats                 - list chats
//   - POST   /api/chats                 - create and select a chat
//   - GET    /api/chats/{id}            - one chat with rendered messages
//   - DELETE /api/chats/{id}            - delete a chat
//   - POST   /api/chats/{id}/select     - make a chat current
//   - GET    /api/chats/{id}/export     - download as html, markdown or json
//   - POST   /api/messages              - send a prompt, answer streams as SSE
//   - PATCH  /api/messages/{id}         - edit a message
//   - DELETE /api/messages/{id}         - delete a message
//   - GET    /api/highlight.css         - chroma stylesheet for code blocks
//   - GET    /health                    - backend status and demo mode
//
// # Middleware
//
// Requests pass through panic recovery, security headers, CORS, request
// logging and a per-IP token bucket rate limit. Request bodies are capped.
//
// # Key Types
//
//   - Server: router, middleware chain and lifecycle
//   - Config: listen address, rate limit and CORS origins
//
// # Usage
//
//	srv := server.New(server.DefaultConfig(), svc)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
