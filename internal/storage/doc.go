// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence for sqlchat.
//
// Chats are held in memory by a ChatStore and written through to a
// key/value Backend after every mutation. Two keys are used, matching the
// browser client's localStorage layout so exported blobs can be moved
// between the two:
//
//	nl-sql-chats            JSON array of chats, newest first
//	nl-sql-current-chat-id  ID of the selected chat ("" for none)
//
// # Key Types
//
//   - ChatStore: conversation list, current selection and message edits
//   - Chat, Message: the persisted records
//   - Backend: key/value persistence (FileBackend, SQLiteBackend, MemoryBackend)
//   - ChatMeta: lightweight listing and search result
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend(path)
//	store, err := storage.Open(ctx, backend)
//	msg, err := store.AddMessage(ctx, "", storage.RoleUser, "How many orders?")
//
//	for _, meta := range store.Search("orders") {
//	    fmt.Println(meta.Title)
//	}
package storage
