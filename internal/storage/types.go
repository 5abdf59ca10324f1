// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"time"
)

// Storage keys.
const (
	KeyChats         = "nl-sql-chats"
	KeyCurrentChatID = "nl-sql-current-chat-id"
)

// DefaultTitle is the title of a chat with no user message yet.
const DefaultTitle = "New Chat"

// maxTitleRunes is how much of the first user message becomes the title.
const maxTitleRunes = 50

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// PERSISTED RECORDS
// =============================================================================

// Message is one chat message. JSON names follow the browser client.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsEditing bool      `json:"isEditing,omitempty"`
	IsLoading bool      `json:"isLoading,omitempty"`
}

// Chat is a titled conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// clone returns a deep copy so callers never share the store's slices.
func (c *Chat) clone() Chat {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// findMessage returns the index of the message with id, or -1.
func (c *Chat) findMessage(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// ChatMeta is a listing entry.
type ChatMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	Preview      string    `json:"preview"` // first user message, truncated
}

// Meta builds the listing entry for c.
func (c *Chat) Meta() ChatMeta {
	meta := ChatMeta{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			meta.Preview = previewText(msg.Content)
			break
		}
	}
	return meta
}
