// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/sqlchat/internal/util"
)

// =============================================================================
// CHAT STORE
// =============================================================================

// ChatStore holds every chat in memory and writes through to a Backend
// after each persisted mutation. Methods that take a chatID act on the
// current chat when chatID is "".
type ChatStore struct {
	mu        sync.RWMutex
	backend   Backend
	chats     []*Chat // newest first
	currentID string

	// now is replaceable in tests.
	now func() time.Time
}

// Open loads chats from backend. A missing or unreadable chat list starts
// empty; an empty store gets one new chat. Messages left loading or in
// edit mode by an earlier process are settled.
func Open(ctx context.Context, backend Backend) (*ChatStore, error) {
	s := &ChatStore{backend: backend, now: time.Now}

	data, err := backend.Get(ctx, KeyChats)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("load chats: %w", err)
	default:
		if err := json.Unmarshal(data, &s.chats); err != nil {
			log.Printf("STORE_LOAD_ERROR | key=%s err=%v", KeyChats, err)
			s.chats = nil
		}
	}
	s.settleStale()

	current, err := backend.Get(ctx, KeyCurrentChatID)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return nil, fmt.Errorf("load current chat: %w", err)
	default:
		s.currentID = string(current)
	}

	if len(s.chats) == 0 {
		if _, err := s.CreateNewChat(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	if s.find(s.currentID) == nil {
		s.currentID = s.chats[0].ID
	}
	return s, nil
}

// settleStale clears flags that only make sense while a client is live.
func (s *ChatStore) settleStale() {
	for _, c := range s.chats {
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		kept := c.Messages[:0]
		for _, m := range c.Messages {
			if m.IsLoading && m.Content == "" {
				continue
			}
			m.IsLoading = false
			m.IsEditing = false
			kept = append(kept, m)
		}
		c.Messages = kept
	}
}

// Close closes the backend.
func (s *ChatStore) Close() error {
	return s.backend.Close()
}

// persist writes both keys. Callers hold s.mu.
func (s *ChatStore) persist(ctx context.Context) error {
	chats := s.chats
	if chats == nil {
		chats = []*Chat{}
	}
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("encode chats: %w", err)
	}
	if err := s.backend.Put(ctx, KeyChats, data); err != nil {
		return fmt.Errorf("save chats: %w", err)
	}
	if err := s.backend.Put(ctx, KeyCurrentChatID, []byte(s.currentID)); err != nil {
		return fmt.Errorf("save current chat: %w", err)
	}
	return nil
}

func (s *ChatStore) find(id string) *Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// resolve returns the chat for chatID, or the current chat for "".
func (s *ChatStore) resolve(chatID string) (*Chat, error) {
	if chatID == "" {
		chatID = s.currentID
	}
	c := s.find(chatID)
	if c == nil {
		return nil, withID(ErrChatNotFound, chatID)
	}
	return c, nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chats returns copies of every chat, newest first.
func (s *ChatStore) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, len(s.chats))
	for i, c := range s.chats {
		out[i] = c.clone()
	}
	return out
}

// List returns listing entries, newest first.
func (s *ChatStore) List() []ChatMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChatMeta, len(s.chats))
	for i, c := range s.chats {
		out[i] = c.Meta()
	}
	return out
}

// CurrentChatID returns the selected chat's ID.
func (s *ChatStore) CurrentChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// CurrentChat returns a copy of the selected chat.
func (s *ChatStore) CurrentChat() (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.find(s.currentID)
	if c == nil {
		return Chat{}, false
	}
	return c.clone(), true
}

// Chat returns a copy of the chat with id.
func (s *ChatStore) Chat(id string) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.resolve(id)
	if err != nil {
		return Chat{}, err
	}
	return c.clone(), nil
}

// CreateNewChat prepends an empty chat and selects it.
func (s *ChatStore) CreateNewChat(ctx context.Context) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.newChatLocked()
	return c.clone(), s.persist(ctx)
}

func (s *ChatStore) newChatLocked() *Chat {
	now := s.now()
	c := &Chat{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats = append([]*Chat{c}, s.chats...)
	s.currentID = c.ID
	return c
}

// SelectChat makes id the current chat.
func (s *ChatStore) SelectChat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(id) == nil {
		return withID(ErrChatNotFound, id)
	}
	s.currentID = id
	return s.persist(ctx)
}

// DeleteChat removes a chat. Deleting the current chat selects the first
// remaining one, or a fresh chat when none remain.
func (s *ChatStore) DeleteChat(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.chats {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return withID(ErrChatNotFound, id)
	}
	s.chats = append(s.chats[:idx], s.chats[idx+1:]...)

	if s.currentID == id {
		if len(s.chats) > 0 {
			s.currentID = s.chats[0].ID
		} else {
			s.newChatLocked()
		}
	}
	return s.persist(ctx)
}

// ClearCurrentChat removes every message from the current chat and resets
// its title.
func (s *ChatStore) ClearCurrentChat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolve("")
	if err != nil {
		return err
	}
	c.Messages = []Message{}
	c.Title = DefaultTitle
	c.UpdatedAt = s.now()
	return s.persist(ctx)
}

// Search returns chats whose title or any message contains query,
// ignoring case. An empty query lists everything.
func (s *ChatStore) Search(query string) []ChatMeta {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return s.List()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ChatMeta
	for _, c := range s.chats {
		if strings.Contains(strings.ToLower(c.Title), query) {
			results = append(results, c.Meta())
			continue
		}
		for _, m := range c.Messages {
			if strings.Contains(strings.ToLower(m.Content), query) {
				results = append(results, c.Meta())
				break
			}
		}
	}
	return results
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends a message. The first user message of a chat still
// titled DefaultTitle becomes its title.
func (s *ChatStore) AddMessage(ctx context.Context, chatID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, withID(ErrInvalidRole, string(role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolve(chatID)
	if err != nil {
		return Message{}, err
	}

	now := s.now()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now

	if role == RoleUser && c.Title == DefaultTitle && countRole(c.Messages, RoleUser) == 1 {
		if title := TitleFrom(content); title != "" {
			c.Title = title
		}
	}
	return msg, s.persist(ctx)
}

// UpdateMessage replaces a message's content and leaves edit mode.
func (s *ChatStore) UpdateMessage(ctx context.Context, chatID, messageID, content string) error {
	return s.mutateMessage(ctx, chatID, messageID, true, func(m *Message) {
		m.Content = content
		m.IsEditing = false
	})
}

// DeleteMessage removes a message.
func (s *ChatStore) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolve(chatID)
	if err != nil {
		return err
	}
	idx := c.findMessage(messageID)
	if idx < 0 {
		return withID(ErrMessageNotFound, messageID)
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	c.UpdatedAt = s.now()
	return s.persist(ctx)
}

// StartMessageEditing puts a message in edit mode. Edit mode is view
// state and is not persisted on its own.
func (s *ChatStore) StartMessageEditing(chatID, messageID string) error {
	return s.mutateMessage(context.Background(), chatID, messageID, false, func(m *Message) {
		m.IsEditing = true
	})
}

// CancelMessageEditing leaves edit mode without changing the content.
func (s *ChatStore) CancelMessageEditing(chatID, messageID string) error {
	return s.mutateMessage(context.Background(), chatID, messageID, false, func(m *Message) {
		m.IsEditing = false
	})
}

// AddLoadingMessage appends an empty assistant message marked as loading
// and returns it. Streamed text goes through UpdateLoadingMessage.
func (s *ChatStore) AddLoadingMessage(ctx context.Context, chatID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolve(chatID)
	if err != nil {
		return Message{}, err
	}
	now := s.now()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: now,
		IsLoading: true,
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now
	return msg, s.persist(ctx)
}

// UpdateLoadingMessage sets the text received so far. The message stays
// in the loading state until FinishLoadingMessage.
func (s *ChatStore) UpdateLoadingMessage(ctx context.Context, chatID, messageID, content string) error {
	return s.mutateMessage(ctx, chatID, messageID, true, func(m *Message) {
		m.Content = content
	})
}

// FinishLoadingMessage stores the final text and clears the loading state.
func (s *ChatStore) FinishLoadingMessage(ctx context.Context, chatID, messageID, content string) error {
	return s.mutateMessage(ctx, chatID, messageID, true, func(m *Message) {
		m.Content = content
		m.IsLoading = false
	})
}

// RemoveLoadingMessage drops a loading message, e.g. after a failed
// request.
func (s *ChatStore) RemoveLoadingMessage(ctx context.Context, chatID, messageID string) error {
	return s.DeleteMessage(ctx, chatID, messageID)
}

// mutateMessage applies fn to one message. When save is set the chat's
// UpdatedAt is bumped and the store is persisted.
func (s *ChatStore) mutateMessage(ctx context.Context, chatID, messageID string, save bool, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.resolve(chatID)
	if err != nil {
		return err
	}
	idx := c.findMessage(messageID)
	if idx < 0 {
		return withID(ErrMessageNotFound, messageID)
	}
	fn(&c.Messages[idx])
	if !save {
		return nil
	}
	c.UpdatedAt = s.now()
	return s.persist(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

// TitleFrom derives a chat title from a message: NFC-normalized, flattened
// to one line and cut to 50 characters plus "..." when longer.
func TitleFrom(content string) string {
	title := util.FlattenLines(norm.NFC.String(content))
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "..."
	}
	return title
}

func previewText(content string) string {
	return util.TruncateRunes(util.FlattenLines(content), 80)
}

func countRole(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

// FormatChatList formats chats as a numbered table for terminal display.
// current marks the selected chat.
func FormatChatList(chats []ChatMeta, current string, width int) string {
	if len(chats) == 0 {
		return "No chats."
	}
	if width < 40 {
		width = 40
	}

	var sb strings.Builder
	for i, c := range chats {
		marker := "  "
		if c.ID == current {
			marker = "* "
		}
		line := fmt.Sprintf("%s%2d. %s  (%d msgs, %s)",
			marker, i+1, c.Title, c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04"))
		sb.WriteString(util.TruncateWidth(line, width))
		sb.WriteByte('\n')
	}
	return sb.String()
}
