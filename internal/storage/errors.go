// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Use errors.Is to test for these.
var (
	ErrChatNotFound    = &StoreError{Message: "chat not found"}
	ErrMessageNotFound = &StoreError{Message: "message not found"}
	ErrKeyNotFound     = &StoreError{Message: "key not found"}
	ErrInvalidRole     = &StoreError{Message: "invalid message role"}
	ErrClosed          = &StoreError{Message: "backend closed"}
)

// StoreError is a storage failure that can be compared with errors.Is.
// ID, when set, names the chat or message involved and does not take part
// in comparison.
type StoreError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// withID returns a copy of sentinel naming id.
func withID(sentinel *StoreError, id string) error {
	return &StoreError{Message: sentinel.Message, ID: id}
}
