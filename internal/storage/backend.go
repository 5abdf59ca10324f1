// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/sqlchat/internal/util"
)

// Backend is flat key/value persistence. Get returns ErrKeyNotFound for
// a missing key. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileBackend stores each key as a JSON file in Dir.
type FileBackend struct {
	Dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileBackend{Dir: dir}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.Dir, util.SafeFilename(key)+".json")
}

// Get implements Backend.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, withID(ErrKeyNotFound, key)
	}
	return data, err
}

// Put implements Backend. Writes are atomic.
func (b *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return util.AtomicWriteFile(b.path(key), value, 0600)
}

// Delete implements Backend. Deleting a missing key is not an error.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error {
	return nil
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend keeps values in a map. It backs demo sessions and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	if !ok {
		return nil, withID(ErrKeyNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Put implements Backend.
func (b *MemoryBackend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	return nil
}
