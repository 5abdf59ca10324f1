// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

func TestConfigWatcher_DebouncedChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = \"1\"\n"), 0600))

	var calls atomic.Int32
	fired := make(chan struct{}, 10)
	w, err := NewConfigWatcher(path, 150*time.Millisecond, func() {
		calls.Add(1)
		fired <- struct{}{}
	})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("version = \"1\"\n# edit\n"), 0600))
	}
	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0600))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
	time.Sleep(400 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestConfigWatcher_CloseStopsCallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	var calls atomic.Int32
	w, err := NewConfigWatcher(path, 10*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, calls.Load())
}

func TestConfigWatcher_MissingDirectory(t *testing.T) {
	_, err := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "config.toml"), time.Millisecond, func() {})
	require.Error(t, err)
}

func TestReloadRenderer(t *testing.T) {
	defer config.ResetGlobalForTesting()
	store, err := storage.Open(context.Background(), storage.NewMemoryBackend())
	require.NoError(t, err)
	svc := chat.NewService(store, backend.NewClient(), offline.NewResponder(offline.Pacing{}), &offline.Mode{}, render.New())
	before := svc.Renderer()

	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, os.WriteFile(path, []byte("[storage]\ndriver = \"mysql\"\n"), 0600))
	reloadRenderer(path, svc, nil, logger)
	require.Same(t, before, svc.Renderer())
	require.Contains(t, logs.String(), "CONFIG_RELOAD_ERROR")

	require.NoError(t, os.WriteFile(path, []byte("[render]\nhighlight_style = \"monokai\"\n"), 0600))
	reloadRenderer(path, svc, nil, logger)
	require.NotSame(t, before, svc.Renderer())
	require.True(t, strings.Contains(logs.String(), "CONFIG_RELOAD | path="+path+" style=monokai"))
	require.Equal(t, "monokai", config.Global().Render.HighlightStyle)
}
