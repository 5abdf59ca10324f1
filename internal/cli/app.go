// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jeranaias/sqlchat/internal/backend"
	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/server"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// openStore opens the chat store selected by the [storage] section.
func openStore(ctx context.Context, cfg *config.Config) (*storage.ChatStore, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}

	var b storage.Backend
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		b, err = storage.NewSQLiteBackend(path)
	default:
		b, err = storage.NewFileBackend(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage at %s: %w", cfg.Storage.Driver, path, err)
	}

	store, err := storage.Open(ctx, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	return store, nil
}

// newService wires a chat service from cfg. Demo mode uses the process-wide
// flag so status badges agree everywhere.
func newService(cfg *config.Config, store *storage.ChatStore, hook render.ErrorHook) *chat.Service {
	mode := offline.Global()
	if cfg.Demo.Enabled {
		mode.Set(true)
	}
	return chat.NewService(
		store,
		backend.NewClientWithConfig(cfg.BackendClientConfig()),
		offline.NewResponder(cfg.DemoPacing()),
		mode,
		newRenderer(cfg, hook),
	)
}

func newRenderer(cfg *config.Config, hook render.ErrorHook) *render.Renderer {
	if hook == nil {
		return render.New(cfg.RenderOptions()...)
	}
	return render.New(cfg.RenderOptions(render.WithErrorHook(hook))...)
}

// stderrHook logs typesetting failures to w without timestamps.
func stderrHook(w io.Writer) render.ErrorHook {
	return server.LogLatexErrors(log.New(w, "", 0))
}

// readInput reads path, or stdin when path is "" or "-".
func readInput(env *Env, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(env.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
