// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/server"
)

const (
	reloadDebounce  = 250 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// HandleServe runs the HTTP API until interrupted. Edits to the config file
// rebuild the renderer without a restart.
func HandleServe(ctx context.Context, env *Env, args *ArgParser) error {
	cfg, err := env.loadConfig(args)
	if err != nil {
		return err
	}
	if addr := args.Flag("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if args.BoolFlag("demo") {
		cfg.Demo.Enabled = true
	}

	logger := log.New(env.Stderr, "", log.LstdFlags)
	hook := server.LogLatexErrors(logger)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return commandError("serve", "open", err)
	}
	defer store.Close()

	svc := newService(cfg, store, hook)
	srv := server.New(server.Config{
		Addr:        cfg.Server.Addr,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
		CORSOrigins: cfg.Server.CORSOrigins,
		ShowQuery:   cfg.Demo.ShowQuery,
		Logger:      logger,
	}, svc)

	if path, err := watchPath(env); err == nil {
		watcher, err := NewConfigWatcher(path, reloadDebounce, func() {
			reloadRenderer(path, svc, hook, logger)
		})
		if err != nil {
			logger.Printf("CONFIG_WATCH_ERROR | path=%s err=%v", path, err)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	fmt.Fprintf(env.Stdout, "%s http://%s\n", TitleStyle.Render("sqlchat listening on"), cfg.Server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func watchPath(env *Env) (string, error) {
	if env.ConfigPath != "" {
		return env.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

// reloadRenderer rebuilds the service's renderer from path. A file that
// fails to load leaves the current renderer in place.
func reloadRenderer(path string, svc *chat.Service, hook render.ErrorHook, logger *log.Logger) {
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		logger.Printf("CONFIG_RELOAD_ERROR | path=%s err=%v", path, err)
		return
	}
	svc.SetRenderer(newRenderer(cfg, hook))
	config.SetGlobal(cfg)
	logger.Printf("CONFIG_RELOAD | path=%s style=%s", path, cfg.Render.HighlightStyle)
}
