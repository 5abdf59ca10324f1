// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jeranaias/sqlchat/internal/export"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// HandleExport writes a chat as HTML, markdown or JSON. The chat is named
// by ID or by its 1-based position in the chat list; the current chat is
// used when none is given.
func HandleExport(ctx context.Context, env *Env, args *ArgParser) error {
	cfg, err := env.loadConfig(args)
	if err != nil {
		return err
	}

	format, err := export.ParseFormat(args.FirstFlag("format", "f"))
	if err != nil {
		return NewUsageError("format", args.FirstFlag("format", "f"), "must be html, md or json", "sqlchat export --format md")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return commandError("export", "open", err)
	}
	defer store.Close()

	c, err := pickChat(store, args.Positional(1))
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = args.FirstFlag("output", "o")
	opts.OpenAfterExport = args.BoolFlag("open")
	opts.IncludeMetadata = !args.BoolFlag("no-metadata")
	opts.IncludeTimestamps = !args.BoolFlag("no-timestamps")
	if theme := args.Flag("theme"); theme != "" {
		opts.Theme = theme
	}

	exporter, err := export.New(format, opts, newRenderer(cfg, nil))
	if err != nil {
		return err
	}

	if args.BoolFlag("stdout") {
		data, err := exporter.Export(&c)
		if err != nil {
			return commandError("export", string(format), err)
		}
		_, err = env.Stdout.Write(data)
		return err
	}

	path, err := export.ExportToFile(&c, exporter, opts)
	if err != nil {
		return commandError("export", string(format), err)
	}
	fmt.Fprintf(env.Stdout, "%s %s\n", SuccessStyle.Render("Exported to"), path)
	return nil
}

// pickChat resolves ref as a list position first, then as an ID.
func pickChat(store *storage.ChatStore, ref string) (storage.Chat, error) {
	if _, err := strconv.Atoi(ref); err == nil {
		list := store.List()
		idx, err := ParseIndex(ref, len(list))
		if err != nil {
			return storage.Chat{}, err
		}
		return store.Chat(list[idx].ID)
	}
	return store.Chat(ref)
}
