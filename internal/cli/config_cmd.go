// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/sqlchat/internal/config"
)

// HandleConfig shows or edits configuration.
func HandleConfig(env *Env, args *ArgParser) error {
	cfg, err := env.loadConfig(args)
	if err != nil {
		return err
	}

	switch sub := args.Positional(1); sub {
	case "", "show":
		if args.BoolFlag("json") {
			return NewJSONResponse("config", cfg).Write(env.Stdout)
		}
		fmt.Fprintln(env.Stdout, cfg.String())
		return nil

	case "get":
		key := args.Positional(2)
		v, err := cfg.Get(key)
		if err != nil {
			return NewUsageError("key", key, err.Error(), "sqlchat config get server.addr")
		}
		fmt.Fprintln(env.Stdout, formatValue(v))
		return nil

	case "set":
		key, value := args.Positional(2), strings.Join(args.PositionalFrom(3), " ")
		if key == "" || value == "" {
			return NewUsageError("arguments", "", "key and value are required", "sqlchat config set server.addr :9000")
		}
		updated := cfg.Clone()
		if err := updated.Set(key, value); err != nil {
			return NewUsageError("key", key, err.Error(), "")
		}
		if err := updated.Validate(); err != nil {
			return err
		}
		path, err := writablePath(env, args)
		if err != nil {
			return err
		}
		if err := config.SaveTOML(updated, path); err != nil {
			return commandError("config", "set", err)
		}
		env.Config, env.ConfigPath = updated, path
		config.SetGlobal(updated)
		fmt.Fprintf(env.Stdout, "%s %s = %s\n", SuccessStyle.Render("Saved"), key, formatValue(mustGet(updated, key)))
		return nil

	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(env.Stdout, k)
		}
		return nil

	case "path":
		path, err := writablePath(env, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, path)
		return nil

	default:
		return NewUsageError("subcommand", sub, "expected show, get, set, keys or path", "sqlchat config get server.addr")
	}
}

// writablePath is where config changes are saved: an explicit --config
// TOML file, the file in use, or the default TOML location.
func writablePath(env *Env, args *ArgParser) (string, error) {
	if p := args.Flag("config"); p != "" && !strings.HasSuffix(p, ".json") {
		return p, nil
	}
	if env.ConfigPath != "" && !strings.HasSuffix(env.ConfigPath, ".json") {
		return env.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func mustGet(cfg *config.Config, key string) interface{} {
	v, _ := cfg.Get(key)
	return v
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, ",")
	case string:
		return t
	}
	return fmt.Sprint(v)
}
