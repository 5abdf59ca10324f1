// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for sqlchat.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/jeranaias/sqlchat/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdUnknown Command = iota
	CmdChat
	CmdServe
	CmdRender
	CmdScan
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[string]Command{
	"chat":    CmdChat,
	"c":       CmdChat,
	"serve":   CmdServe,
	"server":  CmdServe,
	"render":  CmdRender,
	"scan":    CmdScan,
	"export":  CmdExport,
	"config":  CmdConfig,
	"version": CmdVersion,
	"help":    CmdHelp,
}

// boolFlags never take a value.
var boolFlags = []string{
	"check", "json", "stdout", "open", "css", "demo", "query", "html",
	"no-metadata", "no-timestamps", "help", "h", "version",
}

const usageText = `sqlchat - chat with your database, with math and code rendered

Usage:
  sqlchat [chat]                 Interactive chat (default)
  sqlchat serve [--addr ADDR]    Start the HTTP API
  sqlchat render [FILE|-]        Render markdown with LaTeX to HTML
  sqlchat scan [FILE|-]          List the LaTeX spans in a document
  sqlchat export [CHAT]          Export a chat
  sqlchat config [SUBCOMMAND]    Show or change configuration
  sqlchat version                Show version information
  sqlchat help                   Show this help

Render Flags:
  --check                        Print whether the input contains LaTeX
  --css                          Print the code highlighting stylesheet

Scan Flags:
  --json                         Output spans as JSON

Serve Flags:
  --addr ADDR                    Listen address (default from config)
  --demo                         Start in demo mode

Chat Flags:
  --demo                         Answer with canned demo responses
  --query                        Ask the backend to show its SQL

Export Flags:
  -f, --format html|md|json      Export format (default: html)
  -o, --output DIR               Output directory (default: .)
  --theme light|dark             HTML theme
  --stdout                       Write to stdout instead of a file
  --open                         Open the file after export
  --no-metadata                  Omit the chat header
  --no-timestamps                Omit per-message times

Config Subcommands:
  sqlchat config show            Print the effective configuration
  sqlchat config get KEY         Print one value (e.g. server.addr)
  sqlchat config set KEY VALUE   Change a value and save it
  sqlchat config keys            List every key
  sqlchat config path            Print the config file path

Global Flags:
  --config PATH                  Use this config file

Environment:
  SQLCHAT_BACKEND_URL, SQLCHAT_SHOW_QUERY, SQLCHAT_STORAGE,
  SQLCHAT_ADDR, SQLCHAT_DEMO

Examples:
  echo 'Area is $\pi r^2$' | sqlchat render -
  sqlchat scan notes.md --json
  sqlchat export 2 --format md --stdout
  sqlchat serve --addr 127.0.0.1:9000
`

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Env carries the streams and configuration a command runs with.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Config, when set, is used instead of loading from disk.
	Config *config.Config

	// ConfigPath is the file Config was loaded from, if any.
	ConfigPath string
}

// DefaultEnv uses the process streams.
func DefaultEnv() *Env {
	return &Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// loadConfig resolves configuration once per run. A --config flag wins;
// otherwise the standard locations are searched. Unreadable files produce
// a warning and defaults.
func (e *Env) loadConfig(args *ArgParser) (*config.Config, error) {
	if e.Config != nil {
		return e.Config, nil
	}

	if path := args.Flag("config"); path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, err
		}
		e.Config, e.ConfigPath = cfg, path
		config.SetGlobal(cfg)
		return cfg, nil
	}

	cfg, err := config.Load()
	if cfg == nil {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(e.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
	}
	e.Config, e.ConfigPath = cfg, config.ActivePath()
	config.SetGlobal(cfg)
	return cfg, nil
}

// =============================================================================
// PARSING AND DISPATCH
// =============================================================================

// Parse determines the command from argv.
func Parse(argv []string) (Command, *ArgParser) {
	args := NewArgParser(argv, boolFlags...)

	if args.BoolFlag("help") || args.BoolFlag("h") {
		return CmdHelp, args
	}
	if args.BoolFlag("version") {
		return CmdVersion, args
	}

	sub := args.Subcommand()
	if sub == "" {
		return CmdChat, args
	}
	if cmd, ok := commandNames[sub]; ok {
		return cmd, args
	}
	return CmdUnknown, args
}

// Run executes argv and returns the process exit code.
func Run(ctx context.Context, argv []string, env *Env) int {
	if env == nil {
		env = DefaultEnv()
	}
	cmd, args := Parse(argv)

	err := dispatch(ctx, cmd, args, env)
	if err != nil {
		DisplayError(env.Stderr, err)
	}
	return ExitCode(err)
}

func dispatch(ctx context.Context, cmd Command, args *ArgParser, env *Env) error {
	switch cmd {
	case CmdChat:
		return HandleChat(ctx, env, args)
	case CmdServe:
		return HandleServe(ctx, env, args)
	case CmdRender:
		return HandleRender(env, args)
	case CmdScan:
		return HandleScan(env, args)
	case CmdExport:
		return HandleExport(ctx, env, args)
	case CmdConfig:
		return HandleConfig(env, args)
	case CmdVersion:
		return HandleVersion(env, args)
	case CmdHelp:
		_, err := io.WriteString(env.Stdout, usageText)
		return err
	}
	return NewUsageError("command", args.Subcommand(), "unknown command", "sqlchat help")
}

// =============================================================================
// VERSION
// =============================================================================

// VersionInfo is the version command's data.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// HandleVersion prints version information.
func HandleVersion(env *Env, args *ArgParser) error {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if args.BoolFlag("json") {
		return NewJSONResponse("version", info).Write(env.Stdout)
	}

	fmt.Fprintf(env.Stdout, "sqlchat %s\n", info.Version)
	fmt.Fprintln(env.Stdout, renderLabel("Commit:", info.GitCommit))
	fmt.Fprintln(env.Stdout, renderLabel("Built:", info.BuildDate))
	fmt.Fprintln(env.Stdout, renderLabel("Go:", info.GoVersion))
	fmt.Fprintln(env.Stdout, renderLabel("Platform:", info.Platform))
	return nil
}
