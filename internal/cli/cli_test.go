// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/render"
	"github.com/jeranaias/sqlchat/internal/storage"
)

type testEnv struct {
	*Env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// newTestEnv returns an env with in-memory streams and chats stored under
// a temp dir.
func newTestEnv(t *testing.T, stdin string) testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return testEnv{
		Env: &Env{
			Stdin:  strings.NewReader(stdin),
			Stdout: out,
			Stderr: errOut,
			Config: cfg,
		},
		stdout: out,
		stderr: errOut,
	}
}

func run(env testEnv, args ...string) int {
	return Run(context.Background(), args, env.Env)
}

func TestRun_Render(t *testing.T) {
	env := newTestEnv(t, "Area is $\\pi r^2$.\n\n$$E=mc^2$$\n")

	require.Equal(t, ExitSuccess, run(env, "render", "-"))
	out := env.stdout.String()
	require.Contains(t, out, render.ClassInlineContainer)
	require.Contains(t, out, render.ClassBlockContainer)
	require.Contains(t, out, "<math")
}

func TestRun_RenderFile(t *testing.T) {
	env := newTestEnv(t, "")
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("```sql\nSELECT 1;\n```\n"), 0600))

	require.Equal(t, ExitSuccess, run(env, "render", path))
	require.Contains(t, env.stdout.String(), `class="language-sql"`)
}

func TestRun_RenderCheck(t *testing.T) {
	env := newTestEnv(t, "Use $x$ inline")
	require.Equal(t, ExitSuccess, run(env, "render", "--check", "-"))
	require.Equal(t, "true\n", env.stdout.String())

	env = newTestEnv(t, "plain text")
	require.Equal(t, ExitSuccess, run(env, "render", "--check"))
	require.Equal(t, "false\n", env.stdout.String())
}

func TestRun_RenderCSS(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "render", "--css"))
	require.Contains(t, env.stdout.String(), ".chroma")
}

func TestRun_RenderLogsLatexErrors(t *testing.T) {
	env := newTestEnv(t, "Broken $\\frac{1}{2$ here")
	require.Equal(t, ExitSuccess, run(env, "render"))
	require.Contains(t, env.stdout.String(), render.ClassError)
	require.Contains(t, env.stderr.String(), "LATEX_ERROR | delim=$")
}

func TestRun_RenderMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, ExitError, run(env, "render", filepath.Join(t.TempDir(), "nope.md")))
	require.Contains(t, env.stderr.String(), "render read failed")
}

func TestRun_Scan(t *testing.T) {
	env := newTestEnv(t, "Let $a+b$ and $$c$$ and \\(d\\).")
	require.Equal(t, ExitSuccess, run(env, "scan", "-"))

	lines := strings.Split(strings.TrimSpace(env.stdout.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "OFFSET"))
	require.Contains(t, lines[1], "inline")
	require.Contains(t, lines[1], "a+b")
	require.Contains(t, lines[2], "block")
	require.Contains(t, lines[3], `\(`)
}

func TestRun_ScanJSON(t *testing.T) {
	env := newTestEnv(t, "Let $a+b$ and $$c$$")
	require.Equal(t, ExitSuccess, run(env, "scan", "--json"))

	var resp struct {
		Success bool       `json:"success"`
		Command string     `json:"command"`
		Data    []SpanInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "scan", resp.Command)
	require.Len(t, resp.Data, 2)
	require.Equal(t, SpanInfo{Offset: 4, Kind: "inline", Delimiter: "$", Expr: "a+b"}, resp.Data[0])
	require.Equal(t, "$$", resp.Data[1].Delimiter)
}

func TestRun_ScanNothing(t *testing.T) {
	env := newTestEnv(t, "no math here")
	require.Equal(t, ExitSuccess, run(env, "scan"))
	require.Equal(t, "No LaTeX found.\n", env.stdout.String())
}

func TestRun_VersionAndHelp(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "version"))
	require.Contains(t, env.stdout.String(), "sqlchat "+Version)

	env = newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "version", "--json"))
	var resp struct {
		Data VersionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(env.stdout.Bytes(), &resp))
	require.Equal(t, Version, resp.Data.Version)

	env = newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "help"))
	require.Contains(t, env.stdout.String(), "sqlchat render")
}

func TestRun_UnknownCommand(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, ExitUsageError, run(env, "frobnicate"))
	require.Contains(t, env.stderr.String(), "unknown command")
}

// seedChat stores one question and answer in env's storage.
func seedChat(t *testing.T, env testEnv) storage.Chat {
	t.Helper()
	ctx := context.Background()
	store, err := openStore(ctx, env.Config)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.AddMessage(ctx, "", storage.RoleUser, "What is $x^2$ at 3?")
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, "", storage.RoleAssistant, "It is $9$.")
	require.NoError(t, err)

	c, err := store.Chat("")
	require.NoError(t, err)
	return c
}

func TestRun_ExportStdout(t *testing.T) {
	env := newTestEnv(t, "")
	seedChat(t, env)

	require.Equal(t, ExitSuccess, run(env, "export", "1", "--format", "md", "--stdout"))
	out := env.stdout.String()
	require.Contains(t, out, "### You")
	require.Contains(t, out, "What is $x^2$ at 3?")
}

func TestRun_ExportByIDToFile(t *testing.T) {
	env := newTestEnv(t, "")
	c := seedChat(t, env)
	dir := t.TempDir()

	require.Equal(t, ExitSuccess, run(env, "export", c.ID, "-o", dir, "--theme", "dark"))
	require.Contains(t, env.stdout.String(), "Exported to")

	matches, err := filepath.Glob(filepath.Join(dir, "chat_*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(data), "dark-theme")
	require.Contains(t, string(data), render.ClassInlineContainer)
}

func TestRun_ExportErrors(t *testing.T) {
	env := newTestEnv(t, "")
	seedChat(t, env)
	require.Equal(t, ExitUsageError, run(env, "export", "--format", "pdf"))

	env2 := newTestEnv(t, "")
	env2.Config = env.Config
	require.Equal(t, ExitUsageError, run(env2, "export", "9"))

	env3 := newTestEnv(t, "")
	env3.Config = env.Config
	require.Equal(t, ExitNotFoundError, run(env3, "export", "no-such-id"))
}

func TestRun_ConfigGetSet(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{"SQLCHAT_BACKEND_URL", "SQLCHAT_SHOW_QUERY", "SQLCHAT_STORAGE", "SQLCHAT_ADDR", "SQLCHAT_DEMO"} {
		t.Setenv(k, "")
	}
	defer config.ResetGlobalForTesting()

	env := newTestEnv(t, "")
	env.Config = nil

	require.Equal(t, ExitSuccess, run(env, "config", "set", "server.addr", ":9000"))
	require.Contains(t, env.stdout.String(), "server.addr = :9000")

	path := filepath.Join(home, ".sqlchat", "config.toml")
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)

	env = newTestEnv(t, "")
	env.Config = nil
	require.Equal(t, ExitSuccess, run(env, "config", "get", "server.addr"))
	require.Equal(t, ":9000\n", env.stdout.String())

	env = newTestEnv(t, "")
	env.Config = nil
	require.Equal(t, ExitSuccess, run(env, "config", "path"))
	require.Equal(t, path+"\n", env.stdout.String())

	env = newTestEnv(t, "")
	require.Equal(t, ExitConfigError, run(env, "config", "set", "storage.driver", "redis"))
	require.Equal(t, ExitUsageError, run(env, "config", "get", "nope.key"))
	require.Equal(t, ExitUsageError, run(env, "config", "frob"))
}

func TestRun_ConfigKeysAndShow(t *testing.T) {
	env := newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "config", "keys"))
	require.Contains(t, env.stdout.String(), "render.highlight_style\n")

	env = newTestEnv(t, "")
	require.Equal(t, ExitSuccess, run(env, "config", "show"))
	require.Contains(t, env.stdout.String(), `"highlight_style"`)
}

func TestRun_ExplicitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\nhighlight_style = \"monokai\"\n"), 0600))
	defer config.ResetGlobalForTesting()

	env := newTestEnv(t, "")
	env.Config = nil
	require.Equal(t, ExitSuccess, run(env, "config", "get", "render.highlight_style", "--config", path))
	require.Equal(t, "monokai\n", env.stdout.String())
	require.Equal(t, path, env.ConfigPath)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, ExitSuccess, ExitCode(nil))
	require.Equal(t, ExitUsageError, ExitCode(NewUsageError("x", "", "bad", "")))
	require.Equal(t, ExitConfigError, ExitCode(config.ValidateErrors{{Field: "a", Message: "b"}}))
	require.Equal(t, ExitNotFoundError, ExitCode(commandError("export", "open", storage.ErrChatNotFound)))
	require.Equal(t, ExitError, ExitCode(os.ErrPermission))
}
