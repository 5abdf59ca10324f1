// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat for the sqlchat CLI.
//
// Interactive Commands (during chat):
//
//	/new                Start a new chat
//	/list               List chats
//	/switch N           Switch to chat N from /list
//	/delete [N]         Delete chat N, or the current chat
//	/clear              Remove every message from the current chat
//	/html               Toggle printing the rendered HTML of answers
//	/query              Toggle asking for the generated SQL
//	/status             Check the backend connection
//	/help               Show available commands
//	/quit, /q           Exit chat
//	Ctrl+C              Cancel the current answer
//	Ctrl+D              Exit chat
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/sqlchat/internal/chat"
	"github.com/jeranaias/sqlchat/internal/config"
	"github.com/jeranaias/sqlchat/internal/offline"
	"github.com/jeranaias/sqlchat/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config
// directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads one line, adding it to history when non-empty.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// Repl handles chat input one line at a time.
type Repl struct {
	svc   *chat.Service
	out   io.Writer
	width int

	// markdown renders finished answers for the terminal. When nil the
	// answer is streamed as plain text instead.
	markdown *glamour.TermRenderer

	showHTML  bool
	showQuery bool
}

// NewRepl creates a REPL that writes to out.
func NewRepl(svc *chat.Service, out io.Writer, showQuery bool) *Repl {
	return &Repl{svc: svc, out: out, width: DefaultTerminalWidth, showQuery: showQuery}
}

// EnableMarkdown renders answers with glamour at the given width.
func (r *Repl) EnableMarkdown(width int) error {
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	r.markdown = md
	r.width = width
	return nil
}

// Handle processes one line of input. It returns errQuit when the user
// asks to leave.
func (r *Repl) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return nil
	case strings.HasPrefix(input, "/"):
		return r.command(ctx, input)
	case strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit"):
		return errQuit
	}
	return r.send(ctx, input)
}

func (r *Repl) send(ctx context.Context, text string) error {
	demo := false
	msg, err := r.svc.Send(ctx, text, chat.SendOptions{ShowQuery: r.showQuery}, func(u chat.Update) {
		demo = demo || u.Demo
		if r.markdown == nil {
			io.WriteString(r.out, u.Delta)
		}
	})
	if msg == nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
			return nil
		}
		return err
	}

	if r.markdown == nil {
		fmt.Fprintln(r.out)
	} else {
		rendered, rerr := r.markdown.Render(msg.Content)
		if rerr != nil {
			rendered = msg.Content + "\n"
		}
		io.WriteString(r.out, rendered)
	}

	if r.showHTML {
		fmt.Fprintln(r.out, DimStyle.Render("--- html ---"))
		fmt.Fprintln(r.out, r.svc.RenderMessage(*msg))
	}
	if demo {
		fmt.Fprintln(r.out, DimStyle.Render(r.svc.Mode.Badge()+" backend offline, canned answer"))
	}
	if err != nil {
		fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
	}
	return nil
}

func (r *Repl) command(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	cmd, arg := strings.ToLower(fields[0]), ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	store := r.svc.Store

	switch cmd {
	case "/quit", "/q", "/exit":
		return errQuit

	case "/help", "/h":
		r.printHelp()

	case "/new":
		c, err := store.CreateNewChat(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("Started"), c.Title)

	case "/list", "/ls":
		list := storage.FormatChatList(store.List(), store.CurrentChatID(), r.width)
		if !strings.HasSuffix(list, "\n") {
			list += "\n"
		}
		fmt.Fprint(r.out, list)

	case "/switch":
		list := store.List()
		idx, err := ParseIndex(arg, len(list))
		if err != nil {
			return err
		}
		if err := store.SelectChat(ctx, list[idx].ID); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s %s (%d messages)\n", SuccessStyle.Render("Switched to"), list[idx].Title, list[idx].MessageCount)

	case "/delete":
		id := store.CurrentChatID()
		if arg != "" {
			list := store.List()
			idx, err := ParseIndex(arg, len(list))
			if err != nil {
				return err
			}
			id = list[idx].ID
		}
		if err := store.DeleteChat(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Deleted."))

	case "/clear":
		if err := store.ClearCurrentChat(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Cleared."))

	case "/html":
		r.showHTML = !r.showHTML
		fmt.Fprintf(r.out, "HTML output %s\n", onOff(r.showHTML))

	case "/query":
		r.showQuery = !r.showQuery
		fmt.Fprintf(r.out, "SQL query display %s\n", onOff(r.showQuery))

	case "/status":
		r.printStatus(ctx)

	default:
		return NewUsageError("command", cmd, "unknown chat command", "/help")
	}
	return nil
}

func (r *Repl) printStatus(ctx context.Context) {
	res := r.svc.Status(ctx)
	base := r.svc.Client.Config().BaseURL

	where := "remote"
	if u, err := url.Parse(base); err == nil && offline.IsLocalhost(u.Hostname()) {
		where = "local"
	}
	status := SuccessStyle.Render(string(res.Status))
	if !res.Connected {
		status = WarningStyle.Render(string(res.Status))
	}

	fmt.Fprintln(r.out, renderLabel("Backend:", fmt.Sprintf("%s (%s)", base, where)))
	fmt.Fprintln(r.out, renderLabel("Status:", status))
	if res.Detail != "" {
		fmt.Fprintln(r.out, renderLabel("Detail:", res.Detail))
	}
	mode := "live"
	if r.svc.Mode.Enabled() {
		mode = "demo"
	}
	fmt.Fprintln(r.out, renderLabel("Mode:", mode))
	fmt.Fprintln(r.out, renderLabel("Chats:", fmt.Sprint(len(r.svc.Store.List()))))
}

func (r *Repl) printHelp() {
	cmds := [][2]string{
		{"/new", "Start a new chat"},
		{"/list", "List chats"},
		{"/switch N", "Switch to chat N"},
		{"/delete [N]", "Delete chat N or the current chat"},
		{"/clear", "Clear the current chat"},
		{"/html", "Toggle rendered HTML output"},
		{"/query", "Toggle SQL query display"},
		{"/status", "Check the backend connection"},
		{"/quit", "Exit"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", CommandStyle.Width(14).Render(c[0]), c[1])
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// =============================================================================
// COMMAND
// =============================================================================

// HandleChat runs the interactive chat. When stdin is not a terminal each
// input line is sent in turn, which makes the command scriptable.
func HandleChat(ctx context.Context, env *Env, args *ArgParser) error {
	cfg, err := env.loadConfig(args)
	if err != nil {
		return err
	}
	if args.BoolFlag("demo") {
		cfg.Demo.Enabled = true
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return commandError("chat", "open", err)
	}
	defer store.Close()

	svc := newService(cfg, store, stderrHook(env.Stderr))
	repl := NewRepl(svc, env.Stdout, cfg.Demo.ShowQuery || args.BoolFlag("query"))

	interactive := env.Stdin == os.Stdin && IsTTY() && isTerminalWriter(env.Stdout)
	if !interactive {
		return runScripted(ctx, env, repl)
	}

	if ColorsEnabled() {
		if err := repl.EnableMarkdown(GetTerminalWidth() - 4); err != nil {
			fmt.Fprintf(env.Stderr, "%s markdown disabled: %v\n", WarningStyle.Render("Warning:"), err)
		}
	}
	printWelcome(env.Stdout, svc)

	input := NewChatCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput(PromptStyle.Render("sqlchat> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed terminal.
			fmt.Fprintln(env.Stdout)
			return nil
		}

		turnCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		err = repl.Handle(turnCtx, line)
		cancel()

		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			DisplayError(env.Stderr, err)
		}
	}
}

func runScripted(ctx context.Context, env *Env, repl *Repl) error {
	scanner := bufio.NewScanner(env.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		err := repl.Handle(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			DisplayError(env.Stderr, err)
		}
	}
	return scanner.Err()
}

func printWelcome(w io.Writer, svc *chat.Service) {
	title := TitleStyle.Render("sqlchat")
	if badge := svc.Mode.Badge(); badge != "" {
		title += " " + WarningStyle.Render(badge)
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, DimStyle.Render("Backend: "+svc.Client.Config().BaseURL+"  |  /help for commands"))
	fmt.Fprintln(w)
}
