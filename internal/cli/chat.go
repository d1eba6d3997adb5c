// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat for projchat.
//
// Plain lines go to the assistant process bound to the current project's
// directory. Lines starting with "/" are chat commands:
//
//	/projects            List projects
//	/use <id|name>       Switch project (clears the conversation)
//	/new <name> <path>   Create and switch to a project
//	/rm <id|name>        Delete a project
//	/tree                Show the file tree
//	/toggle <path>       Expand or collapse a directory
//	/open <path>         Show a file
//	/refresh             Refetch the file tree
//	/start [mode]        Start the assistant
//	/stop                Stop the assistant
//	/status              Show session status
//	/history             Show the conversation
//	/export [file]       Write the conversation to Markdown or JSON
//	/agents              List agents
//	/ask <agent> <msg>   Ask an agent (streamed)
//	/help                Show commands
//	/quit                Exit (also Ctrl+D)
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/config"
	"github.com/jeranaias/projchat/internal/export"
	"github.com/jeranaias/projchat/internal/model"
	"github.com/jeranaias/projchat/internal/session"
)

// =============================================================================
// INPUT
// =============================================================================

// inputSource yields chat lines until io.EOF.
type inputSource interface {
	read(prompt string) (string, error)
	close()
}

// scanReader reads lines from a non-interactive stdin without prompting.
type scanReader struct {
	sc *bufio.Scanner
}

func (s *scanReader) read(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanReader) close() {}

// lineReader provides line editing and persistent input history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	lr := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(lr.historyFile); err == nil {
		lr.line.ReadHistory(f)
		f.Close()
	}
	return lr
}

// read prompts for one line. Non-blank input is added to the history.
func (lr *lineReader) read(prompt string) (string, error) {
	input, err := lr.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		lr.line.AppendHistory(input)
	}
	return input, nil
}

// close saves the history with owner-only permissions and restores the
// terminal.
func (lr *lineReader) close() {
	defer lr.line.Close()
	if err := os.MkdirAll(filepath.Dir(lr.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(lr.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	lr.line.WriteHistory(f)
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func (a *app) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  a.runChat,
	}
}

func (a *app) runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := a.mgr.Init(ctx); err != nil {
		return err
	}

	r := newRepl(ctx, a.mgr, a.renderer, out(cmd), a.logger, a.cfg.Files.Watch)
	defer func() {
		cancel()
		r.wait()
	}()
	r.welcome()
	r.watchCurrent()

	var in inputSource
	if IsTerminal(cmd.InOrStdin()) {
		in = newLineReader()
	} else {
		in = &scanReader{sc: bufio.NewScanner(cmd.InOrStdin())}
	}
	defer in.close()

	for {
		input, err := in.read(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if !errors.Is(err, io.EOF) {
				return err
			}
			// Ctrl+D or end of piped input
			fmt.Fprintln(r.out)
			return nil
		}

		lineCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit, err := r.handle(lineCtx, input)
		stop()
		if err != nil {
			printError(r.out, err)
		}
		if quit {
			return nil
		}
	}
}

// =============================================================================
// REPL
// =============================================================================

// errQuit ends the chat loop.
var errQuit = errors.New("quit")

// repl executes chat lines against a session.
type repl struct {
	mgr      *session.Manager
	renderer *Renderer
	out      io.Writer
	logger   *zap.Logger
	watch    bool

	// base outlives single lines; watchers and background waits use it.
	base context.Context
	bg   sync.WaitGroup
}

func newRepl(ctx context.Context, mgr *session.Manager, renderer *Renderer, w io.Writer, logger *zap.Logger, watch bool) *repl {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &repl{
		mgr:      mgr,
		renderer: renderer,
		out:      &syncWriter{w: w},
		logger:   logger,
		watch:    watch,
		base:     ctx,
	}
	mgr.OnAssistantChange(func(st model.ProcessStatus) {
		fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("assistant:"), renderer.Status(st))
	})
	return r
}

// wait blocks until background work started by commands has finished.
func (r *repl) wait() {
	r.bg.Wait()
}

func (r *repl) welcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("projchat")+DimStyle.Render(" - type /help for commands, Ctrl+D to exit"))
	if p, ok := r.mgr.Current(); ok {
		fmt.Fprintln(r.out, field("Project", p.Name+" ("+p.Path+")"))
	} else {
		fmt.Fprintln(r.out, WarningStyle.Render("No projects yet. Create one with /new <name> <path>"))
	}
	fmt.Fprintln(r.out, field("Assistant", r.renderer.Status(r.mgr.AssistantStatus())))
}

func (r *repl) prompt() string {
	name := "no project"
	if p, ok := r.mgr.Current(); ok {
		name = p.Name
	}
	return name + "> "
}

// handle executes one input line. quit is true when the chat should end.
func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	name, args, ok := ParseCommand(line)
	if !ok {
		return false, r.send(ctx, line)
	}

	c := lookupCommand(name)
	if c == nil {
		if s := SuggestCommand(name); s != "" {
			return false, usageErrorf("unknown command /%s (did you mean /%s?)", name, s)
		}
		return false, usageErrorf("unknown command /%s (type /help for commands)", name)
	}
	if len(args) < c.minArgs {
		return false, usageErrorf("usage: %s", c.usage)
	}

	err = c.run(r, ctx, args)
	if errors.Is(err, errQuit) {
		return true, nil
	}
	return false, err
}

// ParseCommand splits a "/name arg..." line. ok is false for plain text.
func ParseCommand(line string) (name string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, true
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// send delivers a plain line to the assistant.
func (r *repl) send(ctx context.Context, content string) error {
	reply, err := r.mgr.SendMessage(ctx, content)
	switch {
	case errors.Is(err, model.ErrStaleResponse):
		fmt.Fprintln(r.out, DimStyle.Render("(reply dropped: the project changed)"))
		return nil
	case errors.Is(err, model.ErrEmptyMessage):
		return nil
	case errors.Is(err, model.ErrNotReady):
		return fmt.Errorf("%w (start it with /start)", err)
	case err != nil:
		return err
	}
	fmt.Fprintln(r.out, r.renderer.Message(reply))
	return nil
}

// watchCurrent watches the current project's directory when enabled and the
// directory is local.
func (r *repl) watchCurrent() {
	if !r.watch {
		return
	}
	if err := r.mgr.WatchLocal(r.base); err != nil {
		r.logger.Debug("not watching project directory", zap.Error(err))
	}
}

// =============================================================================
// COMMAND TABLE
// =============================================================================

type chatCommand struct {
	name    string
	aliases []string
	usage   string
	help    string
	minArgs int
	run     func(r *repl, ctx context.Context, args []string) error
}

var chatCommands []chatCommand

func init() {
	chatCommands = []chatCommand{
		{name: "projects", aliases: []string{"p"}, usage: "/projects", help: "List projects", run: (*repl).cmdProjects},
		{name: "use", aliases: []string{"switch"}, usage: "/use <id|name>", help: "Switch project", minArgs: 1, run: (*repl).cmdUse},
		{name: "new", usage: "/new <name> <path>", help: "Create and switch to a project", minArgs: 2, run: (*repl).cmdNew},
		{name: "rm", aliases: []string{"delete"}, usage: "/rm <id|name>", help: "Delete a project", minArgs: 1, run: (*repl).cmdRemove},
		{name: "tree", aliases: []string{"t"}, usage: "/tree", help: "Show the file tree", run: (*repl).cmdTree},
		{name: "toggle", usage: "/toggle <path>", help: "Expand or collapse a directory", minArgs: 1, run: (*repl).cmdToggle},
		{name: "open", aliases: []string{"cat"}, usage: "/open <path>", help: "Show a file", minArgs: 1, run: (*repl).cmdOpen},
		{name: "refresh", usage: "/refresh", help: "Refetch the file tree", run: (*repl).cmdRefresh},
		{name: "start", usage: "/start [mode]", help: "Start the assistant", run: (*repl).cmdStart},
		{name: "stop", usage: "/stop", help: "Stop the assistant", run: (*repl).cmdStop},
		{name: "status", aliases: []string{"s"}, usage: "/status", help: "Show session status", run: (*repl).cmdStatus},
		{name: "history", usage: "/history", help: "Show the conversation", run: (*repl).cmdHistory},
		{name: "export", usage: "/export [file]", help: "Write the conversation to Markdown or JSON", run: (*repl).cmdExport},
		{name: "agents", usage: "/agents", help: "List agents", run: (*repl).cmdAgents},
		{name: "ask", usage: "/ask <agent> <message>", help: "Ask an agent", minArgs: 2, run: (*repl).cmdAsk},
		{name: "help", aliases: []string{"h", "?"}, usage: "/help", help: "Show commands", run: (*repl).cmdHelp},
		{name: "quit", aliases: []string{"exit", "q"}, usage: "/quit", help: "Exit", run: func(*repl, context.Context, []string) error { return errQuit }},
	}
}

func lookupCommand(name string) *chatCommand {
	for i := range chatCommands {
		c := &chatCommands[i]
		if c.name == name {
			return c
		}
		for _, alias := range c.aliases {
			if alias == name {
				return c
			}
		}
	}
	return nil
}

// commandNames returns every command name and alias, sorted.
func commandNames() []string {
	var names []string
	for _, c := range chatCommands {
		names = append(names, c.name)
		names = append(names, c.aliases...)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// COMMANDS
// =============================================================================

func (r *repl) cmdProjects(ctx context.Context, _ []string) error {
	projects, err := r.mgr.LoadProjects(ctx)
	if err != nil {
		return err
	}
	cur, _ := r.mgr.Current()
	printProjects(r.out, projects, cur.ID)
	return nil
}

func (r *repl) cmdUse(ctx context.Context, args []string) error {
	key := strings.Join(args, " ")
	if err := r.mgr.SelectProject(ctx, key); err != nil {
		return err
	}
	r.switched()
	return nil
}

func (r *repl) cmdNew(ctx context.Context, args []string) error {
	p, err := r.mgr.CreateProject(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s (%s)\n", SuccessStyle.Render("Created"), p.Name, p.ID)
	r.switched()
	return nil
}

func (r *repl) cmdRemove(ctx context.Context, args []string) error {
	key := strings.Join(args, " ")
	p := model.FindProject(r.mgr.Projects(), key)
	if p == nil {
		return fmt.Errorf("project %q: %w", key, model.ErrNoProject)
	}
	before, _ := r.mgr.Current()
	if err := r.mgr.DeleteProject(ctx, p.ID); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("Deleted"), p.Name)
	if before.ID == p.ID {
		r.switched()
	}
	return nil
}

// switched reports the new current project and rewatches its directory.
func (r *repl) switched() {
	p, ok := r.mgr.Current()
	if !ok {
		fmt.Fprintln(r.out, WarningStyle.Render("No project selected"))
		return
	}
	fmt.Fprintf(r.out, "%s %s %s\n", SuccessStyle.Render("Switched to"), p.Name, DimStyle.Render(p.Path))
	r.watchCurrent()
}

func (r *repl) cmdTree(_ context.Context, _ []string) error {
	if _, ok := r.mgr.Current(); !ok {
		return model.ErrNoProject
	}
	if !r.mgr.Tree().Loaded() {
		fmt.Fprintln(r.out, DimStyle.Render("(tree not loaded, try /refresh)"))
		return nil
	}
	if r.renderer.Tree(r.out, r.mgr.VisibleRows()) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("(empty)"))
	}
	return nil
}

func (r *repl) cmdToggle(_ context.Context, args []string) error {
	path := strings.Join(args, " ")
	node := r.mgr.Tree().Find(path)
	if node == nil {
		return fmt.Errorf("%s: not in the file tree", path)
	}
	if node.Kind() != model.KindDirectory {
		return fmt.Errorf("%s: not a directory", path)
	}
	if r.mgr.ToggleDir(path) {
		fmt.Fprintln(r.out, DimStyle.Render("expanded "+path))
	} else {
		fmt.Fprintln(r.out, DimStyle.Render("collapsed "+path))
	}
	return nil
}

func (r *repl) cmdOpen(ctx context.Context, args []string) error {
	fc, err := r.mgr.ReadFile(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, r.renderer.File(fc))
	return nil
}

func (r *repl) cmdRefresh(ctx context.Context, _ []string) error {
	if err := r.mgr.RefreshFiles(ctx); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %d entries\n", SuccessStyle.Render("Refreshed"), r.mgr.Tree().Count())
	return nil
}

func (r *repl) cmdStart(ctx context.Context, args []string) error {
	mode := ""
	if len(args) > 0 {
		mode = args[0]
	}
	before := r.mgr.AssistantStatus()
	st, err := r.mgr.StartAssistant(ctx, mode)
	if err != nil {
		return err
	}
	if st.UpdatedAt.Equal(before.UpdatedAt) {
		fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("assistant already"), r.renderer.Status(st))
	}
	if st.State != model.StateStarting {
		return nil
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if _, err := r.mgr.WaitAssistant(r.base); err != nil && r.base.Err() == nil {
			r.logger.Debug("assistant did not become ready", zap.Error(err))
		}
	}()
	return nil
}

func (r *repl) cmdStop(ctx context.Context, _ []string) error {
	return r.mgr.StopAssistant(ctx)
}

func (r *repl) cmdStatus(_ context.Context, _ []string) error {
	if p, ok := r.mgr.Current(); ok {
		fmt.Fprintln(r.out, field("Project", p.Name+" ("+p.ID+")"))
		fmt.Fprintln(r.out, field("Path", p.Path))
	} else {
		fmt.Fprintln(r.out, field("Project", "none"))
	}
	fmt.Fprintln(r.out, field("Assistant", r.renderer.Status(r.mgr.AssistantStatus())))
	fmt.Fprintln(r.out, field("Messages", fmt.Sprint(len(r.mgr.Messages()))))
	fmt.Fprintln(r.out, field("Tree", fmt.Sprintf("%d entries", r.mgr.Tree().Count())))
	if r.mgr.Busy() {
		fmt.Fprintln(r.out, WarningStyle.Render("A message is in flight"))
	}
	return nil
}

func (r *repl) cmdHistory(_ context.Context, _ []string) error {
	msgs := r.mgr.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("(no messages)"))
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(r.out, r.renderer.Message(m))
	}
	return nil
}

func (r *repl) cmdExport(_ context.Context, args []string) error {
	p, ok := r.mgr.Current()
	if !ok {
		return model.ErrNoProject
	}
	path := strings.Join(args, " ")
	t := export.NewTranscript(p, r.mgr.Messages())
	written, err := export.ToFile(t, export.ForPath(path), path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %d messages to %s\n", SuccessStyle.Render("Exported"), len(t.Messages), written)
	return nil
}

func (r *repl) cmdAgents(ctx context.Context, _ []string) error {
	agents, err := r.mgr.LoadAgents(ctx)
	if err != nil {
		return err
	}
	printAgents(r.out, agents)
	return nil
}

func (r *repl) cmdAsk(ctx context.Context, args []string) error {
	_, err := r.mgr.AskAgent(ctx, args[0], strings.Join(args[1:], " "), func(chunk api.StreamChunk) {
		fmt.Fprint(r.out, chunk.Text)
	})
	fmt.Fprintln(r.out)
	return err
}

func (r *repl) cmdHelp(_ context.Context, _ []string) error {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	for _, c := range chatCommands {
		fmt.Fprintf(r.out, "  %s %s\n", PromptStyle.Render(fmt.Sprintf("%-24s", c.usage)), c.help)
	}
	fmt.Fprintln(r.out, DimStyle.Render("Anything else is sent to the assistant."))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// syncWriter serializes writes from the prompt loop and background observers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
