// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot subcommands of the projchat CLI.

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/config"
	"github.com/jeranaias/projchat/internal/model"
)

// =============================================================================
// PROJECTS
// =============================================================================

func (a *app) newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "List, create and delete projects",
		Args:    cobra.NoArgs,
		RunE:    a.runProjectsList,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects on the server",
		Args:  cobra.NoArgs,
		RunE:  a.runProjectsList,
	}

	create := &cobra.Command{
		Use:   "create <name> <path>",
		Short: "Create a project rooted at path",
		Args:  exactArgs(2, "create needs a name and a path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.mgr.LoadProjects(ctx); err != nil {
				return err
			}
			p, err := a.mgr.CreateProject(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %s (%s)\n", SuccessStyle.Render("Created"), p.Name, p.ID)
			return nil
		},
	}

	del := &cobra.Command{
		Use:     "delete <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete a project",
		Args:    exactArgs(1, "delete needs a project id or name"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			projects, err := a.mgr.LoadProjects(ctx)
			if err != nil {
				return err
			}
			p := model.FindProject(projects, args[0])
			if p == nil {
				return fmt.Errorf("project %q: %w", args[0], model.ErrNoProject)
			}
			if err := a.mgr.DeleteProject(ctx, p.ID); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %s (%s)\n", SuccessStyle.Render("Deleted"), p.Name, p.ID)
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func (a *app) runProjectsList(cmd *cobra.Command, _ []string) error {
	projects, err := a.mgr.LoadProjects(cmd.Context())
	if err != nil {
		return err
	}
	printProjects(out(cmd), projects, "")
	return nil
}

// =============================================================================
// FILES
// =============================================================================

func (a *app) newTreeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tree [project]",
		Short: "Show a project's file tree",
		Long: `Show a project's file tree. Without a project the first one is used.
Directories are shown collapsed unless --all is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.selectProject(ctx, firstArg(args)); err != nil {
				return err
			}
			if all {
				for _, dir := range directoryPaths(a.mgr.Tree().Nodes()) {
					a.mgr.ToggleDir(dir)
				}
			}
			if a.renderer.Tree(out(cmd), a.mgr.VisibleRows()) == 0 {
				fmt.Fprintln(out(cmd), DimStyle.Render("(empty)"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "expand every directory")
	return cmd
}

func (a *app) newReadCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print a file through the server",
		Args:  exactArgs(1, "read needs a file path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := a.client.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprint(out(cmd), fc.Content)
				return nil
			}
			fmt.Fprintln(out(cmd), a.renderer.File(fc))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the content without highlighting")
	return cmd
}

// =============================================================================
// AGENTS
// =============================================================================

func (a *app) newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agents offered by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agents, err := a.mgr.LoadAgents(cmd.Context())
			if err != nil {
				return err
			}
			printAgents(out(cmd), agents)
			return nil
		},
	}
}

// =============================================================================
// ASSISTANT PROCESS
// =============================================================================

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show the assistant process status reported by the server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client.AssistantStatus(cmd.Context())
			if err != nil {
				return err
			}
			w := out(cmd)
			fmt.Fprintln(w, TitleStyle.Render("Assistant"))
			fmt.Fprintln(w, field("Server", a.client.BaseURL()))
			fmt.Fprintln(w, field("Status", st.Status))
			if st.Mode != "" {
				fmt.Fprintln(w, field("Mode", st.Mode))
			}
			if st.WorkingDir != "" {
				fmt.Fprintln(w, field("Directory", st.WorkingDir))
			}
			if d := st.Diagnostic(); d != "" {
				fmt.Fprintln(w, field("Detail", d))
			}
			return nil
		},
	}
}

func (a *app) newStartCmd() *cobra.Command {
	var (
		mode    string
		project string
		wait    bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the assistant in a project's directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.selectProject(ctx, project)
			if err != nil {
				return err
			}
			st, err := a.mgr.StartAssistant(ctx, mode)
			if err != nil {
				return err
			}
			if wait && !st.Ready() {
				fmt.Fprintln(out(cmd), DimStyle.Render("waiting for the assistant in "+p.Path+"..."))
				st, err = a.mgr.WaitAssistant(ctx)
				fmt.Fprintln(out(cmd), a.renderer.Status(st))
				return err
			}
			fmt.Fprintln(out(cmd), a.renderer.Status(st))
			if st.State == model.StateFailed {
				return fmt.Errorf("start assistant: %s", st.Label())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "assistant mode (default from config)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id or name (default: first project)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait until the assistant is ready")
	return cmd
}

func (a *app) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the assistant process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.StopAssistant(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), SuccessStyle.Render("Stopped"))
			return nil
		},
	}
}

// =============================================================================
// ASK
// =============================================================================

func (a *app) newAskCmd() *cobra.Command {
	var (
		agent    string
		project  string
		noStream bool
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask a single question and print the reply",
		Long: `Ask a single question and print the reply.

Without --agent the question goes to the assistant process, which is started
in the project's directory if needed. With --agent it goes to that agent
and the reply is streamed unless --no-stream is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			message := strings.Join(args, " ")
			p, err := a.selectProject(ctx, project)
			if err != nil {
				return err
			}
			if agent != "" {
				return a.askAgent(cmd, p, agent, message, !noStream)
			}
			return a.askAssistant(cmd, message)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "ask this agent instead of the assistant process")
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id or name (default: first project)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the full agent reply and show token usage")
	return cmd
}

func (a *app) askAssistant(cmd *cobra.Command, message string) error {
	ctx := cmd.Context()
	if _, err := a.mgr.StartAssistant(ctx, ""); err != nil {
		return err
	}
	if _, err := a.mgr.WaitAssistant(ctx); err != nil {
		return err
	}
	reply, err := a.mgr.SendMessage(ctx, message)
	if err != nil {
		return err
	}
	fmt.Fprintln(out(cmd), a.renderer.Markdown(reply.Content))
	return nil
}

func (a *app) askAgent(cmd *cobra.Command, p model.Project, agent, message string, stream bool) error {
	w := out(cmd)
	if stream {
		_, err := a.mgr.AskAgent(cmd.Context(), agent, message, func(chunk api.StreamChunk) {
			fmt.Fprint(w, chunk.Text)
		})
		fmt.Fprintln(w)
		return err
	}

	resp, err := a.client.Chat(cmd.Context(), api.ChatRequest{
		ProjectID: p.ID,
		AgentID:   agent,
		Message:   message,
		History:   []model.HistoryEntry{},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(w, a.renderer.Markdown(resp.Reply))
	fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("tokens: %d in, %d out",
		resp.Usage.InputTokens, resp.Usage.OutputTokens)))
	return nil
}

// =============================================================================
// CONFIG
// =============================================================================

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return toml.NewEncoder(out(cmd)).Encode(a.cfg)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to ~/.projchat/config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ConfigPathTOML()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return usageErrorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "%s %s\n", SuccessStyle.Render("Wrote"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// selectProject loads the project list and selects key, or the first
// project when key is empty.
func (a *app) selectProject(ctx context.Context, key string) (model.Project, error) {
	projects, err := a.mgr.LoadProjects(ctx)
	if err != nil {
		return model.Project{}, err
	}
	if key == "" {
		if len(projects) == 0 {
			return model.Project{}, model.ErrNoProject
		}
		key = projects[0].ID
	}
	if err := a.mgr.SelectProject(ctx, key); err != nil {
		return model.Project{}, err
	}
	p, _ := a.mgr.Current()
	return p, nil
}

// directoryPaths returns the path of every directory in nodes, depth first.
func directoryPaths(nodes []model.Node) []string {
	var paths []string
	for _, n := range nodes {
		if d, ok := n.(*model.Directory); ok {
			paths = append(paths, d.Path)
			paths = append(paths, directoryPaths(d.Children)...)
		}
	}
	return paths
}

func exactArgs(n int, msg string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s", msg)
		}
		return nil
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
