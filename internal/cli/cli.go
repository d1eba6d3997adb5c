// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/projchat/internal/api"
	"github.com/jeranaias/projchat/internal/config"
	"github.com/jeranaias/projchat/internal/logging"
	"github.com/jeranaias/projchat/internal/metrics"
	"github.com/jeranaias/projchat/internal/process"
	"github.com/jeranaias/projchat/internal/session"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// app carries everything a command needs once flags are parsed.
type app struct {
	// Persistent flags
	configPath  string
	serverURL   string
	logLevel    string
	metricsAddr string

	cfg      *config.Config
	logger   *zap.Logger
	client   *api.Client
	mgr      *session.Manager
	renderer *Renderer

	stopMetrics context.CancelFunc
}

// NewRootCmd builds the projchat command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "projchat",
		Short: "Chat with a project-scoped assistant",
		Long: `projchat talks to a project chat server: it lists and manages projects,
browses a project's file tree, and runs a conversation with the assistant
process bound to the project's directory.

Run without a subcommand to start the interactive chat.`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
		RunE:              a.runChat,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.projchat/config.toml)")
	flags.StringVar(&a.serverURL, "server", "", "project chat server URL")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")

	root.AddCommand(
		a.newChatCmd(),
		a.newProjectsCmd(),
		a.newTreeCmd(),
		a.newReadCmd(),
		a.newAgentsCmd(),
		a.newStatusCmd(),
		a.newStartCmd(),
		a.newStopCmd(),
		a.newAskCmd(),
		a.newConfigCmd(),
	)
	return root
}

// Execute runs the root command with os.Args and returns the exit code.
func Execute() int {
	root := NewRootCmd()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}
	return ExitCode(err)
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads configuration, applies flag overrides and builds the logger,
// client and session manager.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger

	a.client = api.NewClientWithConfig(&api.ClientConfig{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Timeout(),
	})
	a.mgr = session.NewManager(a.client, session.Config{
		Mode:          cfg.Assistant.Mode,
		AutoStart:     cfg.Assistant.AutoStart,
		Recursive:     cfg.Files.Recursive,
		WatchDebounce: cfg.WatchDebounce(),
		Process: process.Config{
			PollInterval: cfg.PollInterval(),
			StartTimeout: cfg.StartTimeout(),
		},
	}, logger)
	a.renderer = NewRenderer(cfg.UI.GlamourStyle, min(GetTerminalWidth(), 120), cfg.UI.MaxTreeWidth)

	if cfg.Metrics.Addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		a.stopMetrics = cancel
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	logger.Debug("configured",
		zap.String("server", cfg.Server.BaseURL),
		zap.String("mode", cfg.Assistant.Mode))
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFromPath(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.serverURL != "" {
		cfg.Server.BaseURL = a.serverURL
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func (a *app) teardown() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}

// out returns the command's stdout.
func out(cmd *cobra.Command) io.Writer {
	if w := cmd.OutOrStdout(); w != nil {
		return w
	}
	return os.Stdout
}
