// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the projchat command line.
//
// The root command runs an interactive chat against the project chat server;
// subcommands expose the same operations one at a time for scripting.
//
// # Key Types
//
//   - Renderer: glamour markdown, chroma highlighting and file tree output
//   - UsageError: bad arguments, mapped to ExitUsageError
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
//
// # Commands
//
//   - chat (default): interactive REPL with slash commands
//   - projects [list|create|delete]: manage projects
//   - tree [project] [--all]: print a project's file tree
//   - read <path>: print a file with highlighting
//   - agents: list agents
//   - status, start, stop: control the assistant process
//   - ask <message> [--agent id]: one-shot question
//   - config [show|init]: inspect or write configuration
//
// Errors map to exit codes with ExitCode; see errors.go.
package cli
