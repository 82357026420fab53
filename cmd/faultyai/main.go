// Copyright 2025 The FaultyAI Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the FaultyAI suggestion server and its CLI [DBG] simulator.

Note: This is a BETA release. APIs and functionality may rapidly change.

FaultyAI shows ghost-text suggestions for a handful of Java idioms while the user types. The
suggestions are wrong on purpose, so accepting them without reading is punished. It can run as
a MessagePack IPC server behind an editor plugin, or as an interactive CLI editor for testing.

# Usage

Start the server with default settings:

	faultyai

Use a custom config file and enable debug logging:

	faultyai -config ./faultyai.toml -d

Run the CLI simulator with the single-line fallback layout:

	faultyai -c -layout fallback

# Configuration

Runtime configuration lives in a TOML file that is created with defaults if it doesn't exist:

	[engine]
	tab_size = 2
	insert_spaces = true
	layout = "spacer"
	format_after_accept = true
	format_delay_ms = 50
	notify = true

	[server]
	disable_auto_closing_brackets = true
	max_documents = 32
	reload_config = true

	[cli]
	color = true
	show_diff = true

With reload_config set, the server watches the file and applies changes to open documents.

# IPC Protocol

The server reads requests from stdin and writes responses to stdout, one msgpack map each. See
package server for the actions and commands.

	{"id": "2", "a": "change", "doc": "Main.java", "ch": [{"sl": 0, "sc": 0, "el": 0, "ec": 0, "t": "Scanner s"}]}
	{"id": "2", "status": "ok", "cmds": [{"k": "overlay", "ov": [{"ln": 0, "t": " = new Scanner(System.in);"}]}]}

Logs always go to stderr.

# Command Line Flags

	-config string
	    Path to the config file (default: user config dir)
	-d  Enable debug mode with detailed logging
	-c  Run the CLI simulator instead of the server
	-tab int
	    Override engine.tab_size
	-layout string
	    Override engine.layout ("spacer" or "fallback")
	-save
	    Write -tab and -layout back to the config file
	-version
	    Show current version
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bastiangx/faultyai/internal/cli"
	"github.com/bastiangx/faultyai/internal/logger"
	"github.com/bastiangx/faultyai/pkg/config"
	"github.com/bastiangx/faultyai/pkg/server"
)

const (
	Version = "0.3.0-beta"
	AppName = "faultyai"
	gh      = "https://github.com/bastiangx/faultyai"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

// main only manages the flow between config, server and CLI.
func main() {
	sigHandler()

	showVersion := flag.Bool("version", false, "Show current version")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI simulator -- useful for testing and debugging")
	configPath := flag.String("config", "", "Path to the config file")
	tabSize := flag.Int("tab", 0, "Override engine.tab_size")
	layout := flag.String("layout", "", "Override engine.layout (spacer | fallback)")
	save := flag.Bool("save", false, "Write -tab and -layout back to the config file")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		logger.SetLevel(log.DebugLevel)
		logger.SetReportTimestamp(true)
	} else {
		logger.SetLevel(log.WarnLevel)
	}

	cfg, usedPath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config file: (%s)", usedPath)

	applyOverrides(cfg, *tabSize, *layout)
	if *save {
		if err := saveOverrides(cfg, usedPath, *tabSize, *layout); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		log.Infof("Saved overrides to %s", usedPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// CLI is mainly used for testing and dbg purposes.
	if *cliMode {
		logger.SetReportTimestamp(false)
		log.Debug("CLI settings:", "layout", cfg.Engine.Layout, "tab", cfg.Engine.TabSize, "diff", cfg.CLI.ShowDiff)

		inputHandler := cli.NewInputHandler(cfg, os.Stdout)
		if err := inputHandler.Start(ctx, os.Stdin); err != nil {
			log.Fatalf("CLI error: %v", err)
		}
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(cfg)

	if cfg.Server.ReloadConfig && usedPath != "" {
		go func() {
			err := config.Watch(ctx, usedPath, func(next *config.Config) {
				applyOverrides(next, *tabSize, *layout)
				srv.ApplyConfig(next)
			})
			if err != nil {
				log.Warnf("Config reload disabled: %v", err)
			}
		}()
	}

	showStartupInfo(usedPath)

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

// applyOverrides puts command line values over the loaded config, so they survive reloads.
func applyOverrides(cfg *config.Config, tabSize int, layout string) {
	if tabSize > 0 {
		cfg.Engine.TabSize = tabSize
	}
	if layout != "" {
		cfg.Engine.Layout = layout
	}
}

func saveOverrides(cfg *config.Config, path string, tabSize int, layout string) error {
	var tab *int
	var lay *string
	if tabSize > 0 {
		tab = &tabSize
	}
	if layout != "" {
		lay = &layout
	}
	return cfg.Update(path, tab, lay, nil, nil)
}

func printVersion() {
	banner := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ FaultyAI ] Suggests Java that is almost right.")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available options")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process. It writes to stderr only,
// stdout belongs to the IPC stream.
func showStartupInfo(configPath string) {
	current := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(current)

	fmt.Fprintln(os.Stderr, "==========")
	fmt.Fprintln(os.Stderr, " FaultyAI ")
	fmt.Fprintln(os.Stderr, "==========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("config: ( %s )", configPath)
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "==========")
}
