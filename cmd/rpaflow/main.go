// Package main is the rpaflow command-line interface:
//
//	rpaflow validate <script.yaml...>
//	rpaflow run <script.yaml> [--arg name=value]... [--watch]
//	rpaflow schema
//	rpaflow history list|show|prune
//	rpaflow commands
//	rpaflow version
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rpaflow/rpaflow/pkg/config"
	"github.com/rpaflow/rpaflow/pkg/telemetry"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	a := newApp(os.Stdout, os.Stderr)
	err := a.rootCmd().Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

// app holds what every verb shares: the loaded config, the logger and the
// output streams.
type app struct {
	configPath string
	logLevel   string

	cfg      config.Config
	logger   zerolog.Logger
	logClose io.Closer

	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, cfg: config.Default(), logger: zerolog.Nop()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rpaflow",
		Short:         "Validate and run RPA automation scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Engine config file (YAML)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		a.validateCmd(),
		a.runCmd(),
		a.schemaCmd(),
		a.historyCmd(),
		a.commandsCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadFile(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger, closer, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg, a.logger, a.logClose = cfg, logger, closer
	return nil
}

func (a *app) close() {
	if a.logClose != nil {
		_ = a.logClose.Close()
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "rpaflow %s (%s)\n", version, commit)
		},
	}
}
