package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/prillcode/devstack/internal/core/stack"
	"github.com/prillcode/devstack/internal/shell/docker"
	"github.com/prillcode/devstack/internal/shell/orchestrator"
	"github.com/prillcode/devstack/internal/shell/probe"
	"github.com/prillcode/devstack/internal/shell/store"
)

// errConfig marks failures in configuration or invocation, mapped to
// ExitConfigError.
var errConfig = errors.New("configuration error")

// =============================================================================
// Root Command
// =============================================================================

// app carries the wiring shared by all subcommands; it is populated by the
// root command's PersistentPreRunE once flags are parsed.
type app struct {
	stackFile  string
	configPath string
	logLevel   string
	logFormat  string

	cfg    *Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "devstack",
		Short: "Run a local development service stack",
		Long: `devstack starts and stops a local stack of services defined in a
single YAML file: databases, caches, and app containers with ports,
volumes, dependencies, and optional profiles for services that only
some workflows need.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.SetVersionTemplate(`{{printf "devstack %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.stackFile, "file", "f", "", "path to the stack file (default stack.yml)")
	flags.StringVar(&a.configPath, "config", "", "path to a devstack config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newUpCmd(a))
	root.AddCommand(newDownCmd(a))
	root.AddCommand(newLogsCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newServeCmd(a))

	return root
}

// setup loads configuration and builds the logger. Flags win over config
// file and environment.
func (a *app) setup() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	if a.stackFile != "" {
		cfg.Stack.File = a.stackFile
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	a.cfg = cfg
	a.logger = SetupLogger(cfg)
	return nil
}

// =============================================================================
// Shared Wiring
// =============================================================================

// loadStack reads and parses the stack file. The stack name defaults to
// the file's directory name, the same convention compose tools use.
func (a *app) loadStack() (*stack.StackDefinition, error) {
	content, err := os.ReadFile(a.cfg.Stack.File)
	if err != nil {
		return nil, fmt.Errorf("%w: reading stack file %s: %v", errConfig, a.cfg.Stack.File, err)
	}

	def, err := stack.ParseStackSpec(string(content))
	if err != nil {
		return nil, err
	}

	if def.Name == "" {
		def.Name = stackNameFromPath(a.cfg.Stack.File)
	}
	return def, nil
}

func stackNameFromPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	name := filepath.Base(filepath.Dir(abs))
	return strings.ToLower(strings.ReplaceAll(name, " ", "-"))
}

// newOrchestrator connects to Docker, verifies the daemon is reachable,
// and builds the orchestrator. The returned cleanup closes the Docker
// client.
func (a *app) newOrchestrator(prober probe.Prober) (*orchestrator.Orchestrator, func(), error) {
	client, err := docker.NewSDKClient(a.cfg.Docker.Host)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, err
	}

	if prober == nil {
		prober = &probe.TCPProber{Interval: a.cfg.Probe.Interval}
	}

	o := orchestrator.New(client, prober, a.logger, orchestrator.Config{
		ProbeTimeout: a.cfg.Probe.Timeout,
		StopGrace:    a.cfg.Stack.StopGrace,
		PullImages:   a.cfg.Stack.Pull,
	})
	return o, func() { client.Close() }, nil
}

// openHistory opens the run history store, or returns nil when history is
// disabled. Store failures are logged and tolerated: the stack still runs
// without history.
func (a *app) openHistory() store.Store {
	if !a.cfg.State.Enabled || a.cfg.State.DSN == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.State.DSN), 0o755); err != nil {
		a.logger.Warn("run history disabled", "error", err)
		return nil
	}
	s, err := store.NewSQLiteStore(a.cfg.State.DSN)
	if err != nil {
		a.logger.Warn("run history disabled", "error", err)
		return nil
	}
	return s
}
