package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"guardian/internal/app"
	"guardian/internal/config"
	"guardian/internal/logger"
)

type globalFlags struct {
	offline    bool
	logLevel   string
	logJSON    bool
	chunkLines int
	workers    int
	vectorDir  string
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:                   "guardian [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Guardian audits code repositories against regulatory documents.",
		Long: `Guardian turns a regulatory PDF into a technical brief, derives searchable
violation patterns from it, and audits a repository in two passes with an LLM.`,
	}
	pf := root.PersistentFlags()
	pf.BoolVar(&flags.offline, "offline", false, "use canned model replies and hash embeddings (no API key needed)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn or error (GUARDIAN_LOG_LEVEL takes precedence)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "emit logs as JSON")
	pf.IntVar(&flags.chunkLines, "chunk-lines", 0, fmt.Sprintf("lines per audit chunk (%d-%d)", config.MinChunkLines, config.MaxChunkLines))
	pf.IntVar(&flags.workers, "workers", 0, "files audited concurrently")
	pf.StringVar(&flags.vectorDir, "vector-dir", "", "directory of the regulatory document store")

	root.AddCommand(
		newBriefCmd(),
		newQueryCmd(),
		newPatternsCmd(),
		newAuditCmd(),
		newAskCmd(),
		newServeCmd(),
		newDBCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("offline") {
		cfg.Offline = flags.offline
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if pf.Changed("log-json") {
		cfg.Log.JSONFormat = flags.logJSON
	}
	if flags.chunkLines != 0 {
		cfg.ChunkLines = flags.chunkLines
	}
	if flags.workers != 0 {
		cfg.Workers = flags.workers
	}
	if flags.vectorDir != "" {
		cfg.VectorDir = flags.vectorDir
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) hclog.Logger {
	return logger.New(cfg.Log, "guardian")
}

// loadApp builds the application for a command. The caller closes it.
// Commands run by the local user may audit directories on this host.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.AllowLocalRepos = true
	return app.New(cmd.Context(), cfg, newLogger(cfg))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
