// Package cli implements the kthread command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/kthread/internal/config"
	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/internal/store"
)

var (
	flagConfig    string
	flagDB        string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.KernelConfig
	logger *slog.Logger
)

// defaultServer returns the API server to query, from KTHREAD_SERVER.
// Empty means the local database is read directly.
func defaultServer() string {
	return os.Getenv("KTHREAD_SERVER")
}

// NewRootCmd creates the root cobra command for the kthread CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kthread",
		Short: "kthread: a simulated preemptible kernel scheduler",
		Long:  "kthread runs scripted task sets on a simulated single-CPU kernel and records every context switch.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg = config.DefaultKernelConfig()
			if flagConfig != "" {
				if cfg, err = config.Load(flagConfig); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("db") {
				cfg.DBPath = flagDB
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to a kernel config file (YAML)")
	pf.StringVar(&flagDB, "db", "", "Trace database path (default ~/.kthread/kthread.db)")
	pf.StringVar(&flagServer, "server", defaultServer(), "Read runs from a kthread server instead of the local database (or KTHREAD_SERVER env)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newTraceCmd(),
		newPsCmd(),
		newServeCmd(),
	)

	return root
}

// resolveDBPath returns the configured database path, creating the
// default directory when none is configured.
func resolveDBPath() (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".kthread")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "kthread.db"), nil
}

// openStore opens and migrates the trace database.
func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	dbPath, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	logger.Debug("database ready", "path", dbPath)
	return st, nil
}
