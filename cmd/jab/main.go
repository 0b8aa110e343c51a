// Package main implements the jab CLI: named database snapshots kept as git
// history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/config"
	"github.com/fyrsmithlabs/jab/internal/dump"
	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/metrics"
	"github.com/fyrsmithlabs/jab/internal/project"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

var (
	// homeDir overrides $JAB_HOME and ~/.jab
	homeDir string
	// logLevel overrides logging.level from settings
	logLevel string
	// metricsFile overrides metrics.textfile from settings
	metricsFile string
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jab",
	Short: "Snapshot databases into git history",
	Long: `jab keeps point-in-time snapshots of databases. Each project binds a name
to a database URI and owns a git repository holding a single dump.sql; every
snapshot is a commit.

Supported databases:
  postgres://  via pg_dump and psql
  mysql://     via mysqldump and mysql
  sqlite://    natively

Settings are read from <home>/settings.yaml and JAB_* environment variables.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "jab home directory (default $JAB_HOME or ~/.jab)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the command")
}

// env is everything a command needs, built once per invocation.
type env struct {
	settings *config.Settings
	logger   *logging.Logger
	metrics  *metrics.Metrics
	tools    dump.Tools
}

// runFunc is a command body running with a prepared env.
type runFunc func(ctx context.Context, e *env, cmd *cobra.Command, args []string) error

// withEnv loads settings, builds the logger and tags the context with a fresh
// operation id before running fn. Metrics are flushed even when fn fails.
func withEnv(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(homeDir)
		if err != nil {
			return err
		}
		if logLevel != "" {
			settings.Logging.Level = logLevel
		}
		if metricsFile != "" {
			settings.Metrics.Textfile = metricsFile
		}

		logger, err := newLogger(settings.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = logging.WithOperationID(ctx, uuid.NewString())
		ctx = logging.WithLogger(ctx, logger)

		e := &env{
			settings: settings,
			logger:   logger,
			metrics:  metrics.New(),
			tools: dump.Tools{
				PgDump:    settings.Tools.PgDump,
				Psql:      settings.Tools.Psql,
				MySQLDump: settings.Tools.MySQLDump,
				MySQL:     settings.Tools.MySQL,
				Timeout:   settings.Tools.Timeout.Duration(),
			},
		}

		logger.Debug(ctx, "command started",
			zap.String("command", cmd.CommandPath()),
			zap.String("home", settings.Home))

		runErr := fn(ctx, e, cmd, args)
		if runErr != nil {
			logger.Error(ctx, "command failed", zap.Error(runErr))
		}

		if path := settings.Metrics.Textfile; path != "" {
			if err := e.metrics.WriteTextfile(path); err != nil {
				logger.Warn(ctx, "metrics not written", zap.Error(err))
				if runErr == nil {
					runErr = err
				}
			}
		}
		return runErr
	}
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	lc := logging.NewDefaultConfig()
	lc.Level = level
	lc.Format = cfg.Format
	return logging.NewLogger(lc, w)
}

// manager loads the registry and wires the project manager.
func (e *env) manager() (*project.Manager, error) {
	reg, err := registry.Load(e.settings.RegistryDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("jab is not initialized in %s (run 'jab init'): %w", e.settings.RegistryDir(), err)
		}
		return nil, err
	}

	backend := revision.NewGitBackend(revision.Signature{
		Name:  e.settings.Author.Name,
		Email: e.settings.Author.Email,
	})
	return project.NewManager(reg, backend, e.settings.ProjectsDir, project.WithMetrics(e.metrics)), nil
}
