// Package cmd provides the bsbi subcommands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/redis"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	metrics    *metrics.Metrics
	stopServer func(context.Context) error
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "bsbi",
		Short: "Blocked sort-based indexing and ranked retrieval",
		Long: `bsbi builds a disk-resident inverted index over a collection of
text documents, one subdirectory per block, and ranks documents for
free-text queries with TF-IDF, binary or BM25 scoring.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newBuildCmd(a))
	cmd.AddCommand(newQueryCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	return cmd
}

// Execute runs the root command with SIGINT/SIGTERM cancelling its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	a.cfg = cfg
	a.metrics = metrics.New()
	if cfg.Metrics.Enabled {
		a.stopServer = metrics.StartServer(a.metrics, cfg.Metrics.Port, a.healthChecks())
	}
	return nil
}

func (a *app) healthChecks() *health.Checker {
	c := health.NewChecker()
	dir, name := a.cfg.Indexer.OutputDir, a.cfg.Indexer.IndexName
	c.Register("index", func(context.Context) error {
		if !segment.Exists(dir, name) {
			return fmt.Errorf("index %s not found in %s", name, dir)
		}
		return nil
	})
	if a.cfg.Redis.Enabled {
		rcfg := a.cfg.Redis
		c.Register("redis", func(ctx context.Context) error {
			client, err := redis.NewClient(rcfg)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Ping(ctx)
		})
	}
	return c
}

func (a *app) teardown(ctx context.Context) error {
	if a.stopServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.stopServer(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown", "error", err)
	}
	return nil
}

func usageErr(format string, args ...any) error {
	return apperrors.Newf(apperrors.ErrInvalidInput, "cli", format, args...)
}
