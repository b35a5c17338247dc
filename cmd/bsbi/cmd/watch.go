package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/redis"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Drop cached query results whenever an index is rebuilt",
		Long: `Watch consumes build notifications from Kafka and deletes the cached
results of every rebuilt index from Redis. It runs until interrupted.
Both kafka.enabled and redis.enabled must be set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), a)
		},
	}
}

func runWatch(ctx context.Context, a *app) error {
	if !a.cfg.Kafka.Enabled || !a.cfg.Redis.Enabled {
		return usageErr("watch needs kafka.enabled and redis.enabled")
	}
	client, err := redis.NewClient(a.cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	qc := cache.New(client, a.cfg.Redis.CacheTTL, a.metrics)
	consumer := kafka.NewConsumer(a.cfg.Kafka, a.cfg.Kafka.Topics.IndexComplete, cache.InvalidationHandler(qc))
	defer func() {
		if err := consumer.Close(); err != nil {
			slog.Warn("closing consumer", "error", err)
		}
	}()
	slog.Info("watching for index builds", "topic", a.cfg.Kafka.Topics.IndexComplete)
	return consumer.Start(ctx)
}
