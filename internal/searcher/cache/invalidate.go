package cache

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/kafka"
)

// builtEvent is the subset of a build report needed to drop stale results.
type builtEvent struct {
	BuildID string `json:"build_id"`
	Index   string `json:"index"`
}

// InvalidationHandler returns a Kafka handler that drops the cached results
// of every index announced on the build notification topic.
func InvalidationHandler(c *QueryCache) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[builtEvent](value)
		if err != nil {
			return err
		}
		if event.Index == "" {
			c.logger.Warn("build event without index name", "build_id", event.BuildID)
			return nil
		}
		_, err = c.Invalidate(ctx, event.Index)
		return err
	}
}
