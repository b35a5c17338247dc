package indexer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/kafka"
)

// KafkaNotifier publishes every BuildReport keyed by index name, so all
// builds of one index land on the same partition in order.
type KafkaNotifier struct {
	producer *kafka.Producer
}

func NewKafkaNotifier(p *kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: p}
}

func (n *KafkaNotifier) NotifyBuilt(ctx context.Context, report BuildReport) error {
	return n.producer.Publish(ctx, kafka.Event{Key: report.Index, Value: report})
}
