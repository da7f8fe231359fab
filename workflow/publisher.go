package workflow

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/stockledger/config"
	"github.com/mmdatafocus/stockledger/models"
)

// PubSubPublisher publishes movement events to Google Cloud Pub/Sub, ordered per balance key.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher publishes through the shared client of config.GetPubSubClient.
func NewPubSubPublisher(ctx context.Context, topicName string) (*PubSubPublisher, error) {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewPubSubPublisherWithClient(ctx, client, topicName)
}

// NewPubSubPublisherWithClient creates topicName when missing. An empty name uses
// STOCK_EVENTS_TOPIC.
func NewPubSubPublisherWithClient(ctx context.Context, client *pubsub.Client, topicName string) (*PubSubPublisher, error) {
	if topicName == "" {
		topicName = config.StockEventsTopic()
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, topicName)
	if err != nil {
		return nil, err
	}
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{topic: topic}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, events []models.MovementEvent) error {
	var errs []error
	for _, ev := range events {
		key := models.BalanceKey{TenantId: ev.TenantId, WarehouseId: ev.WarehouseId, ProductId: ev.ProductId, VariantId: ev.VariantId}
		attrs := map[string]string{
			"tenant_id":      ev.TenantId,
			"type":           string(ev.Type),
			"correlation_id": ev.CorrelationId,
		}
		if _, err := config.PublishJSON(ctx, p.topic, key.String(), attrs, ev); err != nil {
			errs = append(errs, fmt.Errorf("publish ledger entry %d: %w", ev.LedgerEntryId, err))
			// a failed ordering key stays paused until resumed
			p.topic.ResumePublish(key.String())
		}
	}
	return errors.Join(errs...)
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
