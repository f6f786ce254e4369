// Package events publishes outbox rows written by checkout and cancellation.
package events

import (
	"context"
	"time"

	"lab-booking/internal/core"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OutboxStore is the outbox side of the store.
type OutboxStore interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]core.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64, t time.Time) error
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, events []core.OutboxEvent) error
	Close() error
}

// KafkaPublisher writes events to one topic keyed by aggregate id, so every
// event of a booking group lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []core.OutboxEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, toMessage(e))
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(e core.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
		Time: e.CreatedAt,
	}
}

// OutboxPoller periodically moves unpublished outbox rows to the publisher.
type OutboxPoller struct {
	repo      OutboxStore
	publisher Publisher
	tick      time.Duration
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

const defaultTick = 2 * time.Second

// NewOutboxPoller builds a poller; a non-positive tick falls back to defaultTick.
func NewOutboxPoller(repo OutboxStore, publisher Publisher, tick time.Duration, logger *zap.Logger) *OutboxPoller {
	if tick <= 0 {
		tick = defaultTick
	}
	return &OutboxPoller{repo: repo, publisher: publisher, tick: tick, batch: 100, logger: logger, now: time.Now}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.ProcessOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce publishes one batch and reports how many events were published.
// Events stay unpublished when delivery fails and are retried on the next tick.
func (p *OutboxPoller) ProcessOnce(ctx context.Context) int {
	events, err := p.repo.UnpublishedEvents(ctx, p.batch)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	if err := p.publisher.Publish(ctx, events); err != nil {
		p.logger.Warn("failed to publish outbox events", zap.Int("count", len(events)), zap.Error(err))
		return 0
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if err := p.repo.MarkPublished(ctx, ids, p.now()); err != nil {
		p.logger.Error("failed to mark outbox events published", zap.Int64s("ids", ids), zap.Error(err))
		return 0
	}
	p.logger.Debug("outbox events published", zap.Int("count", len(events)))
	return len(events)
}
