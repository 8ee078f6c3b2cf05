package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/workhive/marketplace-service/internal/store"
	"github.com/workhive/marketplace-service/pkg/rabbitmq"
)

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 1200 * time.Millisecond
	defaultStaleProcessing = 2 * time.Minute
	maxRetryDelaySeconds   = 300
)

// OutboxDispatcher drains the notification outbox into RabbitMQ. The
// publisher is created lazily and recreated after a publish failure, so a
// broker restart only delays events instead of losing them. Without a broker
// URL the dispatcher degrades to the log-only fallback publisher and keeps
// draining, so the outbox never grows unbounded in dev setups.
type OutboxDispatcher struct {
	repo                store.Repository
	rabbitURL           string
	batchSize           int
	pollInterval        time.Duration
	staleProcessingTime time.Duration
	publisher           rabbitmq.Publisher
}

// DispatcherOption tweaks dispatcher timing and batch sizing.
type DispatcherOption func(*OutboxDispatcher)

// WithBatchSize caps how many outbox rows one flush claims.
func WithBatchSize(n int) DispatcherOption {
	return func(d *OutboxDispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithPollInterval sets how often the outbox is polled.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *OutboxDispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithStaleClaimWindow sets how long a claimed-but-unpublished row stays
// invisible before another dispatcher may re-claim it.
func WithStaleClaimWindow(window time.Duration) DispatcherOption {
	return func(d *OutboxDispatcher) {
		if window > 0 {
			d.staleProcessingTime = window
		}
	}
}

func NewOutboxDispatcher(repo store.Repository, rabbitURL string, opts ...DispatcherOption) *OutboxDispatcher {
	d := &OutboxDispatcher{
		repo:                repo,
		rabbitURL:           rabbitURL,
		batchSize:           defaultBatchSize,
		pollInterval:        defaultPollInterval,
		staleProcessingTime: defaultStaleProcessing,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	defer d.closePublisher()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.flushOnce(ctx); err != nil {
				log.Printf("level=warn component=outbox_dispatcher msg=\"flush failed\" error=%q", err.Error())
			}
		}
	}
}

func (d *OutboxDispatcher) flushOnce(ctx context.Context) error {
	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			_ = d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error())
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=warn component=outbox_dispatcher msg=\"failed to mark message published\" message_id=%d error=%q", message.ID, err.Error())
		}
	}
	return nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	publisher, err := d.currentPublisher()
	if err != nil {
		return err
	}

	var payload interface{}
	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return err
	}

	if err := publisher.Publish(ctx, message.Exchange, message.RoutingKey, payload); err != nil {
		d.closePublisher()
		return err
	}
	return nil
}

// currentPublisher returns the active publisher, dialing the broker on first
// use. An empty broker URL selects the log-only fallback.
func (d *OutboxDispatcher) currentPublisher() (rabbitmq.Publisher, error) {
	if d.publisher != nil {
		return d.publisher, nil
	}
	if d.rabbitURL == "" {
		d.publisher = &rabbitmq.EventProducerFallback{}
		return d.publisher, nil
	}
	producer, err := rabbitmq.NewEventProducer(d.rabbitURL)
	if err != nil {
		return nil, err
	}
	d.publisher = producer
	return d.publisher, nil
}

func (d *OutboxDispatcher) closePublisher() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << minInt(attempt, 8)
	if delay > maxRetryDelaySeconds {
		return maxRetryDelaySeconds
	}
	return delay
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
