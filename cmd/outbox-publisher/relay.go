package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqWriter interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       txRunner
	PubSub   pubSubClient
	Outbox   outboxStore
	DLQ      dlqWriter
	Registry eventResolver
	Metrics  *metrics.OutboxMetrics
	// OpenTopic overrides how publishers are created. Defaults to PubSub.Publisher.
	OpenTopic func(topic string) topicPublisher
	Now       func() time.Time
}

// Relay moves committed outbox rows to Pub/Sub. Each poll locks a batch,
// publishes every row in it concurrently, then records the outcome of each
// row in the same transaction.
type Relay struct {
	logg           *logger.Logger
	db             txRunner
	pubsub         pubSubClient
	outbox         outboxStore
	dlq            dlqWriter
	registry       eventResolver
	metrics        *metrics.OutboxMetrics
	topics         *topicPublishers
	now            func() time.Time
	batchSize      int
	maxAttempts    int
	publishTimeout time.Duration
	backoff        pollBackoff
}

func NewRelay(p RelayParams) (*Relay, error) {
	var errs error
	for name, missing := range map[string]bool{
		"logger":          p.Logger == nil,
		"database client": p.DB == nil,
		"pubsub client":   p.PubSub == nil,
		"outbox store":    p.Outbox == nil,
		"dlq writer":      p.DLQ == nil,
		"event registry":  p.Registry == nil,
	} {
		if missing {
			errs = multierr.Append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if errs != nil {
		return nil, errs
	}

	open := p.OpenTopic
	if open == nil {
		open = func(topic string) topicPublisher {
			pub := p.PubSub.Publisher(topic)
			if pub == nil {
				return nil
			}
			return gcpTopic{p: pub}
		}
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	cfg := p.Config
	return &Relay{
		logg:           p.Logger,
		db:             p.DB,
		pubsub:         p.PubSub,
		outbox:         p.Outbox,
		dlq:            p.DLQ,
		registry:       p.Registry,
		metrics:        p.Metrics,
		topics:         newTopicPublishers(open),
		now:            now,
		batchSize:      positiveOr(cfg.BatchSize, 50),
		maxAttempts:    positiveOr(cfg.MaxAttempts, 10),
		publishTimeout: positiveOr(cfg.PublishTimeout, 15*time.Second),
		backoff: pollBackoff{
			base: positiveOr(time.Duration(cfg.PollIntervalMS)*time.Millisecond, 500*time.Millisecond),
			max:  positiveOr(cfg.MaxBackoff, 10*time.Second),
		},
	}, nil
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. A full batch is followed by another poll
// right away; a short one waits for the poll interval.
func (r *Relay) Run(ctx context.Context) error {
	if err := multierr.Combine(r.db.Ping(ctx), r.pubsub.Ping(ctx)); err != nil {
		return fmt.Errorf("relay dependencies not ready: %w", err)
	}
	defer r.topics.stopAll()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.relayBatch(ctx)
		var pause time.Duration
		switch {
		case err != nil && ctx.Err() == nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			pause = r.backoff.failure()
		case n >= r.batchSize:
			r.backoff.current = 0
		default:
			pause = r.backoff.idle()
		}
		if err := wait(ctx, pause); err != nil {
			return err
		}
	}
}

// relayBatch returns how many rows it locked.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	var locked int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		locked = len(events)
		if locked == 0 {
			return nil
		}
		for _, o := range r.publishAll(ctx, events) {
			if err := r.record(ctx, tx, o); err != nil {
				return err
			}
		}
		return nil
	})
	return locked, err
}

// publishAll hands every resolvable row to its topic before waiting on any
// result, so a batch costs roughly one publish round trip. Outcomes keep the
// order of events.
func (r *Relay) publishAll(ctx context.Context, events []models.OutboxEvent) []outcome {
	publishCtx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()

	outcomes := make([]outcome, len(events))
	results := make([]publishResult, len(events))
	for i, event := range events {
		resolved, err := r.registry.Resolve(event)
		if err != nil {
			outcomes[i] = deadLetter(event, "", enums.OutboxDLQReasonNonRetryable, err)
			continue
		}
		topic := resolved.Descriptor.Topic
		pub := r.topics.get(topic)
		if pub == nil {
			outcomes[i] = deadLetter(event, topic, enums.OutboxDLQReasonNonRetryable, fmt.Errorf("no publisher for topic %s", topic))
			continue
		}
		outcomes[i] = outcome{event: event, topic: topic}
		results[i] = pub.Publish(publishCtx, message(event, resolved))
	}

	for i, res := range results {
		if res == nil {
			continue
		}
		_, err := res.Get(publishCtx)
		outcomes[i] = judge(events[i], outcomes[i].topic, err, r.maxAttempts)
	}
	return outcomes
}

func (r *Relay) record(ctx context.Context, tx *gorm.DB, o outcome) error {
	event := o.event
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    string(event.EventType),
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         o.topic,
	})

	switch o.verdict {
	case verdictPublished:
		if err := r.outbox.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(string(event.EventType))
		r.logg.Info(logCtx, "outbox event published")
	case verdictRetry:
		if err := r.outbox.MarkFailedTx(tx, event.ID, o.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.metrics.IncFailed(string(event.EventType))
		r.logg.Warn(r.logg.WithField(logCtx, "error", o.err.Error()), "outbox publish failed, will retry")
	case verdictDeadLetter:
		if err := r.dlq.InsertTx(tx, dlqEntry(o, r.now().UTC())); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := r.outbox.MarkTerminalTx(tx, event.ID, o.err, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		r.metrics.IncDLQ(string(event.EventType), string(o.reason))
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error_reason": string(o.reason),
			"error":        errorText(o.err),
		}), "outbox event dead-lettered")
	default:
		return errors.New("unknown outbox verdict")
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
