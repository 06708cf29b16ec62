package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublisher batches messages for one topic until Stop flushes it.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type gcpTopic struct {
	p *gcppubsub.Publisher
}

func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

func (t gcpTopic) Stop() { t.p.Stop() }

// topicPublishers opens at most one publisher per topic for the life of the relay.
type topicPublishers struct {
	open    func(topic string) topicPublisher
	byTopic map[string]topicPublisher
}

func newTopicPublishers(open func(topic string) topicPublisher) *topicPublishers {
	return &topicPublishers{open: open, byTopic: make(map[string]topicPublisher)}
}

func (p *topicPublishers) get(topic string) topicPublisher {
	if pub, ok := p.byTopic[topic]; ok {
		return pub
	}
	pub := p.open(topic)
	if pub != nil {
		p.byTopic[topic] = pub
	}
	return pub
}

func (p *topicPublishers) stopAll() {
	for topic, pub := range p.byTopic {
		pub.Stop()
		delete(p.byTopic, topic)
	}
}

func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// outcome is what happens to one outbox row at the end of a batch.
type outcome struct {
	event   models.OutboxEvent
	topic   string
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	err     error
}

func deadLetter(event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, err error) outcome {
	return outcome{event: event, topic: topic, verdict: verdictDeadLetter, reason: reason, err: err}
}

// judge maps a publish error to a verdict. A row whose next attempt would
// reach maxAttempts is dead-lettered instead of retried.
func judge(event models.OutboxEvent, topic string, err error, maxAttempts int) outcome {
	if err == nil {
		return outcome{event: event, topic: topic, verdict: verdictPublished}
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return deadLetter(event, topic, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= maxAttempts {
		return deadLetter(event, topic, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	}
	return outcome{event: event, topic: topic, verdict: verdictRetry, err: err}
}

func dlqEntry(o outcome, failedAt time.Time) models.OutboxDLQ {
	entry := models.OutboxDLQ{
		EventID:       o.event.ID,
		EventType:     o.event.EventType,
		AggregateType: o.event.AggregateType,
		AggregateID:   o.event.AggregateID,
		Payload:       o.event.Payload,
		ErrorReason:   o.reason,
		AttemptCount:  o.event.AttemptCount,
		FailedAt:      failedAt,
	}
	if o.err != nil {
		msg := o.err.Error()
		entry.ErrorMessage = &msg
	}
	return entry
}
