package consumers

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

// Handler processes one decoded domain event.
type Handler interface {
	Handle(ctx context.Context, event *registry.ResolvedEvent) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, event *registry.ResolvedEvent) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Receiver is the part of a Pub/Sub subscriber the consumer uses.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Receivers adapts Pub/Sub subscriber handles for SubscriberParams.
func Receivers(subs []*gcppubsub.Subscriber) []Receiver {
	out := make([]Receiver, 0, len(subs))
	for _, sub := range subs {
		if sub != nil {
			out = append(out, sub)
		}
	}
	return out
}

type resolver interface {
	ResolveMessage(eventType string, data []byte) (*registry.ResolvedEvent, error)
}

type idempotencyLedger interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Commit(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// SubscriberParams wires Pub/Sub subscriptions to a handler. A consumer
// reading several topics passes one subscription per topic.
type SubscriberParams struct {
	Name          string
	Subscriptions []Receiver
	Registry      resolver
	Handler       Handler
	// Idempotency is optional; without it every delivery reaches the handler.
	Idempotency idempotencyLedger
	Logger      *logger.Logger
}

// Subscriber consumes outbox events from Pub/Sub, decodes them through the
// event registry and hands them to a Handler.
type Subscriber struct {
	name          string
	subscriptions []Receiver
	registry      resolver
	handler       Handler
	manager       idempotencyLedger
	logg          *logger.Logger
}

// NewSubscriber validates params and builds a Subscriber.
func NewSubscriber(params SubscriberParams) (*Subscriber, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	if len(params.Subscriptions) == 0 || slices.Contains(params.Subscriptions, nil) {
		return nil, errors.New("at least one subscription is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Subscriber{
		name:          name,
		subscriptions: params.Subscriptions,
		registry:      params.Registry,
		handler:       params.Handler,
		manager:       params.Idempotency,
		logg:          params.Logger,
	}, nil
}

type processResult struct {
	nack bool
}

// Run receives from every subscription until ctx is canceled. When one
// receive loop fails the others are stopped and all errors are returned.
func (s *Subscriber) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for _, sub := range s.subscriptions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Receive(ctx, s.deliver); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (s *Subscriber) deliver(ctx context.Context, msg *gcppubsub.Message) {
	if s.process(ctx, msg).nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (s *Subscriber) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"consumer":     s.name,
		"message_id":   msg.ID,
		"event_type":   eventType,
		"aggregate_id": msg.Attributes["aggregate_id"],
	})

	event, err := s.registry.ResolveMessage(eventType, msg.Data)
	if err != nil {
		// undecodable messages never succeed on redelivery
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping undecodable event")
		return processResult{}
	}

	rawID := strings.TrimSpace(event.Envelope.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	logCtx = s.logg.WithField(logCtx, "event_id", rawID)

	if s.manager == nil {
		if err := s.handler.Handle(logCtx, event); err != nil {
			s.logg.Error(logCtx, "handler error", err)
			return processResult{nack: true}
		}
		return processResult{}
	}

	eventID, err := uuid.Parse(rawID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	claimed, err := s.manager.Claim(logCtx, s.name, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		s.logg.Debug(logCtx, "event already processed or in flight")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, event); err != nil {
		s.logg.Error(logCtx, "handler error", err)
		if relErr := s.manager.Release(logCtx, s.name, eventID); relErr != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", relErr.Error()), "idempotency release failed")
		}
		return processResult{nack: true}
	}

	// the handler already ran; a failed commit only lets the lease lapse early
	if err := s.manager.Commit(logCtx, s.name, eventID); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "idempotency commit failed")
	}
	s.logg.Debug(logCtx, "event handled")
	return processResult{}
}
