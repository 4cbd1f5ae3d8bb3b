package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/sportedge/sportedge-backend/internal/analytics/router"
	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
)

const consumerName = "analytics"

// errPoison marks a message that can never be handled; it is acked and counted.
var errPoison = errors.New("poison message")

// Handler processes one decoded order event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type recorder interface {
	AddProcessed(worker string, n int)
	AddFailed(worker string, n int)
}

type verdict int

const (
	ack verdict = iota
	redeliver
)

// Service feeds order events from the analytics subscription into the
// handler. Each event id is claimed in Redis first so redeliveries are
// skipped; a failed handler releases the claim and nacks.
type Service struct {
	sub     receiver
	handler Handler
	dedupe  dedupe
	metrics recorder
	logg    *logger.Logger
}

// NewService wires the worker. rec may be nil.
func NewService(sub receiver, handler Handler, claims dedupe, rec recorder, logg *logger.Logger) (*Service, error) {
	switch {
	case sub == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{sub: sub, handler: handler, dedupe: claims, metrics: rec, logg: logg}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == redeliver {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeMessage(msg)
	if err != nil {
		s.drop(ctx, err)
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"order_id":     envelope.AggregateID,
		"occurred_at":  envelope.OccurredAt.Format(time.RFC3339Nano),
		"event_schema": envelope.Version,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.drop(ctx, fmt.Errorf("%w: event id %q is not a uuid", errPoison, envelope.EventID))
		return ack
	}

	seen, err := s.dedupe.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "analytics.claim_failed", err)
		return redeliver
	}
	if seen {
		s.logg.Debug(ctx, "analytics.duplicate")
		return ack
	}

	err = s.handler.Handle(ctx, envelope)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.AddProcessed(consumerName, 1)
		}
		s.logg.Info(ctx, "analytics.handled")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType), errors.Is(err, router.ErrInvalidPayload):
		// keep the claim so redeliveries of the same poison event are skipped
		s.drop(ctx, err)
		return ack
	}

	s.logg.Error(ctx, "analytics.handle_failed", err)
	if err := s.dedupe.Release(context.WithoutCancel(ctx), consumerName, eventID); err != nil {
		s.logg.Error(ctx, "analytics.release_failed", err)
	}
	s.countFailure()
	return redeliver
}

func (s *Service) drop(ctx context.Context, err error) {
	s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "analytics.dropped")
	s.countFailure()
}

func (s *Service) countFailure() {
	if s.metrics != nil {
		s.metrics.AddFailed(consumerName, 1)
	}
}

// decodeMessage rebuilds the envelope from the message body and its routing
// attributes. Attributes fill the event id and time when the body lacks them.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("%w: body: %v", errPoison, err)
	}

	eventType, err := enums.ParseOutboxEventType(attr(msg, "event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", errPoison, err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr(msg, "aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("%w: %v", errPoison, err)
	}
	if want, _ := eventType.Aggregate(); want != aggregateType {
		return types.Envelope{}, fmt.Errorf("%w: %s events belong to %s, got %s", errPoison, eventType, want, aggregateType)
	}

	env := types.Envelope{
		EventID:       firstNonEmpty(body.EventID, attr(msg, "event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attr(msg, "aggregate_id"),
		Version:       body.Version,
		OccurredAt:    body.OccurredAt,
		Payload:       body.Data,
	}
	if env.AggregateID == "" {
		return types.Envelope{}, fmt.Errorf("%w: aggregate_id attribute missing", errPoison)
	}
	if env.EventID == "" {
		return types.Envelope{}, fmt.Errorf("%w: event id missing", errPoison)
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt, _ = time.Parse(time.RFC3339Nano, attr(msg, "created_at"))
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}

func attr(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
