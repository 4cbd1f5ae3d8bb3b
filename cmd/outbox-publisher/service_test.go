package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
	"github.com/sportedge/sportedge-backend/pkg/outbox/payloads"
	"github.com/sportedge/sportedge-backend/pkg/outbox/registry"
)

func orderPlacedRow(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
		CreatedAt:     time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

type harness struct {
	svc  *Service
	repo *memRepo
	dlq  *memDLQ
	pub  *scriptedPublisher
	rec  *countingRecorder
}

func newHarness(t *testing.T, resolver registryResolver, maxAttempts int, rows ...models.OutboxEvent) harness {
	t.Helper()
	h := harness{
		repo: &memRepo{rows: rows},
		dlq:  &memDLQ{},
		pub:  &scriptedPublisher{},
		rec:  &countingRecorder{},
	}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      len(rows),
			PollIntervalMS: 50,
			MaxAttempts:    maxAttempts,
		}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               passthroughDB{},
		PubSub:           idlePubSub{},
		Repository:       h.repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return h.pub },
		DLQRepository:    h.dlq,
		Metrics:          h.rec,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func ordersTopic() *echoRegistry {
	return &echoRegistry{topic: "se-order-events"}
}

func TestProcessBatchKeepsGoingAfterTransientFailure(t *testing.T) {
	t.Parallel()
	first, second := orderPlacedRow(t, 0), orderPlacedRow(t, 0)
	h := newHarness(t, ordersTopic(), 5, first, second)
	h.pub.errs = []error{errors.New("unavailable"), nil}

	picked, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, picked)
	require.Equal(t, []uuid.UUID{first.ID}, h.repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, h.repo.published)
	require.Empty(t, h.dlq.entries)
	require.Equal(t, countingRecorder{batches: 1, processed: 1, failed: 1}, *h.rec)
}

func TestPublishedMessageCarriesRoutingAttributes(t *testing.T) {
	t.Parallel()
	row := orderPlacedRow(t, 0)
	h := newHarness(t, ordersTopic(), 5, row)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.pub.sent, 1)

	msg := h.pub.sent[0]
	require.Equal(t, []byte(row.Payload), msg.Data)
	require.Equal(t, map[string]string{
		"event_id":       row.ID.String(),
		"event_type":     "order_placed",
		"aggregate_type": "order",
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     "2025-05-01T10:00:00Z",
		"version":        "1",
	}, msg.Attributes)
}

func TestProcessBatchParksRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		eventType  enums.OutboxEventType
		resolver   registryResolver
		attempts   int
		publishErr error
		wantReason enums.OutboxDLQErrorReason
	}{
		{
			name:       "unknown event type",
			eventType:  enums.OutboxEventType("order_refunded"),
			resolver:   &echoRegistry{err: registry.NewNonRetryableError(errors.New("unsupported event type"))},
			wantReason: enums.OutboxDLQReasonUnknownEvent,
		},
		{
			name:       "undecodable payload",
			eventType:  enums.EventOrderPlaced,
			resolver:   &echoRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			wantReason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "attempts exhausted",
			eventType:  enums.EventOrderPlaced,
			resolver:   ordersTopic(),
			attempts:   1,
			publishErr: errors.New("deadline exceeded"),
			wantReason: enums.OutboxDLQReasonMaxAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			row := orderPlacedRow(t, tt.attempts)
			row.EventType = tt.eventType
			h := newHarness(t, tt.resolver, 2, row)
			h.pub.errs = []error{tt.publishErr}

			picked, err := h.svc.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, picked)

			require.Len(t, h.dlq.entries, 1)
			entry := h.dlq.entries[0]
			require.Equal(t, row.ID, entry.EventID)
			require.Equal(t, tt.wantReason, entry.ErrorReason)
			require.Equal(t, []byte(row.Payload), []byte(entry.Payload))
			require.Equal(t, tt.attempts+1, entry.AttemptCount)
			require.NotNil(t, entry.ErrorMessage)
			require.Equal(t, []uuid.UUID{row.ID}, h.repo.dead)
			require.Empty(t, h.repo.published)
		})
	}
}

func TestProcessBatchReportsIdlePoll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, ordersTopic(), 5)

	picked, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, picked)
	require.Zero(t, h.rec.batches)
}

func TestBackoffDoublesToCeilingAndResets(t *testing.T) {
	t.Parallel()
	b := newBackoff(time.Second, 3*time.Second)

	require.GreaterOrEqual(t, b.fail(), 2*time.Second)
	require.GreaterOrEqual(t, b.fail(), 3*time.Second)
	require.Less(t, b.fail(), 3*time.Second+jitterWindow)

	b.reset()
	require.Equal(t, time.Second, b.current)
}

func TestPublisherCacheBuildsOncePerTopic(t *testing.T) {
	t.Parallel()
	builds := 0
	cache := newPublisherCache(func(string) publisher {
		builds++
		return &scriptedPublisher{}
	})

	require.Same(t, cache.get("a"), cache.get("a"))
	cache.get("b")
	require.Equal(t, 2, builds)
}

type memRepo struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	dead      []uuid.UUID
}

func (m *memRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	if limit < len(m.rows) {
		return m.rows[:limit], nil
	}
	return m.rows, nil
}

func (m *memRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID, _ time.Time) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memRepo) MarkDeadTx(_ *gorm.DB, id uuid.UUID, _ time.Time, _ error) error {
	m.dead = append(m.dead, id)
	return nil
}

type memDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type passthroughDB struct{}

func (passthroughDB) Ping(context.Context) error { return nil }

func (passthroughDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type idlePubSub struct{}

func (idlePubSub) Ping(context.Context) error { return nil }

func (idlePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// scriptedPublisher fails publishes in order according to errs; once errs is
// exhausted every publish succeeds.
type scriptedPublisher struct {
	errs []error
	sent []*gcppubsub.Message
}

func (p *scriptedPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.sent = append(p.sent, msg)
	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	return settledResult{err: err}
}

type settledResult struct {
	err error
}

func (r settledResult) Get(context.Context) (string, error) {
	return "server-id", r.err
}

// echoRegistry resolves every row onto topic with the row id as event id.
type echoRegistry struct {
	topic string
	err   error
}

func (r *echoRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: r.topic, AggregateType: event.AggregateType},
		Envelope: outbox.PayloadEnvelope{
			Version:    1,
			EventID:    event.ID.String(),
			OccurredAt: event.CreatedAt,
		},
		Payload: &payloads.OrderPlacedEvent{},
	}, nil
}

type countingRecorder struct {
	batches   int
	processed int
	failed    int
}

func (c *countingRecorder) ObserveBatch(string, time.Duration) { c.batches++ }
func (c *countingRecorder) AddProcessed(_ string, n int)       { c.processed += n }
func (c *countingRecorder) AddFailed(_ string, n int)          { c.failed += n }
