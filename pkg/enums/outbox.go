package enums

import "fmt"

// OutboxAggregateType names the entity an outbox row belongs to.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if agg := OutboxAggregateType(value); agg.IsValid() {
		return agg, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType is the domain event carried by an outbox row. It travels
// as the event_type attribute on the published message.
type OutboxEventType string

const EventOrderPlaced OutboxEventType = "order_placed"

func (e OutboxEventType) IsValid() bool {
	return e == EventOrderPlaced
}

// Aggregate returns the aggregate a known event type is emitted for.
func (e OutboxEventType) Aggregate() (OutboxAggregateType, bool) {
	switch e {
	case EventOrderPlaced:
		return AggregateOrder, true
	}
	return "", false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if event := OutboxEventType(value); event.IsValid() {
		return event, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why a row was parked instead of published.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnknownEvent:
		return true
	}
	return false
}
