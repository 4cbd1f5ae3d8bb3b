package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/sportedge/sportedge-backend/internal/analytics/types"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/outbox/registry"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported analytics event type")
	// ErrInvalidPayload marks bodies that can never decode. Redelivery will
	// not help.
	ErrInvalidPayload = errors.New("invalid analytics payload")
)

// Writer is the warehouse sink for order sale rows.
type Writer interface {
	InsertOrderSales(ctx context.Context, rows []types.OrderSaleRow) error
}

// Handler consumes one decoded event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router decodes an envelope's payload and hands it to the handler
// registered for its event type.
type Router struct {
	routes   map[enums.OutboxEventType]Handler
	decoders *registry.DecoderRegistry
}

// New returns a router with the order_placed sales handler installed. A nil
// decoder registry means registry.DefaultDecoders.
func New(writer Writer, decoders *registry.DecoderRegistry, logg *logger.Logger) (*Router, error) {
	switch {
	case writer == nil:
		return nil, errors.New("writer is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	case decoders == nil:
		decoders = registry.DefaultDecoders()
	}
	r := &Router{routes: map[enums.OutboxEventType]Handler{}, decoders: decoders}
	r.Route(enums.EventOrderPlaced, &orderSales{writer: writer, logg: logg})
	return r, nil
}

// Route installs h for eventType, replacing any earlier handler.
func (r *Router) Route(eventType enums.OutboxEventType, h Handler) {
	r.routes[eventType] = h
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	h, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if envelope.Blank() {
		return fmt.Errorf("%w: %s carries no payload", ErrInvalidPayload, envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.SchemaVersion(), envelope.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return h.Handle(ctx, envelope, payload)
}
