// Package bus carries request, ranking and donation events between the
// API and the matching worker. The community tier runs on in-process
// channels; the pro tier on NATS.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/lifelink-community/lifelink/internal/domain"
)

var (
	ErrClosed         = errors.New("bus is closed")
	ErrTenantRequired = errors.New("tenantID is required")
)

// New creates the bus selected by cfg.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// MessageContext returns ctx carrying the trace context recorded in msg.
func MessageContext(ctx context.Context, msg *domain.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(msg.Metadata))
}

// newMessage wraps payload in an envelope stamped with the caller's trace
// context.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	return msg
}

func checkPublish(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if tenantID == domain.AllTenants {
		return fmt.Errorf("cannot publish to %q", domain.AllTenants)
	}
	return nil
}
