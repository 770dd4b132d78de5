package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/metrics"
)

// ChannelBus is the in-process bus. Each subscriber owns a bounded queue
// drained by one goroutine; a full queue drops the message.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	byTopic    map[string]map[string]*channelSubscription
	closed     bool
}

type channelSubscription struct {
	bus      *ChannelBus
	id       string
	tenantID string
	topic    string
	handler  domain.MessageHandler
	queue    chan *domain.Message
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewChannelBus creates a channel bus with per-subscriber queues of
// bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		byTopic:    make(map[string]map[string]*channelSubscription),
	}
}

// Publish queues the message for every matching subscriber.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := checkPublish(tenantID); err != nil {
		return err
	}
	msg := newMessage(ctx, tenantID, topic, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.byTopic[topic] {
		if sub.tenantID != domain.AllTenants && sub.tenantID != tenantID {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			metrics.BusEvents.WithLabelValues(topic, metrics.EventDropped).Inc()
			zap.L().Warn("subscriber queue full, event dropped",
				zap.String("topic", topic),
				zap.String("tenant_id", tenantID),
				zap.String("message_id", msg.ID),
			)
		}
	}
	metrics.BusEvents.WithLabelValues(topic, metrics.EventSent).Inc()
	return nil
}

// Subscribe starts a delivery goroutine for topic. It stops when ctx is
// cancelled, on Unsubscribe, or when the bus closes.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		bus:      b,
		id:       uuid.New().String(),
		tenantID: tenantID,
		topic:    topic,
		handler:  handler,
		queue:    make(chan *domain.Message, b.bufferSize),
		ctx:      subCtx,
		cancel:   cancel,
	}
	if b.byTopic[topic] == nil {
		b.byTopic[topic] = make(map[string]*channelSubscription)
	}
	b.byTopic[topic][sub.id] = sub

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if err := s.handler(MessageContext(s.ctx, msg), msg); err != nil {
				metrics.BusEvents.WithLabelValues(msg.Topic, metrics.EventFailed).Inc()
				zap.L().Error("event handler failed",
					zap.String("topic", msg.Topic),
					zap.String("tenant_id", msg.TenantID),
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscriber. Queued messages are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.byTopic {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	b.byTopic = nil
	return nil
}

// Unsubscribe stops delivery and forgets the subscription.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	s.bus.mu.Lock()
	delete(s.bus.byTopic[s.topic], s.id)
	s.bus.mu.Unlock()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
