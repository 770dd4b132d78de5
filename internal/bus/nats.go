package bus

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/metrics"
)

// Envelope fields travel as NATS headers; the payload is the raw event.
const (
	headerMessageID = "Lifelink-Message-Id"
	headerTenantID  = "Lifelink-Tenant-Id"
	headerTopic     = "Lifelink-Topic"
	headerTimestamp = "Lifelink-Timestamp"
)

// NATSBus publishes each event on "<topic>.<tenant>", so a worker serving
// every tenant subscribes to "<topic>.*".
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to NATS, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects == 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait == 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	opts := []nats.Option{
		nats.Name("lifelink"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			zap.L().Warn("nats disconnected", zap.Error(err), zap.Bool("will_reconnect", !nc.IsClosed()))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			zap.L().Error("nats async error", zap.String("subject", subject), zap.Error(err))
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		if conn, err = nats.Connect(cfg.NATSUrl, opts...); err == nil {
			break
		}
		zap.L().Warn("nats connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.NATSMaxReconnects),
			zap.Error(err),
		)
		time.Sleep(wait)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	zap.L().Info("nats connected",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("queue_group", cfg.NATSQueueGroup),
	)
	return NewNATSBusFromConn(conn, cfg.NATSQueueGroup), nil
}

// NewNATSBusFromConn wraps an open connection. A non-empty queueGroup
// load-balances deliveries across subscribers in the group.
func NewNATSBusFromConn(conn *nats.Conn, queueGroup string) *NATSBus {
	return &NATSBus{
		conn:       conn,
		queueGroup: queueGroup,
		subs:       make(map[*natsSubscription]struct{}),
	}
}

// Subject maps a topic and tenant to a NATS subject.
func Subject(topic, tenantID string) string {
	return topic + "." + tenantID
}

// Publish sends payload with the envelope and trace context as headers.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := checkPublish(tenantID); err != nil {
		return err
	}
	env := newMessage(ctx, tenantID, topic, payload)

	m := nats.NewMsg(Subject(topic, tenantID))
	m.Data = payload
	m.Header.Set(headerMessageID, env.ID)
	m.Header.Set(headerTenantID, tenantID)
	m.Header.Set(headerTopic, topic)
	m.Header.Set(headerTimestamp, strconv.FormatInt(env.Timestamp, 10))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(m.Header))

	if err := b.conn.PublishMsg(m); err != nil {
		metrics.BusEvents.WithLabelValues(topic, metrics.EventFailed).Inc()
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	metrics.BusEvents.WithLabelValues(topic, metrics.EventSent).Inc()
	return nil
}

// Subscribe delivers messages for tenantID, or every tenant with
// domain.AllTenants.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	subject := Subject(topic, tenantID)
	if tenantID == domain.AllTenants {
		subject = Subject(topic, "*")
	}

	deliver := func(m *nats.Msg) {
		msg := fromNATS(m)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(m.Header))
		if err := handler(msgCtx, msg); err != nil {
			metrics.BusEvents.WithLabelValues(msg.Topic, metrics.EventFailed).Inc()
			zap.L().Error("event handler failed",
				zap.String("subject", m.Subject),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	var ns *nats.Subscription
	var err error
	if b.queueGroup != "" {
		ns, err = b.conn.QueueSubscribe(subject, b.queueGroup, deliver)
	} else {
		ns, err = b.conn.Subscribe(subject, deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	sub := &natsSubscription{bus: b, topic: topic, sub: ns}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// fromNATS rebuilds the envelope from headers. Headers other than the
// envelope fields (trace context) land in Metadata.
func fromNATS(m *nats.Msg) *domain.Message {
	msg := &domain.Message{
		ID:       m.Header.Get(headerMessageID),
		TenantID: m.Header.Get(headerTenantID),
		Topic:    m.Header.Get(headerTopic),
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	msg.Timestamp, _ = strconv.ParseInt(m.Header.Get(headerTimestamp), 10, 64)
	for k := range m.Header {
		switch k {
		case headerMessageID, headerTenantID, headerTopic, headerTimestamp:
		default:
			msg.Metadata[k] = m.Header.Get(k)
		}
	}
	return msg
}

// Ping flushes the connection.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		_ = sub.sub.Unsubscribe()
	}
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

// Stats returns connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
