package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/metrics"
)

// collect subscribes and forwards every delivered message to a channel.
func collect(t *testing.T, b *ChannelBus, tenantID, topic string) (<-chan *domain.Message, domain.Subscription) {
	t.Helper()
	out := make(chan *domain.Message, 16)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(_ context.Context, msg *domain.Message) error {
		out <- msg
		return nil
	})
	require.NoError(t, err)
	return out, sub
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertSilent(t *testing.T, ch <-chan *domain.Message) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s on %s", msg.ID, msg.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishJSONDelivers", func(t *testing.T) {
		b := NewChannelBus(100)
		defer b.Close()
		ch, _ := collect(t, b, tenantID, domain.TopicRequestCreated)

		require.NoError(t, PublishJSON(ctx, b, tenantID, domain.TopicRequestCreated,
			domain.RequestCreatedEvent{RequestID: "req-1", ProfileID: domain.ProfileEmergency}))

		msg := receive(t, ch)
		assert.Equal(t, tenantID, msg.TenantID)
		assert.Equal(t, domain.TopicRequestCreated, msg.Topic)
		assert.NotEmpty(t, msg.ID)

		var ev domain.RequestCreatedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "req-1", ev.RequestID)
		assert.Equal(t, domain.ProfileEmergency, ev.ProfileID)
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		b := NewChannelBus(100)
		defer b.Close()
		ch1, _ := collect(t, b, "tenant-a", domain.TopicDonorAlert)
		ch2, _ := collect(t, b, "tenant-b", domain.TopicDonorAlert)

		require.NoError(t, b.Publish(ctx, "tenant-a", domain.TopicDonorAlert, []byte(`{}`)))

		receive(t, ch1)
		assertSilent(t, ch2)
	})

	t.Run("AllTenantsSubscription", func(t *testing.T) {
		b := NewChannelBus(100)
		defer b.Close()
		ch, _ := collect(t, b, domain.AllTenants, domain.TopicRequestCreated)

		require.NoError(t, b.Publish(ctx, "tenant-a", domain.TopicRequestCreated, []byte(`{}`)))
		require.NoError(t, b.Publish(ctx, "tenant-b", domain.TopicRequestCreated, []byte(`{}`)))

		got := map[string]bool{receive(t, ch).TenantID: true, receive(t, ch).TenantID: true}
		assert.Equal(t, map[string]bool{"tenant-a": true, "tenant-b": true}, got)
	})

	t.Run("CannotPublishToAllTenants", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()
		assert.Error(t, b.Publish(ctx, domain.AllTenants, domain.TopicMatchRanked, nil))
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		assert.ErrorIs(t, b.Publish(ctx, "", "topic", []byte("data")), ErrTenantRequired)
		_, err := b.Subscribe(ctx, "", "topic", func(context.Context, *domain.Message) error { return nil })
		assert.ErrorIs(t, err, ErrTenantRequired)
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()
		ch, sub := collect(t, b, tenantID, domain.TopicDonationRecorded)

		require.NoError(t, b.Publish(ctx, tenantID, domain.TopicDonationRecorded, []byte("1")))
		receive(t, ch)

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, b.Publish(ctx, tenantID, domain.TopicDonationRecorded, []byte("2")))
		assertSilent(t, ch)
		assert.Equal(t, domain.TopicDonationRecorded, sub.Topic())
	})

	t.Run("FanOut", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()
		ch1, _ := collect(t, b, tenantID, domain.TopicMatchRanked)
		ch2, _ := collect(t, b, tenantID, domain.TopicMatchRanked)

		require.NoError(t, b.Publish(ctx, tenantID, domain.TopicMatchRanked, []byte("broadcast")))
		receive(t, ch1)
		receive(t, ch2)
	})

	t.Run("FullQueueDrops", func(t *testing.T) {
		const topic = "test.full-queue"
		b := NewChannelBus(1)
		defer b.Close()

		started := make(chan struct{}, 1)
		release := make(chan struct{})
		_, err := b.Subscribe(ctx, tenantID, topic, func(context.Context, *domain.Message) error {
			started <- struct{}{}
			<-release
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, b.Publish(ctx, tenantID, topic, []byte("1")))
		<-started // handler holds message 1
		require.NoError(t, b.Publish(ctx, tenantID, topic, []byte("2"))) // queued
		require.NoError(t, b.Publish(ctx, tenantID, topic, []byte("3"))) // dropped
		close(release)

		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BusEvents.WithLabelValues(topic, metrics.EventDropped)))
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.BusEvents.WithLabelValues(topic, metrics.EventSent)))
	})

	t.Run("TraceContextTravels", func(t *testing.T) {
		prev := otel.GetTextMapPropagator()
		otel.SetTextMapPropagator(propagation.TraceContext{})
		defer otel.SetTextMapPropagator(prev)

		b := NewChannelBus(10)
		defer b.Close()

		got := make(chan trace.SpanContext, 1)
		_, err := b.Subscribe(ctx, tenantID, domain.TopicRequestCreated, func(ctx context.Context, _ *domain.Message) error {
			got <- trace.SpanContextFromContext(ctx)
			return nil
		})
		require.NoError(t, err)

		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{0x0a, 0x0b, 0x0c, 1},
			SpanID:     trace.SpanID{0x01, 0x02},
			TraceFlags: trace.FlagsSampled,
		})
		require.NoError(t, b.Publish(trace.ContextWithSpanContext(ctx, sc), tenantID, domain.TopicRequestCreated, []byte(`{}`)))

		select {
		case remote := <-got:
			assert.Equal(t, sc.TraceID(), remote.TraceID())
			assert.True(t, remote.IsRemote())
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	ctx := context.Background()
	b := NewChannelBus(10)

	var handled atomic.Int32
	_, err := b.Subscribe(ctx, "tenant-001", "close.topic", func(context.Context, *domain.Message) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close is a no-op")

	assert.ErrorIs(t, b.Publish(ctx, "tenant-001", "close.topic", []byte("data")), ErrClosed)
	assert.ErrorIs(t, b.Ping(ctx), ErrClosed)
	_, err = b.Subscribe(ctx, "tenant-001", "close.topic", func(context.Context, *domain.Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, handled.Load())
}

func TestChannelBusHighLoad(t *testing.T) {
	b := NewChannelBus(1000)
	defer b.Close()

	const messageCount = 500
	done := make(chan struct{})
	var received atomic.Int32
	_, err := b.Subscribe(context.Background(), domain.AllTenants, "load.topic", func(context.Context, *domain.Message) error {
		if received.Add(1) == messageCount {
			close(done)
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < messageCount; i++ {
		tenant := "tenant-a"
		if i%2 == 1 {
			tenant = "tenant-b"
		}
		require.NoError(t, b.Publish(context.Background(), tenant, "load.topic", []byte("msg")))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		require.NoError(t, err)
		defer b.Close()
		assert.IsType(t, &ChannelBus{}, b)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"})
		assert.Error(t, err)
	})
}

func TestNATSEnvelope(t *testing.T) {
	assert.Equal(t, "lifelink.request.created.tenant-001", Subject(domain.TopicRequestCreated, "tenant-001"))

	m := nats.NewMsg(Subject(domain.TopicDonorAlert, "tenant-001"))
	m.Data = []byte(`{"donorId":"d1"}`)
	m.Header.Set(headerMessageID, "msg-1")
	m.Header.Set(headerTenantID, "tenant-001")
	m.Header.Set(headerTopic, domain.TopicDonorAlert)
	m.Header.Set(headerTimestamp, "1700000000000000000")
	m.Header.Set("traceparent", "00-0a0b0c01000000000000000000000000-0102000000000000-01")

	msg := fromNATS(m)
	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "tenant-001", msg.TenantID)
	assert.Equal(t, domain.TopicDonorAlert, msg.Topic)
	assert.Equal(t, int64(1700000000000000000), msg.Timestamp)
	assert.JSONEq(t, `{"donorId":"d1"}`, string(msg.Payload))
	assert.Equal(t, map[string]string{"Traceparent": "00-0a0b0c01000000000000000000000000-0102000000000000-01"}, msg.Metadata)
}
