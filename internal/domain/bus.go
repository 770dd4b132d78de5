package domain

import (
	"context"
)

// EventBus carries pipeline events between the API and the worker.
// Community tier runs on in-process channels, pro tier on NATS.
type EventBus interface {
	// Publish sends payload on topic for one tenant. The caller's trace
	// context travels with the message.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers topic messages for tenantID, or for every tenant
	// when tenantID is AllTenants.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// AllTenants subscribes to a topic across tenants.
const AllTenants = "*"

// MessageHandler processes one delivered message. ctx carries the
// publisher's trace context.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope around an event payload.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `mapstructure:"type"`

	// ChannelBufferSize bounds each subscriber's queue; overflow is dropped.
	ChannelBufferSize int `mapstructure:"channelBufferSize"`

	NATSUrl           string `mapstructure:"natsUrl"`
	NATSToken         string `mapstructure:"natsToken"`
	NATSMaxReconnects int    `mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `mapstructure:"natsReconnectWait"` // seconds

	// NATSQueueGroup, when set, load-balances each topic across worker
	// replicas instead of fanning out.
	NATSQueueGroup string `mapstructure:"natsQueueGroup"`
}

// Topic names for the matching pipeline.
const (
	TopicRequestCreated   = "lifelink.request.created"
	TopicMatchRanked      = "lifelink.match.ranked"
	TopicDonorAlert       = "lifelink.donor.alert"
	TopicDonationRecorded = "lifelink.donation.recorded"
)

// RequestCreatedEvent is published when a blood request is posted.
type RequestCreatedEvent struct {
	RequestID string `json:"requestId"`
	ProfileID string `json:"profileId,omitempty"`
}

// MatchRankedEvent is published after a ranking is persisted.
type MatchRankedEvent struct {
	EvaluationID string  `json:"evaluationId"`
	Subject      string  `json:"subject"`
	SubjectID    string  `json:"subjectId"`
	Candidates   int     `json:"candidates"`
	TopDonorID   string  `json:"topDonorId,omitempty"`
	TopScore     float64 `json:"topScore"`
}

// DonorAlertEvent asks the notification layer to contact a donor.
type DonorAlertEvent struct {
	DonorID   string  `json:"donorId"`
	RequestID string  `json:"requestId"`
	Urgency   Urgency `json:"urgency"`
	Score     float64 `json:"score"`
}

// DonationRecordedEvent is published when a donation enters the ledger.
type DonationRecordedEvent struct {
	DonationID string `json:"donationId"`
	DonorID    string `json:"donorId"`
	RequestID  string `json:"requestId,omitempty"`
}
