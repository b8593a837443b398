package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Subscription binds an endpoint to a topic or topic pattern.
//
// Each subscription owns a durable per-subscription message queue keyed by
// SubKey, drained in order by one delivery task. The SubKey is generated at
// creation time and stays stable for the subscription's lifetime.
//
// Lifecycle: active subscriptions receive new messages and have a running
// delivery task; deactivating or deleting the subscription stops the task.
type Subscription struct {
	ID           int64        `json:"id"`                              // Durable row ID
	SubKey       string       `json:"subKey" db:"sub_key"`             // Stable unique key, names the delivery task
	TopicName    string       `json:"topicName" db:"topic_name"`       // Topic name or pattern subscribed to
	EndpointName string       `json:"endpointName" db:"endpoint_name"` // Delivery target name
	EndpointID   int64        `json:"endpointID" db:"endpoint_id"`     // Delivery target ID
	EndpointType EndpointType `json:"endpointType" db:"endpoint_type"` // Transport family
	IsActive     bool         `json:"isActive" db:"is_active"`         // Active subscriptions receive messages
	CreatedAt    time.Time    `json:"createdAt" db:"created_at"`
	DeletedAt    sql.NullTime `json:"deletedAt" db:"deleted_at"`

	// Patterns the subscription matches published topic names against,
	// in configuration order. Defaults to the literal topic name.
	Patterns []string `json:"patterns" db:"-"`

	// REST delivery configuration.
	HTTPMethod  string `json:"httpMethod" db:"http_method"`
	CallbackURL string `json:"callbackURL" db:"callback_url"`
	ContentType string `json:"contentType" db:"content_type"`

	// AMQP delivery overrides; empty values fall back to the outgoing
	// connection's defaults.
	AMQPExchange   string `json:"amqpExchange" db:"amqp_exchange"`
	AMQPRoutingKey string `json:"amqpRoutingKey" db:"amqp_routing_key"`

	// Service delivery target for topic-to-service bindings.
	ServiceName string `json:"serviceName" db:"service_name"`
}

// TableName returns the database table name for Subscription.
func (s Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// NewSubscription creates an active subscription with a freshly generated
// sub_key. When no patterns are given the literal topic name is used.
func NewSubscription(topicName, endpointName string, endpointType EndpointType, patterns ...string) Subscription {
	if len(patterns) == 0 {
		patterns = []string{topicName}
	}

	return Subscription{
		ID:           0,
		SubKey:       "sk." + uuid.NewString(),
		TopicName:    topicName,
		EndpointName: endpointName,
		EndpointType: endpointType,
		IsActive:     true,
		CreatedAt:    time.Now(),
		Patterns:     patterns,
	}
}

// Deactivate performs a soft delete. The subscription stops receiving new
// messages and its delivery task is stopped by the control handler.
func (s *Subscription) Deactivate() {
	s.IsActive = false
	s.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
}

// SetPatterns replaces the pattern list, falling back to the literal topic
// name when the list is empty.
func (s *Subscription) SetPatterns(patterns []string) {
	if len(patterns) == 0 {
		patterns = []string{s.TopicName}
	}
	s.Patterns = patterns
}
