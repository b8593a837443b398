package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTopic(t *testing.T) {
	topic := NewTopic("orders.created")

	assert.Equal(t, "orders.created", topic.Name)
	assert.NotNil(t, topic.Subscriptions)
	assert.Empty(t, topic.Subscriptions)
}

func TestTopic_AddRemoveSubscription(t *testing.T) {
	topic := NewTopic("orders.created")
	sub := NewSubscription("orders.created", "billing-api", EndpointREST)

	topic.AddSubscription(&sub)
	assert.Len(t, topic.Subscriptions, 1)
	assert.Same(t, &sub, topic.Subscriptions[sub.SubKey])

	topic.RemoveSubscription(sub.SubKey)
	assert.Empty(t, topic.Subscriptions)

	// Removing an absent key is a no-op.
	topic.RemoveSubscription("sk.missing")
}

func TestTopic_SubscriptionsForEndpoint(t *testing.T) {
	topic := NewTopic("orders.created")

	billing := NewSubscription("orders.created", "billing-api", EndpointREST)
	audit := NewSubscription("orders.created", "audit", EndpointAMQP)
	topic.AddSubscription(&billing)
	topic.AddSubscription(&audit)

	subs := topic.SubscriptionsForEndpoint("billing-api")
	assert.Len(t, subs, 1)
	assert.Equal(t, billing.SubKey, subs[0].SubKey)

	assert.Empty(t, topic.SubscriptionsForEndpoint("unknown"))
}

func TestTopic_HasSubscriptionForEndpoint(t *testing.T) {
	topic := NewTopic("orders.created")
	sub := NewSubscription("orders.created", "billing-api", EndpointREST)
	topic.AddSubscription(&sub)

	existing, ok := topic.HasSubscriptionForEndpoint("billing-api")
	assert.True(t, ok)
	assert.Equal(t, sub.SubKey, existing.SubKey)

	_, ok = topic.HasSubscriptionForEndpoint("unknown")
	assert.False(t, ok)
}
