package model

import "time"

// Topic represents a named message channel with its subscriptions.
//
// Topic names are hierarchical, dot-delimited (e.g. "orders.created",
// "orders.region.us.created"). Subscriptions may name a topic exactly or carry
// wildcard patterns evaluated by the match package.
//
// A Topic instance is pure data; all mutation happens under the registry's
// lock, so Topic methods themselves take no locks.
type Topic struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// Subscriptions keyed by sub_key. Insertion order is irrelevant.
	Subscriptions map[string]*Subscription `json:"-" db:"-"`
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return tablePrefix + "topic"
}

// NewTopic creates an empty topic.
func NewTopic(name string) *Topic {
	return &Topic{
		Name:          name,
		CreatedAt:     time.Now(),
		Subscriptions: make(map[string]*Subscription),
	}
}

// AddSubscription registers the subscription under its sub_key.
func (t *Topic) AddSubscription(sub *Subscription) {
	t.Subscriptions[sub.SubKey] = sub
}

// RemoveSubscription drops the subscription with the given sub_key.
// Removing an absent key is a no-op.
func (t *Topic) RemoveSubscription(subKey string) {
	delete(t.Subscriptions, subKey)
}

// SubscriptionsForEndpoint returns all subscriptions of the named endpoint.
func (t *Topic) SubscriptionsForEndpoint(endpointName string) []*Subscription {
	var out []*Subscription
	for _, sub := range t.Subscriptions {
		if sub.EndpointName == endpointName {
			out = append(out, sub)
		}
	}
	return out
}

// HasSubscriptionForEndpoint reports whether the endpoint already subscribes
// to this topic. Used to keep Subscribe idempotent.
func (t *Topic) HasSubscriptionForEndpoint(endpointName string) (*Subscription, bool) {
	for _, sub := range t.Subscriptions {
		if sub.EndpointName == endpointName {
			return sub, true
		}
	}
	return nil, false
}
