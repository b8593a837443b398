package broker

import (
	"context"
	"sync"

	"github.com/coregx/broker/match"
	"github.com/coregx/broker/model"
)

// Registry is the in-memory catalog of topics and their subscriptions.
//
// One coarse lock protects the topic map and the endpoint index: topic
// add/remove and iteration over all topics are mutually exclusive. The lock is
// held only for registration and lookup, never across a store round-trip or a
// delivery attempt; PublishFanout resolves the matching subscriptions under
// the lock and enqueues after releasing it.
//
// The registry is constructed and torn down explicitly by the broker process
// that owns it; there is no ambient package-level state.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*model.Topic

	// subKeys indexes every known subscription by sub_key, across topics.
	subKeys map[string]*model.Subscription

	store  MessageStore
	logger Logger
}

// NewRegistry creates an empty registry enqueueing through the given store.
func NewRegistry(store MessageStore, logger Logger) (*Registry, error) {
	if store == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}

	return &Registry{
		topics:  make(map[string]*model.Topic),
		subKeys: make(map[string]*model.Subscription),
		store:   store,
		logger:  logger,
	}, nil
}

// CreateTopic creates the named topic, returning the existing one when it is
// already present. Idempotent.
func (r *Registry) CreateTopic(name string) *model.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createTopicLocked(name)
}

func (r *Registry) createTopicLocked(name string) *model.Topic {
	if t, ok := r.topics[name]; ok {
		return t
	}
	t := model.NewTopic(name)
	r.topics[name] = t
	r.logger.Infof("Topic created: %s", name)
	return t
}

// GetTopic returns the named topic, or false when absent.
func (r *Registry) GetTopic(name string) (*model.Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	return t, ok
}

// TopicNames returns the names of all known topics.
func (r *Registry) TopicNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.topics))
	for name := range r.topics {
		names = append(names, name)
	}
	return names
}

// Subscribe binds an endpoint to a topic, creating the topic if absent.
// Subscribing the same endpoint to the same topic twice returns the existing
// subscription without creating a duplicate; the second return reports
// whether a new subscription was created.
//
// The returned pointer is the live registry entry. Mutate it only before its
// delivery task starts; afterwards use UpdateSubscription, which runs under
// the registry lock.
func (r *Registry) Subscribe(topicName, endpointName string, endpointType model.EndpointType, patterns ...string) (*model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic := r.createTopicLocked(topicName)

	if existing, ok := topic.HasSubscriptionForEndpoint(endpointName); ok {
		r.logger.Warnf("Subscription already exists: topic=%s, endpoint=%s, sub_key=%s",
			topicName, endpointName, existing.SubKey)
		return existing, false
	}

	sub := model.NewSubscription(topicName, endpointName, endpointType, patterns...)
	topic.AddSubscription(&sub)
	r.subKeys[sub.SubKey] = &sub

	r.logger.Infof("Subscription created: topic=%s, endpoint=%s, sub_key=%s",
		topicName, endpointName, sub.SubKey)
	return &sub, true
}

// Attach registers a subscription restored from the durable store, keeping
// Subscribe's idempotency guarantee. Used while warming up the registry.
func (r *Registry) Attach(sub *model.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic := r.createTopicLocked(sub.TopicName)
	if _, ok := topic.HasSubscriptionForEndpoint(sub.EndpointName); ok {
		return
	}
	topic.AddSubscription(sub)
	r.subKeys[sub.SubKey] = sub
}

// Unsubscribe removes every subscription of the endpoint under the topic and
// reports whether anything was removed. An absent topic or subscription is
// not an error.
func (r *Registry) Unsubscribe(topicName, endpointName string) (removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[topicName]
	if !ok {
		return nil
	}

	for _, sub := range topic.SubscriptionsForEndpoint(endpointName) {
		topic.RemoveSubscription(sub.SubKey)
		delete(r.subKeys, sub.SubKey)
		removed = append(removed, sub.SubKey)
	}

	if len(removed) > 0 {
		r.logger.Infof("Unsubscribed: topic=%s, endpoint=%s, removed=%d",
			topicName, endpointName, len(removed))
	}
	return removed
}

// DeleteTopic removes the topic and all of its subscriptions, returning the
// sub_keys whose delivery tasks must be stopped by the caller.
func (r *Registry) DeleteTopic(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[name]
	if !ok {
		return nil
	}

	subKeys := make([]string, 0, len(topic.Subscriptions))
	for subKey := range topic.Subscriptions {
		delete(r.subKeys, subKey)
		subKeys = append(subKeys, subKey)
	}
	delete(r.topics, name)

	r.logger.Infof("Topic deleted: %s (cascaded %d subscriptions)", name, len(subKeys))
	return subKeys
}

// RenameTopic moves a topic and its subscriptions to a new name. Sub_keys are
// stable across the rename, so delivery tasks keep running untouched.
func (r *Registry) RenameTopic(oldName, newName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[oldName]
	if !ok {
		return false
	}
	if _, exists := r.topics[newName]; exists {
		return false
	}

	delete(r.topics, oldName)
	topic.Name = newName
	r.topics[newName] = topic

	for _, sub := range topic.Subscriptions {
		if sub.TopicName == oldName {
			sub.TopicName = newName
		}
		// Patterns holding the literal old name follow the rename;
		// wildcard patterns are left as configured.
		for i, p := range sub.Patterns {
			if p == oldName {
				sub.Patterns[i] = newName
			}
		}
	}

	r.logger.Infof("Topic renamed: %s -> %s", oldName, newName)
	return true
}

// GetSubscription returns the subscription owning the sub_key.
func (r *Registry) GetSubscription(subKey string) (*model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subKeys[subKey]
	return sub, ok
}

// UpdateSubscription mutates the subscription under the registry lock, so the
// edit is atomic with respect to pattern matching and activity checks.
// Reports whether the sub_key was found.
func (r *Registry) UpdateSubscription(subKey string, fn func(*model.Subscription)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subKeys[subKey]
	if !ok {
		return false
	}
	fn(sub)
	return true
}

// FindSubscription returns a copy of the endpoint's subscription under the
// topic, safe to read without further locking.
func (r *Registry) FindSubscription(topicName, endpointName string) (model.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[topicName]
	if !ok {
		return model.Subscription{}, false
	}
	sub, ok := topic.HasSubscriptionForEndpoint(endpointName)
	if !ok {
		return model.Subscription{}, false
	}
	return *sub, true
}

// SubscriptionsOfTopic returns copies of the topic's subscriptions.
func (r *Registry) SubscriptionsOfTopic(name string) []model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.topics[name]
	if !ok {
		return nil
	}
	out := make([]model.Subscription, 0, len(topic.Subscriptions))
	for _, sub := range topic.Subscriptions {
		out = append(out, *sub)
	}
	return out
}

// GetMatchingSubscriptions resolves every active subscription the topic name
// reaches: subscriptions of the exactly named topic plus, across all topics,
// subscriptions whose pattern list matches the name. The union contains no
// duplicates.
func (r *Registry) GetMatchingSubscriptions(topicName string) []*model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchingSubscriptionsLocked(topicName)
}

func (r *Registry) matchingSubscriptionsLocked(topicName string) []*model.Subscription {
	var out []*model.Subscription
	seen := make(map[string]struct{})

	add := func(sub *model.Subscription) {
		if !sub.IsActive {
			return
		}
		if _, dup := seen[sub.SubKey]; dup {
			return
		}
		seen[sub.SubKey] = struct{}{}
		out = append(out, sub)
	}

	if topic, ok := r.topics[topicName]; ok {
		for _, sub := range topic.Subscriptions {
			add(sub)
		}
	}

	for name, topic := range r.topics {
		if name == topicName {
			continue
		}
		for _, sub := range topic.Subscriptions {
			for _, pattern := range sub.Patterns {
				if match.Matches(topicName, pattern) {
					add(sub)
					break
				}
			}
		}
	}

	return out
}

// PublishFanout durably enqueues the message for every matching subscription
// and returns the notified sub_keys so the caller can wake their delivery
// tasks. The store round-trip happens outside the registry lock.
func (r *Registry) PublishFanout(ctx context.Context, topicName string, msg model.Message) ([]string, error) {
	r.mu.Lock()
	subs := r.matchingSubscriptionsLocked(topicName)
	r.mu.Unlock()

	if len(subs) == 0 {
		r.logger.Warnf("No matching subscriptions for topic=%s", topicName)
		return nil, nil
	}

	rows := make([]model.Message, 0, len(subs))
	subKeys := make([]string, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, msg.WithSubKey(sub.SubKey))
		subKeys = append(subKeys, sub.SubKey)
	}

	if err := r.store.Enqueue(ctx, rows...); err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to enqueue message", err)
	}

	r.logger.Infof("Published message %s to %d subscriptions (topic=%s)",
		msg.PubMsgID, len(subKeys), topicName)
	return subKeys, nil
}
