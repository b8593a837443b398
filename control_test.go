package broker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	broker "github.com/coregx/broker"
	"github.com/coregx/broker/adapters/memory"
	"github.com/coregx/broker/model"
)

func newTestControl(t *testing.T) (*broker.ControlHandler, *broker.Registry, *broker.TaskManager) {
	t.Helper()

	store := memory.NewMessageStore()
	registry, err := broker.NewRegistry(store, nil)
	require.NoError(t, err)

	manager := newTestManager(t, store, restDispatcher(newRecordingSender()))

	handler, err := broker.NewControlHandler(registry, manager, nil)
	require.NoError(t, err)

	return handler, registry, manager
}

func TestControlHandler_CreateAndDeleteTopic(t *testing.T) {
	handler, registry, manager := newTestControl(t)
	ctx := context.Background()

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:      broker.CmdCreateTopic,
		TopicName: "orders",
	}))
	_, ok := registry.GetTopic("orders")
	assert.True(t, ok)

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
	}))
	assert.Equal(t, 1, manager.TaskCount())

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:      broker.CmdDeleteTopic,
		TopicName: "orders",
	}))
	_, ok = registry.GetTopic("orders")
	assert.False(t, ok)

	// Deleting the topic stops the cascaded subscription's task.
	require.Eventually(t, func() bool {
		return manager.TaskCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestControlHandler_RenameTopic(t *testing.T) {
	handler, registry, _ := newTestControl(t)
	ctx := context.Background()

	registry.CreateTopic("orders")

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdRenameTopic,
		TopicName:    "orders",
		NewTopicName: "orders.v2",
	}))

	_, ok := registry.GetTopic("orders.v2")
	assert.True(t, ok)

	// Renaming a missing topic is a validation error.
	err := handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdRenameTopic,
		TopicName:    "missing",
		NewTopicName: "elsewhere",
	})
	require.Error(t, err)
}

func TestControlHandler_CreateSubscription_ValidatesEndpointType(t *testing.T) {
	handler, _, _ := newTestControl(t)

	err := handler.Apply(context.Background(), broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointType("carrier-pigeon"),
	})
	require.Error(t, err)
}

func TestControlHandler_EditSubscription(t *testing.T) {
	handler, registry, manager := newTestControl(t)
	ctx := context.Background()

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
	}))

	topic, _ := registry.GetTopic("orders")
	sub, ok := topic.HasSubscriptionForEndpoint("billing")
	require.True(t, ok)

	// Replace patterns.
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:     broker.CmdEditSubscription,
		SubKey:   sub.SubKey,
		Patterns: []string{"orders.*"},
	}))
	assert.Equal(t, []string{"orders.*"}, sub.Patterns)

	// Deactivate stops the task.
	inactive := false
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:     broker.CmdEditSubscription,
		SubKey:   sub.SubKey,
		IsActive: &inactive,
	}))
	assert.False(t, sub.IsActive)
	require.Eventually(t, func() bool {
		return manager.TaskCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Reactivate starts a fresh one.
	active := true
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:     broker.CmdEditSubscription,
		SubKey:   sub.SubKey,
		IsActive: &active,
	}))
	assert.True(t, sub.IsActive)
	assert.Equal(t, 1, manager.TaskCount())

	// Editing an unknown sub_key reports no data.
	err := handler.Apply(ctx, broker.Command{
		Kind:   broker.CmdEditSubscription,
		SubKey: "sk.unknown",
	})
	assert.True(t, broker.IsNoData(err))
}

func TestControlHandler_DeleteSubscription_Idempotent(t *testing.T) {
	handler, registry, manager := newTestControl(t)
	ctx := context.Background()

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
	}))

	topic, _ := registry.GetTopic("orders")
	sub, ok := topic.HasSubscriptionForEndpoint("billing")
	require.True(t, ok)

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:   broker.CmdDeleteSubscription,
		SubKey: sub.SubKey,
	}))
	_, ok = registry.GetSubscription(sub.SubKey)
	assert.False(t, ok)
	require.Eventually(t, func() bool {
		return manager.TaskCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Deleting again is not an error.
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:   broker.CmdDeleteSubscription,
		SubKey: sub.SubKey,
	}))
}

// fakeTopicRepo is an in-memory broker.TopicRepository recording what the
// control handler persists.
type fakeTopicRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]model.Topic // by name
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{rows: make(map[string]model.Topic)}
}

func (r *fakeTopicRepo) Load(_ context.Context, id int64) (model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return model.Topic{}, broker.ErrNoData
}

func (r *fakeTopicRepo) Save(_ context.Context, t model.Topic) (model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	for name, row := range r.rows {
		if row.ID == t.ID && name != t.Name {
			delete(r.rows, name)
		}
	}
	r.rows[t.Name] = t
	return t, nil
}

func (r *fakeTopicRepo) GetByName(_ context.Context, name string) (model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[name]
	if !ok {
		return model.Topic{}, broker.ErrNoData
	}
	return row, nil
}

func (r *fakeTopicRepo) List(_ context.Context) ([]model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Topic, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeTopicRepo) Delete(_ context.Context, t model.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, row := range r.rows {
		if row.ID == t.ID {
			delete(r.rows, name)
		}
	}
	return nil
}

// fakeSubRepo is an in-memory broker.SubscriptionRepository.
type fakeSubRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]model.Subscription // by sub_key
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{rows: make(map[string]model.Subscription)}
}

func (r *fakeSubRepo) Load(_ context.Context, id int64) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return model.Subscription{}, broker.ErrNoData
}

func (r *fakeSubRepo) GetBySubKey(_ context.Context, subKey string) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[subKey]
	if !ok {
		return model.Subscription{}, broker.ErrNoData
	}
	return row, nil
}

func (r *fakeSubRepo) Save(_ context.Context, s model.Subscription) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		r.nextID++
		s.ID = r.nextID
	}
	r.rows[s.SubKey] = s
	return s, nil
}

func (r *fakeSubRepo) FindByTopic(_ context.Context, topicName string) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, row := range r.rows {
		if row.TopicName == topicName {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) FindAllActive(_ context.Context) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, row := range r.rows {
		if row.IsActive {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeSubRepo) Delete(_ context.Context, s model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subKey, row := range r.rows {
		if row.ID == s.ID {
			delete(r.rows, subKey)
		}
	}
	return nil
}

func newPersistentControl(t *testing.T) (*broker.ControlHandler, *broker.Registry, *fakeTopicRepo, *fakeSubRepo) {
	t.Helper()

	handler, registry, _ := newTestControl(t)
	topics := newFakeTopicRepo()
	subs := newFakeSubRepo()
	handler.SetRepositories(topics, subs)
	return handler, registry, topics, subs
}

func TestControlHandler_CreateSubscription_AppliesTransportConfig(t *testing.T) {
	handler, registry, _ := newTestControl(t)

	require.NoError(t, handler.Apply(context.Background(), broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
		CallbackURL:  "http://billing.local/hooks",
		HTTPMethod:   "PUT",
		ContentType:  "application/json",
	}))

	// The config arrives with the command, so the delivery task never sees
	// a subscription without its callback URL.
	sub, ok := registry.FindSubscription("orders", "billing")
	require.True(t, ok)
	assert.Equal(t, "http://billing.local/hooks", sub.CallbackURL)
	assert.Equal(t, "PUT", sub.HTTPMethod)
	assert.Equal(t, "application/json", sub.ContentType)
}

func TestControlHandler_PersistsSubscriptionLifecycle(t *testing.T) {
	handler, registry, topics, subs := newPersistentControl(t)
	ctx := context.Background()

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
		CallbackURL:  "http://billing.local/hooks",
	}))

	sub, ok := registry.FindSubscription("orders", "billing")
	require.True(t, ok)
	assert.NotZero(t, sub.ID)

	// Both the topic and the subscription reach the durable catalog, with
	// the transport config intact, so a restart can rebuild the registry.
	_, err := topics.GetByName(ctx, "orders")
	require.NoError(t, err)
	saved, err := subs.GetBySubKey(ctx, sub.SubKey)
	require.NoError(t, err)
	assert.Equal(t, "http://billing.local/hooks", saved.CallbackURL)
	assert.True(t, saved.IsActive)

	// Edits are persisted too.
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:     broker.CmdEditSubscription,
		SubKey:   sub.SubKey,
		Patterns: []string{"orders.*"},
	}))
	saved, err = subs.GetBySubKey(ctx, sub.SubKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.*"}, saved.Patterns)

	inactive := false
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:     broker.CmdEditSubscription,
		SubKey:   sub.SubKey,
		IsActive: &inactive,
	}))
	saved, err = subs.GetBySubKey(ctx, sub.SubKey)
	require.NoError(t, err)
	assert.False(t, saved.IsActive)

	// Deletion removes the durable record.
	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:   broker.CmdDeleteSubscription,
		SubKey: sub.SubKey,
	}))
	_, err = subs.GetBySubKey(ctx, sub.SubKey)
	assert.True(t, broker.IsNoData(err))
}

func TestControlHandler_DeleteTopic_PersistsCascade(t *testing.T) {
	handler, registry, topics, subs := newPersistentControl(t)
	ctx := context.Background()

	for _, endpoint := range []string{"billing", "audit"} {
		require.NoError(t, handler.Apply(ctx, broker.Command{
			Kind:         broker.CmdCreateSubscription,
			TopicName:    "orders",
			EndpointName: endpoint,
			EndpointType: model.EndpointREST,
		}))
	}
	billing, ok := registry.FindSubscription("orders", "billing")
	require.True(t, ok)

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:      broker.CmdDeleteTopic,
		TopicName: "orders",
	}))

	_, err := topics.GetByName(ctx, "orders")
	assert.True(t, broker.IsNoData(err))
	_, err = subs.GetBySubKey(ctx, billing.SubKey)
	assert.True(t, broker.IsNoData(err))
	remaining, err := subs.FindByTopic(ctx, "orders")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestControlHandler_RenameTopic_PersistsNewName(t *testing.T) {
	handler, registry, topics, subs := newPersistentControl(t)
	ctx := context.Background()

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdCreateSubscription,
		TopicName:    "orders",
		EndpointName: "billing",
		EndpointType: model.EndpointREST,
	}))
	sub, ok := registry.FindSubscription("orders", "billing")
	require.True(t, ok)

	require.NoError(t, handler.Apply(ctx, broker.Command{
		Kind:         broker.CmdRenameTopic,
		TopicName:    "orders",
		NewTopicName: "orders.v2",
	}))

	_, err := topics.GetByName(ctx, "orders")
	assert.True(t, broker.IsNoData(err))
	_, err = topics.GetByName(ctx, "orders.v2")
	require.NoError(t, err)

	saved, err := subs.GetBySubKey(ctx, sub.SubKey)
	require.NoError(t, err)
	assert.Equal(t, "orders.v2", saved.TopicName)
	assert.Equal(t, []string{"orders.v2"}, saved.Patterns)
}

func TestControlHandler_UnknownCommand(t *testing.T) {
	handler, _, _ := newTestControl(t)

	err := handler.Apply(context.Background(), broker.Command{Kind: "explode"})
	require.Error(t, err)
}

func TestControlHandler_MissingFields(t *testing.T) {
	handler, _, _ := newTestControl(t)
	ctx := context.Background()

	for _, cmd := range []broker.Command{
		{Kind: broker.CmdCreateTopic},
		{Kind: broker.CmdDeleteTopic},
		{Kind: broker.CmdRenameTopic, TopicName: "orders"},
		{Kind: broker.CmdCreateSubscription, TopicName: "orders"},
		{Kind: broker.CmdEditSubscription},
		{Kind: broker.CmdDeleteSubscription},
	} {
		assert.Error(t, handler.Apply(ctx, cmd), "kind=%s", cmd.Kind)
	}
}
