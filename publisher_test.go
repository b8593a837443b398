package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	broker "github.com/coregx/broker"
	"github.com/coregx/broker/adapters/memory"
	"github.com/coregx/broker/model"
)

type wakeRecorder struct {
	woken []string
}

func (w *wakeRecorder) Wake(subKeys ...string) {
	w.woken = append(w.woken, subKeys...)
}

func newTestPublisher(t *testing.T) (*broker.Publisher, *broker.Registry, *memory.PermissionSource, *wakeRecorder) {
	t.Helper()

	store := memory.NewMessageStore()
	registry, err := broker.NewRegistry(store, nil)
	require.NoError(t, err)

	access := memory.NewPermissionSource()
	waker := &wakeRecorder{}

	publisher, err := broker.NewPublisher(
		broker.WithPublisherRegistry(registry),
		broker.WithAccessSource(access),
		broker.WithTaskWaker(waker),
	)
	require.NoError(t, err)

	return publisher, registry, access, waker
}

func TestNewPublisher_RequiresRegistryAndAccess(t *testing.T) {
	_, err := broker.NewPublisher()
	require.Error(t, err)

	store := memory.NewMessageStore()
	registry, err := broker.NewRegistry(store, nil)
	require.NoError(t, err)

	_, err = broker.NewPublisher(broker.WithPublisherRegistry(registry))
	require.Error(t, err)
}

func TestPublisher_Publish(t *testing.T) {
	publisher, registry, access, waker := newTestPublisher(t)

	sub, _ := registry.Subscribe("orders", "billing", model.EndpointREST)
	access.Grant("order-service", "orders", model.AccessPublisher)

	result, err := publisher.Publish(context.Background(), broker.PublishRequest{
		TopicName: "orders",
		Publisher: "order-service",
		Data:      `{"orderID": 1}`,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.NotEmpty(t, result.PubMsgID)
	assert.Equal(t, []string{sub.SubKey}, result.SubKeys)
	assert.Equal(t, []string{sub.SubKey}, waker.woken)
}

func TestPublisher_Publish_Unauthorized(t *testing.T) {
	publisher, registry, access, waker := newTestPublisher(t)

	registry.Subscribe("orders", "billing", model.EndpointREST)

	tests := []struct {
		name  string
		grant func()
	}{
		{
			name:  "no entries at all",
			grant: func() {},
		},
		{
			name: "subscriber-only grant",
			grant: func() {
				access.Grant("order-service", "orders", model.AccessSubscriber)
			},
		},
		{
			name: "wildcard grant overridden by exact subscriber-only entry",
			grant: func() {
				access.Grant("order-service", "orders", model.AccessSubscriber)
				access.Grant("order-service", "**", model.AccessPublisher)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access.Revoke("order-service")
			tt.grant()

			result, err := publisher.Publish(context.Background(), broker.PublishRequest{
				TopicName: "orders",
				Publisher: "order-service",
				Data:      "x",
			})
			require.Error(t, err)
			require.NotNil(t, result)
			assert.False(t, result.Accepted)
			assert.Empty(t, waker.woken)
		})
	}
}

func TestPublisher_Publish_WildcardGrant(t *testing.T) {
	publisher, registry, access, _ := newTestPublisher(t)

	registry.Subscribe("orders.created", "billing", model.EndpointREST)
	access.Grant("order-service", "orders.*", model.AccessPublisherSubscriber)

	result, err := publisher.Publish(context.Background(), broker.PublishRequest{
		TopicName: "orders.created",
		Publisher: "order-service",
		Data:      "x",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestPublisher_Publish_Validation(t *testing.T) {
	publisher, _, _, _ := newTestPublisher(t)

	_, err := publisher.Publish(context.Background(), broker.PublishRequest{Publisher: "p"})
	require.Error(t, err)

	_, err = publisher.Publish(context.Background(), broker.PublishRequest{TopicName: "orders"})
	require.Error(t, err)
}

func TestPublisher_Publish_OptionalFields(t *testing.T) {
	publisher, registry, access, _ := newTestPublisher(t)

	sub, _ := registry.Subscribe("orders", "billing", model.EndpointREST)
	access.Grant("order-service", "orders", model.AccessPublisher)

	priority := 9
	extPubTime := time.Now().Add(-time.Hour)
	result, err := publisher.Publish(context.Background(), broker.PublishRequest{
		TopicName:  "orders",
		Publisher:  "order-service",
		Data:       "x",
		CorrelID:   "corr-1",
		Priority:   &priority,
		ExtPubTime: &extPubTime,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	assert.Equal(t, []string{sub.SubKey}, result.SubKeys)
}

func TestPublisher_CheckSubscribeAccess(t *testing.T) {
	publisher, _, access, _ := newTestPublisher(t)

	access.Grant("dashboard", "metrics.**", model.AccessSubscriber)

	allowed, err := publisher.CheckSubscribeAccess(context.Background(), "metrics.cpu.load", "dashboard")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = publisher.CheckSubscribeAccess(context.Background(), "orders", "dashboard")
	require.NoError(t, err)
	assert.False(t, allowed)
}
