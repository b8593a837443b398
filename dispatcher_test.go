package broker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	broker "github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

func TestDispatcher_Deliver_REST(t *testing.T) {
	sender := newRecordingSender()
	d := restDispatcher(sender)

	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	msg := model.NewMessage("payload", 5)

	require.NoError(t, d.Deliver(context.Background(), &sub, msg))
	require.Len(t, sender.Delivered(), 1)
	assert.Equal(t, msg.PubMsgID, sender.Delivered()[0].PubMsgID)
}

func TestDispatcher_Deliver_FailurePropagates(t *testing.T) {
	sender := newRecordingSender()
	d := restDispatcher(sender)

	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	msg := model.NewMessage("payload", 5)
	sender.FailOnce(msg.PubMsgID)

	err := d.Deliver(context.Background(), &sub, msg)
	require.Error(t, err)
	assert.Empty(t, sender.Delivered())
}

func TestDispatcher_Deliver_WebSocketRejected(t *testing.T) {
	d := restDispatcher(newRecordingSender())

	sub := model.NewSubscription("orders", "live", model.EndpointWebSocket)
	err := d.Deliver(context.Background(), &sub, model.NewMessage("x", 5))

	assert.ErrorIs(t, err, broker.ErrWebSocketDelivery)
}

func TestDispatcher_Deliver_NoSenderConfigured(t *testing.T) {
	d, err := broker.NewDispatcher()
	require.NoError(t, err)

	sub := model.NewSubscription("orders", "billing", model.EndpointREST)
	err = d.Deliver(context.Background(), &sub, model.NewMessage("x", 5))
	require.Error(t, err)
}

func TestDispatcher_Deliver_UnknownType(t *testing.T) {
	d := restDispatcher(newRecordingSender())

	sub := model.NewSubscription("orders", "billing", model.EndpointType("carrier-pigeon"))
	err := d.Deliver(context.Background(), &sub, model.NewMessage("x", 5))
	require.Error(t, err)
}

func TestDispatcher_Deliver_ServiceTarget(t *testing.T) {
	tests := []struct {
		name          string
		msgTarget     string
		subService    string
		expectService bool
	}{
		{
			name:          "message target wins",
			msgTarget:     "inventory",
			subService:    "billing",
			expectService: true,
		},
		{
			name:          "subscription service as fallback",
			subService:    "billing",
			expectService: true,
		},
		{
			name: "no target anywhere fails",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newRecordingSender()
			d, err := broker.NewDispatcher(broker.WithServiceInvoker(sender))
			require.NoError(t, err)

			sub := model.NewSubscription("orders", "svc", model.EndpointService)
			sub.ServiceName = tt.subService

			msg := model.NewMessage("x", 5)
			msg.TargetService = tt.msgTarget

			err = d.Deliver(context.Background(), &sub, msg)
			if tt.expectService {
				require.NoError(t, err)
				assert.Len(t, sender.Delivered(), 1)
			} else {
				require.Error(t, err)
			}
		})
	}
}
