package transport

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/broker/model"
)

// amqpChannel is the slice of *amqp091.Channel the sender uses. Faked in tests.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender implements broker.AMQPSender on a RabbitMQ channel.
//
// The sender holds one outgoing channel and a default exchange and routing
// key; a subscription's AMQPExchange and AMQPRoutingKey override the defaults
// per delivery. Connection management stays with the caller: on a closed
// channel every publish fails, the delivery tasks back off, and the caller
// swaps in a fresh channel with Reset.
type AMQPSender struct {
	mu         sync.Mutex
	ch         amqpChannel
	exchange   string
	routingKey string
}

// NewAMQPSender wraps an open channel. The exchange and routingKey are the
// defaults used when a subscription configures no override.
func NewAMQPSender(ch *amqp.Channel, exchange, routingKey string) *AMQPSender {
	return &AMQPSender{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Reset swaps in a fresh channel after a connection recovery, closing the old
// one if still open.
func (s *AMQPSender) Reset(ch *amqp.Channel) {
	s.mu.Lock()
	old := s.ch
	s.ch = ch
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
}

// Publish sends the message to the exchange configured on the subscription,
// falling back to the sender's defaults.
func (s *AMQPSender) Publish(ctx context.Context, sub *model.Subscription, msg model.Message) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("amqp channel is not open")
	}

	exchange := sub.AMQPExchange
	if exchange == "" {
		exchange = s.exchange
	}
	routingKey := sub.AMQPRoutingKey
	if routingKey == "" {
		routingKey = s.routingKey
	}

	pub := amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     msg.PubMsgID,
		CorrelationId: msg.CorrelID,
		Timestamp:     msg.PubTime,
		Priority:      uint8(msg.Priority),
		Body:          []byte(msg.Data),
	}

	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, pub); err != nil {
		return fmt.Errorf("amqp publish to exchange %q failed: %w", exchange, err)
	}
	return nil
}
