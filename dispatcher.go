package broker

import (
	"context"
	"fmt"

	"github.com/coregx/broker/model"
)

// RESTSender delivers a message over the outgoing HTTP connection configured
// on a subscription. Failure is any non-transport-success outcome, including
// non-2xx responses.
type RESTSender interface {
	Send(ctx context.Context, sub *model.Subscription, msg model.Message) error
}

// AMQPSender publishes a message to the outgoing AMQP connection configured on
// a subscription, honoring the subscription's exchange and routing-key
// overrides when present.
type AMQPSender interface {
	Publish(ctx context.Context, sub *model.Subscription, msg model.Message) error
}

// ServiceInvoker invokes an internal service synchronously with the message
// payload.
type ServiceInvoker interface {
	Invoke(ctx context.Context, serviceName string, msg model.Message) error
}

// ErrWebSocketDelivery is returned when the generic dispatcher is invoked for
// a WebSocket subscription. WebSocket delivery is driven by the owning
// connection's own task, never by the per-sub_key loop.
var ErrWebSocketDelivery = NewError(ErrCodeDelivery,
	"websocket delivery is handled by the owning connection, not the dispatcher")

// Dispatcher routes a message to the transport-specific sender for a
// subscription's endpoint type. The endpoint type set is closed; the switch in
// Deliver is exhaustive over it and an unknown value is a configuration error.
type Dispatcher struct {
	rest    RESTSender
	amqp    AMQPSender
	service ServiceInvoker
	logger  Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher) error

// NewDispatcher creates a dispatcher. Senders are optional: a subscription
// whose transport has no sender configured fails delivery with a
// configuration error, leaving the message unconfirmed.
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{logger: &NoopLogger{}}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dispatcher option", err)
		}
	}

	return d, nil
}

// WithRESTSender sets the REST transport sender.
func WithRESTSender(s RESTSender) DispatcherOption {
	return func(d *Dispatcher) error {
		if s == nil {
			return fmt.Errorf("rest sender cannot be nil")
		}
		d.rest = s
		return nil
	}
}

// WithAMQPSender sets the AMQP transport sender.
func WithAMQPSender(s AMQPSender) DispatcherOption {
	return func(d *Dispatcher) error {
		if s == nil {
			return fmt.Errorf("amqp sender cannot be nil")
		}
		d.amqp = s
		return nil
	}
}

// WithServiceInvoker sets the internal service invoker.
func WithServiceInvoker(s ServiceInvoker) DispatcherOption {
	return func(d *Dispatcher) error {
		if s == nil {
			return fmt.Errorf("service invoker cannot be nil")
		}
		d.service = s
		return nil
	}
}

// WithDispatcherLogger sets the logger instance.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// Deliver sends one message to the subscription's endpoint. A returned error
// means the message must stay unconfirmed.
func (d *Dispatcher) Deliver(ctx context.Context, sub *model.Subscription, msg model.Message) error {
	switch sub.EndpointType {
	case model.EndpointREST:
		if d.rest == nil {
			return NewError(ErrCodeConfiguration, "no REST sender configured")
		}
		if err := d.rest.Send(ctx, sub, msg); err != nil {
			return NewErrorWithCause(ErrCodeDelivery, "REST delivery failed", err)
		}
		return nil

	case model.EndpointAMQP:
		if d.amqp == nil {
			return NewError(ErrCodeConfiguration, "no AMQP sender configured")
		}
		if err := d.amqp.Publish(ctx, sub, msg); err != nil {
			return NewErrorWithCause(ErrCodeDelivery, "AMQP delivery failed", err)
		}
		return nil

	case model.EndpointWebSocket:
		return ErrWebSocketDelivery

	case model.EndpointService:
		if d.service == nil {
			return NewError(ErrCodeConfiguration, "no service invoker configured")
		}
		// A message published directly to a service names its own target;
		// a topic-to-service binding derives it from the subscription.
		serviceName := msg.TargetService
		if serviceName == "" {
			serviceName = sub.ServiceName
		}
		if serviceName == "" {
			return NewError(ErrCodeConfiguration,
				fmt.Sprintf("subscription %s has no target service", sub.SubKey))
		}
		if err := d.service.Invoke(ctx, serviceName, msg); err != nil {
			return NewErrorWithCause(ErrCodeDelivery, "service invocation failed", err)
		}
		return nil

	default:
		// Unknown endpoint type is fatal for this subscription only; the
		// message stays unconfirmed for operator intervention.
		d.logger.Errorf("Unknown endpoint type %q for sub_key=%s", sub.EndpointType, sub.SubKey)
		return NewError(ErrCodeConfiguration,
			fmt.Sprintf("unknown endpoint type: %q", sub.EndpointType))
	}
}
