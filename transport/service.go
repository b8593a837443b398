package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/broker/model"
)

// ServiceHandler consumes one message on behalf of a named internal service.
// A returned error leaves the message unconfirmed for redelivery.
type ServiceHandler func(ctx context.Context, msg model.Message) error

// ServiceRegistry implements broker.ServiceInvoker over a map of named
// in-process handlers. Invoking an unregistered service is a delivery
// failure, not a panic: the message stays queued until the service registers.
type ServiceRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ServiceHandler
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{handlers: make(map[string]ServiceHandler)}
}

// Register binds a handler to a service name, replacing any previous handler.
func (r *ServiceRegistry) Register(serviceName string, h ServiceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[serviceName] = h
}

// Deregister removes the named service.
func (r *ServiceRegistry) Deregister(serviceName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, serviceName)
}

// Invoke calls the named service's handler with the message.
func (r *ServiceRegistry) Invoke(ctx context.Context, serviceName string, msg model.Message) error {
	r.mu.RLock()
	h, ok := r.handlers[serviceName]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler registered for service %q", serviceName)
	}
	return h(ctx, msg)
}
