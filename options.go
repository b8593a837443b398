package broker

import (
	"fmt"
	"time"

	"github.com/coregx/broker/retry"
)

// Option is a function that configures a TaskManager.
//
// Example:
//
//	manager, err := broker.NewTaskManager(
//	    broker.WithStore(store),
//	    broker.WithDispatcher(dispatcher),
//	    broker.WithLogger(logger),
//	)
type Option func(*TaskManager) error

// WithStore sets the persistent message store the delivery tasks poll and
// confirm against. This is a required option.
func WithStore(store MessageStore) Option {
	return func(m *TaskManager) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		m.store = store
		return nil
	}
}

// WithDispatcher sets the transport dispatcher. This is a required option.
func WithDispatcher(d *Dispatcher) Option {
	return func(m *TaskManager) error {
		if d == nil {
			return fmt.Errorf("dispatcher cannot be nil")
		}
		m.dispatcher = d
		return nil
	}
}

// WithLogger sets the logger instance shared by the manager and its tasks.
func WithLogger(logger Logger) Option {
	return func(m *TaskManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithPollInterval sets the idle sleep between store polls when a
// subscription has no pending work. Default: 1s.
func WithPollInterval(interval time.Duration) Option {
	return func(m *TaskManager) error {
		if interval <= 0 {
			return fmt.Errorf("poll interval must be > 0, got %v", interval)
		}
		m.pollInterval = interval
		return nil
	}
}

// WithBackoff sets the randomized backoff applied after a failed delivery
// pass. Default: [10s, 20s].
func WithBackoff(b *retry.Backoff) Option {
	return func(m *TaskManager) error {
		if b == nil {
			return fmt.Errorf("backoff cannot be nil")
		}
		m.backoff = b
		return nil
	}
}

// WithDeadlockPolicy sets the retry policy wrapped around store
// confirmations. Default: retry.DefaultDeadlockPolicy with the broker's
// deadlock classification.
func WithDeadlockPolicy(p retry.DeadlockPolicy) Option {
	return func(m *TaskManager) error {
		m.deadlock = p
		return nil
	}
}

// WithServerName sets the name this process registers as the delivery server
// of every sub_key it starts a task for. Without it no ownership is recorded.
func WithServerName(name string) Option {
	return func(m *TaskManager) error {
		if name == "" {
			return fmt.Errorf("server name cannot be empty")
		}
		m.serverName = name
		return nil
	}
}

// WithNotifications sets an optional notification service receiving delivery
// failure callbacks from the tasks.
func WithNotifications(service NotificationService) Option {
	return func(m *TaskManager) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		m.notification = service
		return nil
	}
}
