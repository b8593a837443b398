package broker

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/broker/model"
	"github.com/coregx/broker/retry"
)

// TaskManager supervises the delivery tasks, enforcing at most one live task
// per sub_key. Task creation is an atomic check-and-insert under the manager's
// lock; the lock is never held across a delivery attempt or a store
// round-trip.
type TaskManager struct {
	store        MessageStore
	dispatcher   *Dispatcher
	logger       Logger
	notification NotificationService

	pollInterval time.Duration
	backoff      *retry.Backoff
	deadlock     retry.DeadlockPolicy
	serverName   string

	mu    sync.Mutex
	tasks map[string]*DeliveryTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskManager creates a task manager with the provided options.
//
// Required options:
//   - WithStore: the persistent message store
//   - WithDispatcher: the transport dispatcher
//
// Optional options:
//   - WithLogger (default: NoopLogger)
//   - WithPollInterval (default: 1s)
//   - WithBackoff (default: randomized [10s, 20s])
//   - WithDeadlockPolicy (default: 5ms delay, warn every 50th attempt,
//     IsDeadlock classification)
//   - WithNotifications (default: none)
//   - WithServerName (default: none, no delivery-server ownership recorded)
func NewTaskManager(opts ...Option) (*TaskManager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := &TaskManager{
		logger:       &NoopLogger{},
		pollInterval: retry.DefaultPollInterval,
		backoff:      retry.DefaultBackoff(),
		deadlock:     retry.DefaultDeadlockPolicy(IsDeadlock),
		tasks:        make(map[string]*DeliveryTask),
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			cancel()
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if m.store == nil {
		cancel()
		return nil, NewError(ErrCodeConfiguration, "MessageStore is required (use WithStore)")
	}
	if m.dispatcher == nil {
		cancel()
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required (use WithDispatcher)")
	}

	return m, nil
}

// StartTask starts the delivery task for the subscription. Starting an
// already-running sub_key returns the existing task: there is never more than
// one live task per sub_key.
//
// WebSocket subscriptions get no generic task; their delivery is driven by
// the owning connection.
func (m *TaskManager) StartTask(sub *model.Subscription) *DeliveryTask {
	if sub.EndpointType == model.EndpointWebSocket {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.tasks[sub.SubKey]; ok && existing.State() != TaskStopped {
		return existing
	}

	task := newDeliveryTask(sub, m)
	m.tasks[sub.SubKey] = task

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.claimOwnership(sub.SubKey)
		task.Run(m.ctx)

		m.mu.Lock()
		if m.tasks[sub.SubKey] == task {
			delete(m.tasks, sub.SubKey)
		}
		m.mu.Unlock()
	}()

	return task
}

// claimOwnership records this process as the sub_key's delivery server, so
// control traffic in multi-process deployments can be routed to the task's
// owner. Runs on the task goroutine, off the manager's lock.
func (m *TaskManager) claimOwnership(subKey string) {
	if m.serverName == "" {
		return
	}
	if err := m.store.SetDeliveryServerForSubKey(m.ctx, subKey, m.serverName); err != nil {
		m.logger.Warnf("Failed to record delivery server: sub_key=%s, server=%s: %v",
			subKey, m.serverName, err)
	}
}

// StopTask stops the task owning the sub_key and reports whether one was
// running. The stop is cooperative; the task's loop observes it at its next
// boundary.
func (m *TaskManager) StopTask(subKey string) bool {
	m.mu.Lock()
	task, ok := m.tasks[subKey]
	m.mu.Unlock()

	if !ok {
		return false
	}
	task.Stop()
	return true
}

// Task returns the live task for the sub_key, if any.
func (m *TaskManager) Task(subKey string) (*DeliveryTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[subKey]
	return task, ok
}

// TaskCount returns the number of live tasks.
func (m *TaskManager) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Wake nudges the tasks owning the given sub_keys to poll immediately.
// Called after a publish fan-out. Unknown sub_keys are ignored; their tasks
// pick the messages up on their next scheduled poll.
func (m *TaskManager) Wake(subKeys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, subKey := range subKeys {
		if task, ok := m.tasks[subKey]; ok {
			task.Wake()
		}
	}
}

// Shutdown stops every task and waits for all loops to exit.
func (m *TaskManager) Shutdown() {
	m.mu.Lock()
	for _, task := range m.tasks {
		task.Stop()
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("Task manager stopped")
}
