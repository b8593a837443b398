package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/broker/model"
	"github.com/coregx/broker/retry"
)

// TaskState is the lifecycle state of a delivery task.
type TaskState int32

const (
	// TaskRunning means the task loop is polling and delivering.
	TaskRunning TaskState = iota

	// TaskStopping means Stop was requested; the loop exits at its next
	// boundary. An in-flight delivery attempt is not interrupted.
	TaskStopping

	// TaskStopped means the loop has exited.
	TaskStopped
)

// DeliveryTask is the background loop draining one subscription's queue.
//
// The loop polls the store for pending messages, keeps them in a working set
// ordered by the message total order, attempts delivery strictly in that
// order, and confirms delivered prefixes back to the store. The first failure
// in a pass aborts the remainder of the pass, so a slow or failing message can
// never be overtaken by a later one.
//
// A message is confirmed only strictly after its delivery attempt returned
// success. A crash between the two redelivers the message on recovery; that
// at-least-once window is the documented trade-off of the design.
type DeliveryTask struct {
	subKey string
	sub    *model.Subscription

	store        MessageStore
	dispatcher   *Dispatcher
	logger       Logger
	notification NotificationService

	pollInterval time.Duration
	backoff      *retry.Backoff
	deadlock     retry.DeadlockPolicy

	state        atomic.Int32
	deliveryList *model.DeliveryList
	lastPollTime time.Time

	// wake nudges the loop out of its idle sleep after a publish fan-out.
	wake chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

func newDeliveryTask(sub *model.Subscription, m *TaskManager) *DeliveryTask {
	t := &DeliveryTask{
		subKey:       sub.SubKey,
		sub:          sub,
		store:        m.store,
		dispatcher:   m.dispatcher,
		logger:       m.logger,
		notification: m.notification,
		pollInterval: m.pollInterval,
		backoff:      m.backoff,
		deadlock:     m.deadlock,
		deliveryList: model.NewDeliveryList(),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	t.state.Store(int32(TaskRunning))
	return t
}

// SubKey returns the subscription key this task drains.
func (t *DeliveryTask) SubKey() string {
	return t.subKey
}

// State returns the task's current lifecycle state.
func (t *DeliveryTask) State() TaskState {
	return TaskState(t.state.Load())
}

// Stop requests a cooperative shutdown. Safe to call concurrently with the
// task's own loop and more than once; the loop observes the state at its next
// boundary.
func (t *DeliveryTask) Stop() {
	t.stopOnce.Do(func() {
		t.state.CompareAndSwap(int32(TaskRunning), int32(TaskStopping))
		select {
		case t.wake <- struct{}{}:
		default:
		}
	})
}

// Done is closed once the loop has fully exited.
func (t *DeliveryTask) Done() <-chan struct{} {
	return t.done
}

// Wake nudges the task to poll immediately instead of waiting out its idle
// sleep. Called after a publish fan-out touched this sub_key.
func (t *DeliveryTask) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run executes the delivery loop until Stop is called or the context is
// canceled. It blocks; the task manager runs it on its own goroutine.
func (t *DeliveryTask) Run(ctx context.Context) {
	defer func() {
		t.state.Store(int32(TaskStopped))
		close(t.done)
		t.logger.Infof("Delivery task stopped: sub_key=%s", t.subKey)
	}()

	t.logger.Infof("Delivery task started: sub_key=%s", t.subKey)

	for t.keepRunning(ctx) {
		if t.deliveryList.Len() == 0 {
			if err := t.poll(ctx); err != nil && !IsNoData(err) {
				t.logger.Errorf("Poll failed: sub_key=%s: %v", t.subKey, err)
			}
			if t.deliveryList.Len() == 0 {
				t.sleep(ctx, t.pollInterval)
				continue
			}
		}

		delivered, err := t.deliverPass(ctx)
		if err != nil {
			// Abort the rest of the pass to preserve order, then back off
			// by a randomized interval before resuming where we left off.
			t.logger.Warnf("Delivery pass failed: sub_key=%s, delivered=%d: %v",
				t.subKey, delivered, err)
			t.sleep(ctx, t.backoff.Next())
			continue
		}

		t.sleep(ctx, t.pollInterval)
	}
}

func (t *DeliveryTask) keepRunning(ctx context.Context) bool {
	if t.State() != TaskRunning {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// poll fetches newly pending messages into the working set. The window's
// lower bound trails the newest pub_time actually retrieved by PollOverlap,
// never jumping to the poll's own clock: a row stamped inside the window but
// committed to the store after the read is then caught by a later poll
// instead of being stranded behind the bound. ExcludeIDs, the status filter
// and the working-set dedup keep the overlapping windows duplicate-safe.
func (t *DeliveryTask) poll(ctx context.Context) error {
	msgs, err := t.store.GetPending(ctx, PendingQuery{
		SubKeys:    []string{t.subKey},
		Since:      t.lastPollTime,
		MaxPubTime: time.Now(),
		ExcludeIDs: t.deliveryList.IDs(),
	})
	if err != nil {
		return err
	}

	var newest time.Time
	for _, m := range msgs {
		if m.PubTime.After(newest) {
			newest = m.PubTime
		}
	}
	if bound := newest.Add(-retry.PollOverlap); bound.After(t.lastPollTime) {
		t.lastPollTime = bound
	}

	if inserted := t.deliveryList.Insert(msgs...); inserted > 0 {
		t.logger.Debugf("Polled %d new messages: sub_key=%s", inserted, t.subKey)
	}
	return nil
}

// deliverPass attempts every message of the working set in order, confirming
// the successfully delivered prefix. It returns how many messages were
// delivered and confirmed, and the first delivery error if the pass failed
// part-way.
func (t *DeliveryTask) deliverPass(ctx context.Context) (int, error) {
	var deliveredIDs []int64
	var passErr error

	for _, msg := range t.deliveryList.Snapshot() {
		if t.State() != TaskRunning {
			break
		}

		if err := t.dispatcher.Deliver(ctx, t.sub, msg); err != nil {
			if t.notification != nil {
				_ = t.notification.NotifyDeliveryFailure(ctx, t.subKey, msg, err)
			}
			passErr = err
			break
		}
		deliveredIDs = append(deliveredIDs, msg.ID)
	}

	if len(deliveredIDs) > 0 {
		if err := t.confirm(ctx, deliveredIDs); err != nil {
			// Confirmation failed after successful sends: keep the
			// messages in the working set so a later confirm can settle
			// them. This is the at-least-once window.
			return 0, err
		}
		t.deliveryList.Remove(deliveredIDs...)
		t.logger.Infof("Delivered %d messages: sub_key=%s", len(deliveredIDs), t.subKey)
	}

	return len(deliveredIDs), passErr
}

// confirm marks the delivered prefix in the store, retrying transient
// deadlocks indefinitely. Only a non-deadlock store error propagates.
func (t *DeliveryTask) confirm(ctx context.Context, ids []int64) error {
	return t.deadlock.Run(ctx, t.logger, func(ctx context.Context) error {
		return t.store.ConfirmDelivered(ctx, t.subKey, ids, time.Now())
	})
}

// sleep waits for the duration, a wake nudge, or cancellation, whichever
// comes first.
func (t *DeliveryTask) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-t.wake:
	case <-timer.C:
	}
}
