package broker

import (
	"context"
	"time"

	"github.com/coregx/broker/model"
)

// PendingQuery describes one poll of the persistent queue for a set of
// subscription keys.
type PendingQuery struct {
	// SubKeys selects the subscription queues to poll.
	SubKeys []string

	// Since excludes messages published at or before this instant. Each
	// delivery task advances it behind the newest pub_time it has
	// retrieved, trailing by retry.PollOverlap so a row committed to the
	// store after a poll read it is never skipped.
	Since time.Time

	// MaxPubTime is the stable upper bound of the poll: only messages
	// published at or before it are returned, so one poll's result set is
	// not reshuffled by rows stamped while it runs.
	MaxPubTime time.Time

	// ExcludeIDs drops messages already held in the caller's working set.
	ExcludeIDs []int64

	// IncludeExpired also returns expired messages. Used only by bulk
	// cleanup, never by delivery polling.
	IncludeExpired bool
}

// MessageStore is the durable message queue consumed by the delivery engine.
//
// The store is the arbiter of cross-process consistency: several broker
// processes may race to update the same rows, which is why ConfirmDelivered
// implementations are expected to run under retry.DeadlockPolicy and classify
// transient deadlocks with ErrCodeDeadlock.
type MessageStore interface {
	// Enqueue durably stores one queue row per message. Rows are created
	// with delivery status INITIALIZED.
	Enqueue(ctx context.Context, msgs ...model.Message) error

	// GetPending returns undelivered, unexpired messages matching the
	// query, ordered by priority DESC, ext_pub_time ASC, pub_time ASC.
	// Returns ErrNoData when nothing is pending.
	GetPending(ctx context.Context, q PendingQuery) ([]model.Message, error)

	// ConfirmDelivered marks the rows DELIVERED with delivery_time = now.
	// A transient deadlock is retried indefinitely and never surfaced; any
	// other error propagates immediately with no partial confirmation.
	ConfirmDelivered(ctx context.Context, subKey string, messageIDs []int64, now time.Time) error

	// GetDeliveryServerForSubKey returns the name of the server process
	// currently owning the sub_key's delivery task. Used for routing
	// control messages in multi-process deployments, not on the hot path.
	GetDeliveryServerForSubKey(ctx context.Context, subKey string) (string, error)

	// SetDeliveryServerForSubKey records serverName as the current owner of
	// the sub_key's delivery task. The task manager registers ownership
	// when it starts a task.
	SetDeliveryServerForSubKey(ctx context.Context, subKey, serverName string) error
}

// TopicRepository persists the durable topic catalog.
type TopicRepository interface {
	// Load retrieves a topic by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Topic, error)

	// Save creates a new topic (if ID=0) or updates an existing one.
	Save(ctx context.Context, t model.Topic) (model.Topic, error)

	// GetByName retrieves a topic by its unique name.
	// Returns ErrNoData if not found.
	GetByName(ctx context.Context, name string) (model.Topic, error)

	// List retrieves all topics.
	List(ctx context.Context) ([]model.Topic, error)

	// Delete removes a topic.
	Delete(ctx context.Context, t model.Topic) error
}

// SubscriptionRepository persists durable subscription records. The in-memory
// registry is rebuilt from it at startup.
type SubscriptionRepository interface {
	// Load retrieves a subscription by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Subscription, error)

	// GetBySubKey retrieves a subscription by its sub_key.
	// Returns ErrNoData if not found.
	GetBySubKey(ctx context.Context, subKey string) (model.Subscription, error)

	// Save creates a new subscription (if ID=0) or updates an existing one.
	Save(ctx context.Context, s model.Subscription) (model.Subscription, error)

	// FindByTopic retrieves all subscriptions of a topic.
	FindByTopic(ctx context.Context, topicName string) ([]model.Subscription, error)

	// FindAllActive retrieves every active subscription.
	FindAllActive(ctx context.Context) ([]model.Subscription, error)

	// Delete removes a subscription.
	Delete(ctx context.Context, s model.Subscription) error
}

// PermissionRepository reads the per-principal permission entries consumed by
// the authorization decision. The broker never mutates entries through it.
type PermissionRepository interface {
	// FindByPrincipal retrieves all permission entries bound to a
	// principal. Returns an empty slice when the principal has none,
	// which the authorization layer treats as deny.
	FindByPrincipal(ctx context.Context, principal string) ([]model.PermissionEntry, error)
}
