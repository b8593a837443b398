package broker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coregx/broker/match"
	"github.com/coregx/broker/model"
)

// AccessSource resolves the permission entries of a principal. The publisher
// only reads entries; credential storage and the wider security subsystem own
// them. Any PermissionRepository satisfies it.
type AccessSource interface {
	FindByPrincipal(ctx context.Context, principal string) ([]model.PermissionEntry, error)
}

// TaskWaker nudges delivery tasks after a fan-out. Satisfied by TaskManager.
type TaskWaker interface {
	Wake(subKeys ...string)
}

// Publisher is the publish surface of the broker: it authorizes the caller,
// fans the message out to every matching subscription and wakes their
// delivery tasks.
type Publisher struct {
	registry *Registry
	access   AccessSource
	waker    TaskWaker
	logger   Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherRegistry: the topic/subscription registry
//   - WithAccessSource: the permission entry source
//
// Optional options:
//   - WithTaskWaker: nudges delivery tasks after fan-out
//   - WithPublisherLogger (default: NoopLogger)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{logger: &NoopLogger{}}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithPublisherRegistry)")
	}
	if p.access == nil {
		return nil, NewError(ErrCodeConfiguration, "AccessSource is required (use WithAccessSource)")
	}

	return p, nil
}

// WithPublisherRegistry sets the topic/subscription registry.
func WithPublisherRegistry(registry *Registry) PublisherOption {
	return func(p *Publisher) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		p.registry = registry
		return nil
	}
}

// WithAccessSource sets the permission entry source consulted on publish.
func WithAccessSource(access AccessSource) PublisherOption {
	return func(p *Publisher) error {
		if access == nil {
			return fmt.Errorf("access source cannot be nil")
		}
		p.access = access
		return nil
	}
}

// WithTaskWaker sets the task waker notified after a fan-out.
func WithTaskWaker(waker TaskWaker) PublisherOption {
	return func(p *Publisher) error {
		if waker == nil {
			return fmt.Errorf("waker cannot be nil")
		}
		p.waker = waker
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// PublishRequest represents a request to publish a message to a topic.
type PublishRequest struct {
	TopicName string // Topic to publish to (required)
	Publisher string // Principal publishing the message (required)
	Data      string // Message payload

	CorrelID   string     // Optional correlation ID
	InReplyTo  string     // Optional ID of the message this replies to
	Priority   *int       // Optional priority 0..9; default 5
	ExtPubTime *time.Time // Optional publisher-supplied publication time
	Expiration *time.Time // Optional expiration override
}

// PublishResult represents the outcome of a publish operation.
type PublishResult struct {
	PubMsgID string   // Publisher-visible message ID
	Accepted bool     // False when authorization rejected the publish
	SubKeys  []string // Subscription queues the message was enqueued to
}

// Publish authorizes the request, durably enqueues the message for every
// matching subscription and wakes their delivery tasks.
//
// An authorization failure returns a rejection with no side effects; it is
// distinct from a delivery failure, which can only occur after acceptance.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.TopicName == "" {
		return nil, NewError(ErrCodeValidation, "topic name is required")
	}
	if req.Publisher == "" {
		return nil, NewError(ErrCodeValidation, "publisher identity is required")
	}

	entries, err := p.access.FindByPrincipal(ctx, req.Publisher)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load permission entries", err)
	}

	if !match.Authorize(req.TopicName, entries, model.AccessPublisher) {
		p.logger.Warnf("Publish rejected: topic=%s, publisher=%s", req.TopicName, req.Publisher)
		return &PublishResult{Accepted: false}, ErrNotAuthorized
	}

	priority := model.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	msg := model.NewMessage(req.Data, priority)
	msg.CorrelID = req.CorrelID
	msg.InReplyTo = req.InReplyTo
	if req.ExtPubTime != nil {
		msg.ExtPubTime = sql.NullTime{Time: *req.ExtPubTime, Valid: true}
	}
	if req.Expiration != nil {
		msg.ExpirationTime = *req.Expiration
	}

	subKeys, err := p.registry.PublishFanout(ctx, req.TopicName, msg)
	if err != nil {
		return nil, err
	}

	if p.waker != nil && len(subKeys) > 0 {
		p.waker.Wake(subKeys...)
	}

	return &PublishResult{
		PubMsgID: msg.PubMsgID,
		Accepted: true,
		SubKeys:  subKeys,
	}, nil
}

// CheckSubscribeAccess verifies a principal may subscribe to the topic.
// Fails closed: a principal with no matching entries is denied.
func (p *Publisher) CheckSubscribeAccess(ctx context.Context, topicName, principal string) (bool, error) {
	entries, err := p.access.FindByPrincipal(ctx, principal)
	if err != nil {
		return false, NewErrorWithCause(ErrCodeDatabase, "failed to load permission entries", err)
	}
	return match.Authorize(topicName, entries, model.AccessSubscriber), nil
}
