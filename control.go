package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/broker/model"
)

// CommandKind enumerates the control commands the broker accepts out-of-band.
// The set is closed and ControlHandler.Apply switches over it exhaustively.
type CommandKind string

const (
	CmdCreateTopic        CommandKind = "create-topic"
	CmdDeleteTopic        CommandKind = "delete-topic"
	CmdRenameTopic        CommandKind = "rename-topic"
	CmdCreateSubscription CommandKind = "create-subscription"
	CmdEditSubscription   CommandKind = "edit-subscription"
	CmdDeleteSubscription CommandKind = "delete-subscription"
)

// Command is the single tagged control message type. Which fields are
// meaningful depends on Kind; Apply validates them per kind.
type Command struct {
	Kind CommandKind `json:"kind"`

	TopicName    string `json:"topicName,omitempty"`
	NewTopicName string `json:"newTopicName,omitempty"` // rename-topic only

	EndpointName string             `json:"endpointName,omitempty"`
	EndpointType model.EndpointType `json:"endpointType,omitempty"`
	SubKey       string             `json:"subKey,omitempty"` // edit/delete-subscription
	Patterns     []string           `json:"patterns,omitempty"`
	IsActive     *bool              `json:"isActive,omitempty"` // edit-subscription only

	// Transport configuration for create-subscription, applied before the
	// delivery task starts so it never observes a half-configured
	// subscription.
	CallbackURL    string `json:"callbackURL,omitempty"`
	HTTPMethod     string `json:"httpMethod,omitempty"`
	ContentType    string `json:"contentType,omitempty"`
	AMQPExchange   string `json:"amqpExchange,omitempty"`
	AMQPRoutingKey string `json:"amqpRoutingKey,omitempty"`
	ServiceName    string `json:"serviceName,omitempty"`
}

// ControlHandler applies control commands to the registry and keeps the
// delivery tasks in sync: creating an active subscription starts its task,
// deleting or deactivating one stops it. Control commands run off the hot
// publish/deliver path.
//
// When repositories are wired via SetRepositories, every catalog change is
// persisted as well, so the registry rebuilt from the durable records at the
// next startup matches what the commands produced.
type ControlHandler struct {
	registry     *Registry
	tasks        *TaskManager
	logger       Logger
	notification NotificationService

	topics TopicRepository
	subs   SubscriptionRepository
}

// NewControlHandler creates a control handler over the registry and task
// manager.
func NewControlHandler(registry *Registry, tasks *TaskManager, logger Logger) (*ControlHandler, error) {
	if registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required")
	}
	if tasks == nil {
		return nil, NewError(ErrCodeConfiguration, "TaskManager is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}

	return &ControlHandler{
		registry:     registry,
		tasks:        tasks,
		logger:       logger,
		notification: &NoOpNotificationService{},
	}, nil
}

// SetNotifications replaces the notification service (default: none).
func (h *ControlHandler) SetNotifications(service NotificationService) {
	if service != nil {
		h.notification = service
	}
}

// SetRepositories wires the durable topic and subscription catalog. Without
// it the handler manages the in-memory registry only.
func (h *ControlHandler) SetRepositories(topics TopicRepository, subs SubscriptionRepository) {
	h.topics = topics
	h.subs = subs
}

// Apply executes one control command. Every command kind is handled here;
// an unknown kind is a validation error.
func (h *ControlHandler) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CmdCreateTopic:
		if cmd.TopicName == "" {
			return NewError(ErrCodeValidation, "topic name is required")
		}
		h.registry.CreateTopic(cmd.TopicName)
		return h.persistTopic(ctx, cmd.TopicName)

	case CmdDeleteTopic:
		if cmd.TopicName == "" {
			return NewError(ErrCodeValidation, "topic name is required")
		}
		var firstErr error
		for _, subKey := range h.registry.DeleteTopic(cmd.TopicName) {
			h.tasks.StopTask(subKey)
			if err := h.deleteSubscriptionRecord(ctx, subKey); err != nil && firstErr == nil {
				firstErr = err
			}
			_ = h.notification.NotifySubscriptionDeleted(ctx, subKey)
		}
		if err := h.deleteTopicRecord(ctx, cmd.TopicName); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr

	case CmdRenameTopic:
		if cmd.TopicName == "" || cmd.NewTopicName == "" {
			return NewError(ErrCodeValidation, "both topic names are required")
		}
		if !h.registry.RenameTopic(cmd.TopicName, cmd.NewTopicName) {
			return NewError(ErrCodeValidation,
				fmt.Sprintf("cannot rename topic %q to %q", cmd.TopicName, cmd.NewTopicName))
		}
		return h.persistRename(ctx, cmd.TopicName, cmd.NewTopicName)

	case CmdCreateSubscription:
		if cmd.TopicName == "" || cmd.EndpointName == "" {
			return NewError(ErrCodeValidation, "topic and endpoint names are required")
		}
		if _, err := model.ParseEndpointType(string(cmd.EndpointType)); err != nil {
			return NewErrorWithCause(ErrCodeValidation, "invalid endpoint type", err)
		}
		sub, created := h.registry.Subscribe(cmd.TopicName, cmd.EndpointName, cmd.EndpointType, cmd.Patterns...)
		if created {
			// Fill the transport config before the delivery task or a
			// websocket session can observe the subscription.
			h.registry.UpdateSubscription(sub.SubKey, func(s *model.Subscription) {
				s.CallbackURL = cmd.CallbackURL
				s.HTTPMethod = cmd.HTTPMethod
				s.ContentType = cmd.ContentType
				s.AMQPExchange = cmd.AMQPExchange
				s.AMQPRoutingKey = cmd.AMQPRoutingKey
				s.ServiceName = cmd.ServiceName
			})
		}
		if err := h.persistSubscription(ctx, sub); err != nil {
			return err
		}
		h.tasks.StartTask(sub)
		_ = h.notification.NotifySubscriptionCreated(ctx, sub)
		return nil

	case CmdEditSubscription:
		if cmd.SubKey == "" {
			return NewError(ErrCodeValidation, "sub_key is required")
		}
		sub, ok := h.registry.GetSubscription(cmd.SubKey)
		if !ok {
			return ErrNoData
		}
		var started, stopped bool
		h.registry.UpdateSubscription(cmd.SubKey, func(s *model.Subscription) {
			if cmd.Patterns != nil {
				s.SetPatterns(cmd.Patterns)
			}
			if cmd.IsActive != nil {
				if *cmd.IsActive && !s.IsActive {
					s.IsActive = true
					started = true
				} else if !*cmd.IsActive && s.IsActive {
					s.Deactivate()
					stopped = true
				}
			}
		})
		if started {
			h.tasks.StartTask(sub)
		}
		if stopped {
			h.tasks.StopTask(sub.SubKey)
		}
		return h.persistSubscription(ctx, sub)

	case CmdDeleteSubscription:
		if cmd.SubKey == "" {
			return NewError(ErrCodeValidation, "sub_key is required")
		}
		sub, ok := h.registry.GetSubscription(cmd.SubKey)
		if !ok {
			// Absent subscription is not an error; deletion is idempotent.
			return nil
		}
		h.registry.Unsubscribe(sub.TopicName, sub.EndpointName)
		h.tasks.StopTask(sub.SubKey)
		err := h.deleteSubscriptionRecord(ctx, sub.SubKey)
		_ = h.notification.NotifySubscriptionDeleted(ctx, sub.SubKey)
		return err

	default:
		return NewError(ErrCodeValidation, fmt.Sprintf("unknown command kind: %q", cmd.Kind))
	}
}

// persistTopic writes the topic to the durable catalog unless a record with
// that name already exists.
func (h *ControlHandler) persistTopic(ctx context.Context, name string) error {
	if h.topics == nil {
		return nil
	}

	_, err := h.topics.GetByName(ctx, name)
	if err == nil {
		return nil
	}
	if !IsNoData(err) {
		return err
	}

	if _, err := h.topics.Save(ctx, model.Topic{Name: name, CreatedAt: time.Now()}); err != nil {
		h.logger.Errorf("Failed to persist topic %q: %v", name, err)
		return err
	}
	return nil
}

// persistSubscription saves the subscription (and its topic) to the durable
// catalog, backfilling the row ID on first insert.
func (h *ControlHandler) persistSubscription(ctx context.Context, sub *model.Subscription) error {
	if h.subs == nil {
		return nil
	}
	if err := h.persistTopic(ctx, sub.TopicName); err != nil {
		return err
	}

	saved, err := h.subs.Save(ctx, *sub)
	if err != nil {
		h.logger.Errorf("Failed to persist subscription: sub_key=%s: %v", sub.SubKey, err)
		return err
	}
	if sub.ID == 0 {
		h.registry.UpdateSubscription(sub.SubKey, func(s *model.Subscription) { s.ID = saved.ID })
	}
	return nil
}

func (h *ControlHandler) deleteSubscriptionRecord(ctx context.Context, subKey string) error {
	if h.subs == nil {
		return nil
	}

	row, err := h.subs.GetBySubKey(ctx, subKey)
	if IsNoData(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.subs.Delete(ctx, row); err != nil {
		h.logger.Errorf("Failed to delete subscription record: sub_key=%s: %v", subKey, err)
		return err
	}
	return nil
}

func (h *ControlHandler) deleteTopicRecord(ctx context.Context, name string) error {
	if h.topics == nil {
		return nil
	}

	row, err := h.topics.GetByName(ctx, name)
	if IsNoData(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := h.topics.Delete(ctx, row); err != nil {
		h.logger.Errorf("Failed to delete topic record %q: %v", name, err)
		return err
	}
	return nil
}

// persistRename moves the topic record to its new name and re-saves the
// subscriptions whose topic_name and literal patterns followed the rename.
func (h *ControlHandler) persistRename(ctx context.Context, oldName, newName string) error {
	if h.topics != nil {
		row, err := h.topics.GetByName(ctx, oldName)
		switch {
		case IsNoData(err):
		case err != nil:
			return err
		default:
			row.Name = newName
			if _, err := h.topics.Save(ctx, row); err != nil {
				h.logger.Errorf("Failed to persist topic rename %q -> %q: %v", oldName, newName, err)
				return err
			}
		}
	}

	if h.subs == nil {
		return nil
	}
	for _, sub := range h.registry.SubscriptionsOfTopic(newName) {
		if sub.ID == 0 {
			continue
		}
		if _, err := h.subs.Save(ctx, sub); err != nil {
			h.logger.Errorf("Failed to persist renamed subscription: sub_key=%s: %v", sub.SubKey, err)
			return err
		}
	}
	return nil
}
