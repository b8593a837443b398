package broker

import (
	"context"

	"github.com/coregx/broker/model"
)

// NotificationService defines an optional interface for surfacing broker
// events (delivery failures, subscription lifecycle) to alerting systems.
//
// Implementations might send emails, Slack messages, or feed a monitoring
// system.
type NotificationService interface {
	// NotifyDeliveryFailure is called when a delivery attempt fails and the
	// task enters its backoff. Informational; the task keeps retrying.
	NotifyDeliveryFailure(ctx context.Context, subKey string, msg model.Message, err error) error

	// NotifySubscriptionCreated is called when a new subscription is created.
	NotifySubscriptionCreated(ctx context.Context, sub *model.Subscription) error

	// NotifySubscriptionDeleted is called when a subscription is removed and
	// its delivery task stopped.
	NotifySubscriptionDeleted(ctx context.Context, subKey string) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ string, _ model.Message, _ error) error {
	return nil
}

// NotifySubscriptionCreated does nothing.
func (n *NoOpNotificationService) NotifySubscriptionCreated(_ context.Context, _ *model.Subscription) error {
	return nil
}

// NotifySubscriptionDeleted does nothing.
func (n *NoOpNotificationService) NotifySubscriptionDeleted(_ context.Context, _ string) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDeliveryFailure logs the failed attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, subKey string, msg model.Message, err error) error {
	n.logger.Warnf("Delivery failed: sub_key=%s, msg=%s, priority=%d, error=%v",
		subKey, msg.PubMsgID, msg.Priority, err)
	return nil
}

// NotifySubscriptionCreated logs subscription creation.
func (n *LoggingNotificationService) NotifySubscriptionCreated(_ context.Context, sub *model.Subscription) error {
	n.logger.Infof("Subscription created: sub_key=%s, topic=%s, endpoint=%s",
		sub.SubKey, sub.TopicName, sub.EndpointName)
	return nil
}

// NotifySubscriptionDeleted logs subscription removal.
func (n *LoggingNotificationService) NotifySubscriptionDeleted(_ context.Context, subKey string) error {
	n.logger.Infof("Subscription deleted: sub_key=%s", subKey)
	return nil
}
