// Package broker provides the publish/subscribe delivery engine of an
// integration platform: ordered, at-least-once message delivery from topics
// to subscribed endpoints through a durable message store.
//
// # Features
//
//   - Topic subscriptions with exact names and dot-delimited wildcard
//     patterns ("orders.*" matches one segment, "orders.**" any remainder)
//   - Pattern-based authorization with exact-beats-wildcard precedence and
//     additive wildcard grants
//   - One background delivery task per subscription key, draining a durable
//     per-subscription queue in a strict total order
//     (priority desc, publisher timestamp asc, broker timestamp asc)
//   - At-least-once delivery: confirmations land only after a successful
//     send; a crash in between redelivers on recovery
//   - Store confirmations wrapped in an indefinite short-delay retry around
//     transient database deadlocks
//   - Randomized [10s, 20s] backoff after a failed delivery pass, so
//     subscribers failing against the same degraded endpoint do not retry in
//     lockstep
//   - Closed endpoint-type set (REST, AMQP, WebSocket, Service) dispatched
//     exhaustively
//   - Options Pattern for service construction; pluggable Logger and
//     NotificationService
//   - Multi-database support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded migrations for easy database setup
//
// # Quick Start
//
// Apply the embedded migrations, then wire the services:
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/broker?parseTime=true")
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	registry, _ := broker.NewRegistry(repos.Store, logger)
//
//	dispatcher, _ := broker.NewDispatcher(
//	    broker.WithRESTSender(transport.NewHTTPSender(nil)),
//	)
//
//	manager, _ := broker.NewTaskManager(
//	    broker.WithStore(repos.Store),
//	    broker.WithDispatcher(dispatcher),
//	    broker.WithLogger(logger),
//	)
//
//	publisher, _ := broker.NewPublisher(
//	    broker.WithPublisherRegistry(registry),
//	    broker.WithAccessSource(repos.Permission),
//	    broker.WithTaskWaker(manager),
//	)
//
// Publish a message:
//
//	result, err := publisher.Publish(ctx, broker.PublishRequest{
//	    TopicName: "orders.created",
//	    Publisher: "order-service",
//	    Data:      `{"orderId": 42}`,
//	})
//
// # Message Flow
//
//  1. PUBLISH
//     Publisher → authorize against permission entries
//     → Registry resolves matching subscriptions (exact + patterns)
//     → one durable queue row per subscription
//     → wake the affected delivery tasks
//
//  2. DELIVER (background, one task per sub_key)
//     DeliveryTask → poll pending rows into an ordered working set
//     → deliver strictly in order, stop the pass on first failure
//     → confirm the delivered prefix (DELIVERED + delivery_time)
//     → on failure: randomized backoff, then resume without reordering
//
// Ordering is per sub_key only. Two subscribers to the same topic may observe
// messages in different relative order when their downstream endpoints fail
// independently.
//
// # Database Schema
//
// The embedded migrations create the broker_ tables: topic, subscription,
// endpoint, permission, message and delivery_server. The table prefix can be
// customized.
//
// See DESIGN.md and the examples/ directory for more detail.
package broker
