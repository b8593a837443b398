package relica

import (
	"database/sql"

	"github.com/coregx/broker"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Store        broker.MessageStore
	Topic        broker.TopicRepository
	Subscription broker.SubscriptionRepository
	Permission   broker.PermissionRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "broker_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Store:        NewMessageStore(db, driverName),
		Topic:        NewTopicRepository(db, driverName),
		Subscription: NewSubscriptionRepository(db, driverName),
		Permission:   NewPermissionRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Store:        NewMessageStoreWithPrefix(db, driverName, prefix),
		Topic:        NewTopicRepositoryWithPrefix(db, driverName, prefix),
		Subscription: NewSubscriptionRepositoryWithPrefix(db, driverName, prefix),
		Permission:   NewPermissionRepositoryWithPrefix(db, driverName, prefix),
	}
}
