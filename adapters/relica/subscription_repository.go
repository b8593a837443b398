package relica

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/coregx/relica"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// SubscriptionRepository implements broker.SubscriptionRepository using Relica.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with the default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "broker_"}
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with a custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscription"
}

// subscriptionRow is the flat column mapping; the pattern list is stored as a
// newline-joined text column.
type subscriptionRow struct {
	ID             int64          `db:"id"`
	SubKey         string         `db:"sub_key"`
	TopicName      string         `db:"topic_name"`
	EndpointName   string         `db:"endpoint_name"`
	EndpointID     int64          `db:"endpoint_id"`
	EndpointType   string         `db:"endpoint_type"`
	IsActive       bool           `db:"is_active"`
	Patterns       sql.NullString `db:"patterns"`
	HTTPMethod     sql.NullString `db:"http_method"`
	CallbackURL    sql.NullString `db:"callback_url"`
	ContentType    sql.NullString `db:"content_type"`
	AMQPExchange   sql.NullString `db:"amqp_exchange"`
	AMQPRoutingKey sql.NullString `db:"amqp_routing_key"`
	ServiceName    sql.NullString `db:"service_name"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	DeletedAt      sql.NullTime   `db:"deleted_at"`
}

func toRow(s model.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:             s.ID,
		SubKey:         s.SubKey,
		TopicName:      s.TopicName,
		EndpointName:   s.EndpointName,
		EndpointID:     s.EndpointID,
		EndpointType:   string(s.EndpointType),
		IsActive:       s.IsActive,
		Patterns:       nullStr(strings.Join(s.Patterns, "\n")),
		HTTPMethod:     nullStr(s.HTTPMethod),
		CallbackURL:    nullStr(s.CallbackURL),
		ContentType:    nullStr(s.ContentType),
		AMQPExchange:   nullStr(s.AMQPExchange),
		AMQPRoutingKey: nullStr(s.AMQPRoutingKey),
		ServiceName:    nullStr(s.ServiceName),
		CreatedAt:      sql.NullTime{Time: s.CreatedAt, Valid: true},
		DeletedAt:      s.DeletedAt,
	}
}

func (row subscriptionRow) toModel() model.Subscription {
	s := model.Subscription{
		ID:             row.ID,
		SubKey:         row.SubKey,
		TopicName:      row.TopicName,
		EndpointName:   row.EndpointName,
		EndpointID:     row.EndpointID,
		EndpointType:   model.EndpointType(row.EndpointType),
		IsActive:       row.IsActive,
		HTTPMethod:     row.HTTPMethod.String,
		CallbackURL:    row.CallbackURL.String,
		ContentType:    row.ContentType.String,
		AMQPExchange:   row.AMQPExchange.String,
		AMQPRoutingKey: row.AMQPRoutingKey.String,
		ServiceName:    row.ServiceName.String,
		DeletedAt:      row.DeletedAt,
	}
	if row.CreatedAt.Valid {
		s.CreatedAt = row.CreatedAt.Time
	}
	if row.Patterns.Valid && row.Patterns.String != "" {
		s.Patterns = strings.Split(row.Patterns.String, "\n")
	} else {
		s.Patterns = []string{s.TopicName}
	}
	return s
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(ctx context.Context, id int64) (model.Subscription, error) {
	var row subscriptionRow
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, broker.ErrNoData
	}
	if err != nil {
		return model.Subscription{}, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to load subscription", err)
	}
	return row.toModel(), nil
}

// GetBySubKey retrieves a subscription by its sub_key.
func (r *SubscriptionRepository) GetBySubKey(ctx context.Context, subKey string) (model.Subscription, error) {
	var row subscriptionRow
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("sub_key = ?", subKey).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, broker.ErrNoData
	}
	if err != nil {
		return model.Subscription{}, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to find subscription by sub_key", err)
	}
	return row.toModel(), nil
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	row := toRow(m)

	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
			return m, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to insert subscription", err)
		}
		m.ID = row.ID
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
		return m, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to update subscription", err)
	}
	return m, nil
}

// FindByTopic retrieves all subscriptions of a topic.
func (r *SubscriptionRepository) FindByTopic(ctx context.Context, topicName string) ([]model.Subscription, error) {
	var rows []subscriptionRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("topic_name = ?", topicName).
		OrderBy("created_at ASC").
		All(&rows)
	if err != nil {
		return nil, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to find subscriptions by topic", err)
	}
	return r.toModels(rows), nil
}

// FindAllActive retrieves every active subscription. Used to rebuild the
// in-memory registry at startup.
func (r *SubscriptionRepository) FindAllActive(ctx context.Context) ([]model.Subscription, error) {
	var rows []subscriptionRow
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_active = ?", true).
		OrderBy("created_at ASC").
		All(&rows)
	if err != nil {
		return nil, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to find active subscriptions", err)
	}
	return r.toModels(rows), nil
}

// Delete removes a subscription.
func (r *SubscriptionRepository) Delete(ctx context.Context, m model.Subscription) error {
	row := subscriptionRow{ID: m.ID}
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to delete subscription", err)
	}
	return nil
}

func (r *SubscriptionRepository) toModels(rows []subscriptionRow) []model.Subscription {
	subs := make([]model.Subscription, len(rows))
	for i, row := range rows {
		subs[i] = row.toModel()
	}
	return subs
}
