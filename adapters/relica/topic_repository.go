package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// TopicRepository implements broker.TopicRepository using Relica.
type TopicRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopicRepository creates a new TopicRepository with the default table prefix.
func NewTopicRepository(sqlDB *sql.DB, driverName string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "broker_"}
}

// NewTopicRepositoryWithPrefix creates a new TopicRepository with a custom table prefix.
func NewTopicRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopicRepository {
	return &TopicRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopicRepository) tableName() string {
	return r.tablePrefix + "topic"
}

type topicRow struct {
	ID        int64        `db:"id"`
	Name      string       `db:"name"`
	CreatedAt sql.NullTime `db:"created_at"`
}

func (row topicRow) toModel() model.Topic {
	t := model.Topic{
		ID:            row.ID,
		Name:          row.Name,
		Subscriptions: make(map[string]*model.Subscription),
	}
	if row.CreatedAt.Valid {
		t.CreatedAt = row.CreatedAt.Time
	}
	return t
}

// Load retrieves a topic by ID.
func (r *TopicRepository) Load(ctx context.Context, id int64) (model.Topic, error) {
	var row topicRow
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Topic{}, broker.ErrNoData
	}
	if err != nil {
		return model.Topic{}, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to load topic", err)
	}
	return row.toModel(), nil
}

// Save creates or updates a topic.
func (r *TopicRepository) Save(ctx context.Context, m model.Topic) (model.Topic, error) {
	row := topicRow{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: sql.NullTime{Time: m.CreatedAt, Valid: true},
	}

	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Insert(); err != nil {
			return m, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to insert topic", err)
		}
		m.ID = row.ID
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Update(); err != nil {
		return m, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to update topic", err)
	}
	return m, nil
}

// GetByName retrieves a topic by its unique name.
func (r *TopicRepository) GetByName(ctx context.Context, name string) (model.Topic, error) {
	var row topicRow
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("name = ?", name).One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Topic{}, broker.ErrNoData
	}
	if err != nil {
		return model.Topic{}, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to find topic by name", err)
	}
	return row.toModel(), nil
}

// List retrieves all topics.
func (r *TopicRepository) List(ctx context.Context) ([]model.Topic, error) {
	var rows []topicRow
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).OrderBy("name ASC").All(&rows)
	if err != nil {
		return nil, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to list topics", err)
	}

	topics := make([]model.Topic, len(rows))
	for i, row := range rows {
		topics[i] = row.toModel()
	}
	return topics, nil
}

// Delete removes a topic.
func (r *TopicRepository) Delete(ctx context.Context, m model.Topic) error {
	row := topicRow{ID: m.ID}
	if err := r.db.WithContext(ctx).Model(&row).Table(r.tableName()).Delete(); err != nil {
		return broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to delete topic", err)
	}
	return nil
}
