package relica

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// MessageStore implements broker.MessageStore using Relica.
//
// Rows are the per-subscription message queue of the delivery engine: one row
// per (sub_key, message). Confirmation is a row-level status update, so the
// database arbitrates between multiple broker processes racing on the same
// sub_key.
type MessageStore struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageStore creates a MessageStore with the default table prefix.
func NewMessageStore(sqlDB *sql.DB, driverName string) *MessageStore {
	return NewMessageStoreWithPrefix(sqlDB, driverName, "broker_")
}

// NewMessageStoreWithPrefix creates a MessageStore with a custom table prefix.
func NewMessageStoreWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageStore {
	return &MessageStore{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
	}
}

func (s *MessageStore) tableName() string {
	return s.tablePrefix + "message"
}

func (s *MessageStore) serverTableName() string {
	return s.tablePrefix + "delivery_server"
}

// Enqueue inserts one queue row per message, status INITIALIZED.
func (s *MessageStore) Enqueue(ctx context.Context, msgs ...model.Message) error {
	for i := range msgs {
		m := msgs[i]
		if err := s.db.WithContext(ctx).Model(&m).Table(s.tableName()).Insert(); err != nil {
			return wrapStoreError("failed to enqueue message", err)
		}
	}
	return nil
}

// GetPending returns undelivered messages matching the query, ordered by
// priority DESC, ext_pub_time ASC, pub_time ASC. Expired messages are
// excluded unless the query explicitly includes them (bulk cleanup only).
func (s *MessageStore) GetPending(ctx context.Context, q broker.PendingQuery) ([]model.Message, error) {
	conds := []string{
		"delivery_status = ?",
		"pub_time > ?",
		"pub_time <= ?",
	}
	args := []interface{}{model.StatusInitialized, q.Since, q.MaxPubTime}

	if len(q.SubKeys) > 0 {
		conds = append(conds, "sub_key IN ("+placeholders(len(q.SubKeys))+")")
		args = append(args, toAny(q.SubKeys)...)
	}
	if !q.IncludeExpired {
		conds = append(conds, "expiration_time > ?")
		args = append(args, time.Now())
	}
	if len(q.ExcludeIDs) > 0 {
		conds = append(conds, "id NOT IN ("+placeholders(len(q.ExcludeIDs))+")")
		args = append(args, toAny(q.ExcludeIDs)...)
	}

	var msgs []model.Message

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		Where(strings.Join(conds, " AND "), args...).
		OrderBy("priority DESC, ext_pub_time ASC, pub_time ASC").
		WithContext(ctx).
		All(&msgs)

	if err != nil {
		return nil, wrapStoreError("failed to find pending messages", err)
	}
	if len(msgs) == 0 {
		return nil, broker.ErrNoData
	}

	return msgs, nil
}

// ConfirmDelivered marks the rows DELIVERED with delivery_time = now.
// The update is a single statement: it either applies to every row or, on
// error, to none, so no partial confirmation is ever visible.
func (s *MessageStore) ConfirmDelivered(ctx context.Context, subKey string, messageIDs []int64, now time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}

	args := append([]interface{}{subKey}, toAny(messageIDs)...)

	_, err := s.db.WithContext(ctx).Update(s.tableName()).
		Set(map[string]interface{}{
			"delivery_status": model.StatusDelivered,
			"delivery_time":   now,
		}).
		Where("sub_key = ? AND id IN ("+placeholders(len(messageIDs))+")", args...).
		WithContext(ctx).
		Execute()

	if err != nil {
		return wrapStoreError("failed to confirm delivery", err)
	}
	return nil
}

// GetDeliveryServerForSubKey returns the name of the server currently owning
// the sub_key's delivery task.
func (s *MessageStore) GetDeliveryServerForSubKey(ctx context.Context, subKey string) (string, error) {
	var row deliveryServerRow

	err := s.db.WithContext(ctx).Select("*").
		From(s.serverTableName()).
		Where("sub_key = ?", subKey).
		WithContext(ctx).
		One(&row)

	if errors.Is(err, sql.ErrNoRows) {
		return "", broker.ErrNoData
	}
	if err != nil {
		return "", wrapStoreError("failed to find delivery server", err)
	}

	return row.ServerName, nil
}

// SetDeliveryServerForSubKey records serverName as the owner of the sub_key's
// delivery task, inserting or updating the mapping row.
func (s *MessageStore) SetDeliveryServerForSubKey(ctx context.Context, subKey, serverName string) error {
	now := time.Now()

	_, err := s.GetDeliveryServerForSubKey(ctx, subKey)
	if broker.IsNoData(err) {
		row := deliveryServerRow{SubKey: subKey, ServerName: serverName, UpdatedAt: now}
		if insErr := s.db.WithContext(ctx).Model(&row).Table(s.serverTableName()).Insert(); insErr != nil {
			return wrapStoreError("failed to register delivery server", insErr)
		}
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.db.WithContext(ctx).Update(s.serverTableName()).
		Set(map[string]interface{}{
			"server_name": serverName,
			"updated_at":  now,
		}).
		Where("sub_key = ?", subKey).
		WithContext(ctx).
		Execute()
	if err != nil {
		return wrapStoreError("failed to update delivery server", err)
	}
	return nil
}

// FindExpired returns expired, undelivered rows for bulk cleanup.
func (s *MessageStore) FindExpired(ctx context.Context, now time.Time) ([]model.Message, error) {
	var msgs []model.Message

	err := s.db.WithContext(ctx).Select("*").
		From(s.tableName()).
		Where("expiration_time <= ? AND delivery_status = ?", now, model.StatusInitialized).
		OrderBy("expiration_time ASC").
		WithContext(ctx).
		All(&msgs)

	if err != nil {
		return nil, wrapStoreError("failed to find expired messages", err)
	}
	if len(msgs) == 0 {
		return nil, broker.ErrNoData
	}

	return msgs, nil
}

// Delete permanently removes a queue row. Used by cleanup, never by the
// delivery path.
func (s *MessageStore) Delete(ctx context.Context, m model.Message) error {
	if err := s.db.WithContext(ctx).Model(&m).Table(s.tableName()).Delete(); err != nil {
		return wrapStoreError("failed to delete message", err)
	}
	return nil
}

type deliveryServerRow struct {
	SubKey     string    `db:"sub_key"`
	ServerName string    `db:"server_name"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// placeholders returns n comma-separated "?" markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny[T any](vals []T) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
