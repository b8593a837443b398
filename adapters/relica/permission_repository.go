package relica

import (
	"context"
	"database/sql"

	"github.com/coregx/relica"

	"github.com/coregx/broker"
	"github.com/coregx/broker/model"
)

// PermissionRepository implements broker.PermissionRepository using Relica.
// It also satisfies broker.AccessSource for the publisher.
type PermissionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewPermissionRepository creates a new PermissionRepository with the default table prefix.
func NewPermissionRepository(sqlDB *sql.DB, driverName string) *PermissionRepository {
	return &PermissionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "broker_"}
}

// NewPermissionRepositoryWithPrefix creates a new PermissionRepository with a custom table prefix.
func NewPermissionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *PermissionRepository {
	return &PermissionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *PermissionRepository) tableName() string {
	return r.tablePrefix + "permission"
}

// FindByPrincipal retrieves all permission entries bound to a principal.
// No entries is not an error: the authorization layer fails closed on an
// empty slice.
func (r *PermissionRepository) FindByPrincipal(ctx context.Context, principal string) ([]model.PermissionEntry, error) {
	var entries []model.PermissionEntry

	err := r.db.WithContext(ctx).Select("id", "pattern", "access_type").
		From(r.tableName()).
		Where("principal = ?", principal).
		OrderBy("id ASC").
		All(&entries)

	if err != nil {
		return nil, broker.NewErrorWithCause(broker.ErrCodeDatabase, "failed to find permission entries", err)
	}
	return entries, nil
}
