package relica

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/coregx/broker"
)

// MySQL error numbers for deadlock victims and lock wait timeouts.
const (
	mysqlErrDeadlock        = 1213
	mysqlErrLockWaitTimeout = 1205
)

// PostgreSQL SQLSTATE codes for deadlocks and lock-not-available.
const (
	pgDeadlockDetected = "40P01"
	pgLockNotAvailable = "55P03"
)

// isTransientDeadlock classifies driver errors that indicate a transient
// lock conflict the caller should simply retry. Everything else, including
// constraint violations, must propagate.
func isTransientDeadlock(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDeadlock || mysqlErr.Number == mysqlErrLockWaitTimeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgDeadlockDetected || string(pqErr.Code) == pgLockNotAvailable
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	// Some drivers flatten errors to strings before they reach us.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "database is locked")
}

// wrapStoreError converts a driver error into a coded broker error,
// classifying transient deadlocks so retry.DeadlockPolicy can recognize them.
func wrapStoreError(message string, err error) error {
	if isTransientDeadlock(err) {
		return broker.NewErrorWithCause(broker.ErrCodeDeadlock, message, err)
	}
	return broker.NewErrorWithCause(broker.ErrCodeDatabase, message, err)
}
