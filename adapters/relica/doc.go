// Package relica provides production-ready implementations of the broker's
// store and repository interfaces using the Relica query builder.
//
// Supports MySQL, PostgreSQL and SQLite. The table prefix defaults to
// "broker_" and can be customized via the WithPrefix constructors.
package relica
