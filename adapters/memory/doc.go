// Package memory provides in-memory implementations of the broker storage
// interfaces.
//
// The implementations hold everything in process memory behind a mutex and
// honor the same ordering and error contracts as the SQL-backed adapters.
// They are intended for tests and lightweight single-process deployments,
// not for durable production use: nothing survives a restart.
package memory
