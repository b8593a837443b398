// Package model contains the domain models of the broker: topics, subscriptions,
// messages, permission entries and the per-task delivery list.
package model

// tablePrefix is prepended to every table name. Kept in sync with the
// default prefix used by the relica adapters and the embedded migrations.
const tablePrefix = "broker_"

// MaxPriority is the highest message priority. Priorities range 0..9
// and higher values are delivered first.
const MaxPriority = 9

// DefaultPriority is assigned when the publisher does not supply one.
const DefaultPriority = 5
