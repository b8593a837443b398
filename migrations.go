package broker

import "embed"

// MigrationFiles contains all SQL migration files embedded in the binary.
// Apply them with your preferred migration tool (goose, golang-migrate,
// atlas, ...), for example:
//
//	goose.SetBaseFS(broker.MigrationFiles)
//	if err := goose.Up(db, "migrations"); err != nil {
//	    log.Fatal(err)
//	}
//
//go:embed migrations/*.sql
var MigrationFiles embed.FS
