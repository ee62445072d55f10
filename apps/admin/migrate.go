package main

import (
	"context"
	"database/sql"

	"github.com/samaecole/backend/storage/database"
)

var runMigrationFunc = database.RunMigration // mockable

func migrateWith(db *sql.DB) func(args []string) error {
	return func(args []string) error {
		return runMigrationFunc(context.Background(), db, args[0], args[1:]...)
	}
}
