// Package store provides the durable state behind the notification engine:
// Postgres repositories for campaign state, subscriber state, and the
// delivery queue, and a DynamoDB-backed device token registry.
//
// All SQL is hand-written. Counter updates are single-statement increments
// so concurrent drain passes cannot lose updates.
package store

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and configures the connection pool.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	return db, nil
}
