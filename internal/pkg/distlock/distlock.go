// Package distlock keeps the singleton passes (scheduler, sweep, weekly
// reset) single-flight across worker instances. Redis backs the lock when a
// client is configured; otherwise a Postgres advisory lock on the shared
// database does the job.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces lock keys away from the rest of the Redis keyspace.
const keyPrefix = "trailnotify:lock:"

// Lock guards one named pass. A Lock instance belongs to one goroutine;
// passes wanting the same name take separate instances.
type Lock interface {
	// Acquire is non-blocking: false means another instance owns the pass.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// New returns a lock for the named pass, backed by Redis when a client is
// available and by a PG advisory lock otherwise. The TTL only applies to the
// Redis backend; advisory locks expire with their database session.
func New(redisClient *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	if redisClient != nil {
		return newRedisLock(redisClient, name, ttl)
	}
	return newAdvisoryLock(db, name)
}

// advisoryLock holds pg_try_advisory_lock on a key derived from the pass
// name. Session-scoped: a dropped connection frees the lock, which is the
// crash-safety the Redis TTL provides on the other backend.
type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, name string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(keyPrefix + name))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
