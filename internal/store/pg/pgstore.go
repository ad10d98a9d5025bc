// Package pg backs the store contracts with Postgres so revocations and
// rate counters are shared across gateway instances. This is a separate
// database from the guarded analytics target; the gateway never writes to
// the database it proxies queries against.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"moatgate.org/internal/store"
)

type Store struct {
	db *sql.DB
}

var (
	_ store.RevocationStore = (*Store)(nil)
	_ store.RateStore       = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Used by tests and by callers that manage
// their own pool settings.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// EnsureSchema creates the state tables if they do not exist yet. The DDL is
// idempotent so every instance can run it at startup without coordination.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists revoked_tokens (
			jti text primary key,
			expires_at timestamptz not null
		)`,
		`create index if not exists revoked_tokens_expires_at_idx
			on revoked_tokens (expires_at)`,
		`create table if not exists rate_events (
			key text not null,
			occurred_at timestamptz not null
		)`,
		`create index if not exists rate_events_key_occurred_at_idx
			on rate_events (key, occurred_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure state schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens(jti, expires_at)
		values ($1, now() + $2)
		on conflict (jti) do update
		set expires_at = greatest(revoked_tokens.expires_at, excluded.expires_at)
	`, jti, ttl)
	return err
}

func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from revoked_tokens
			where jti = $1 and expires_at > now()
		)
	`, jti).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// Record inserts one event and counts events inside the window in a single
// transaction, so concurrent writers all observe a consistent count.
func (s *Store) Record(ctx context.Context, key string, window time.Duration) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into rate_events(key, occurred_at) values ($1, now())
	`, key); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		select count(*) from rate_events
		where key = $1 and occurred_at > now() - $2
	`, key, window).Scan(&count); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Prune removes expired revocations and rate events older than window.
// Meant to run periodically from a background goroutine.
func (s *Store) Prune(ctx context.Context, window time.Duration) error {
	if _, err := s.db.ExecContext(ctx, `
		delete from revoked_tokens where expires_at <= now()
	`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		delete from rate_events where occurred_at <= now() - $1
	`, window)
	return err
}
