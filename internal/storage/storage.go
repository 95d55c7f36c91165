// Package storage is the tenant-scoped CRUD adapter for contacts, jobs,
// consents, departments, workers, routing rules and the audit ledger. It
// wraps a pgxpool.Pool directly (hand-written SQL) rather than a generated
// ORM client — see DESIGN.md for why the teacher's ent layer is dropped —
// using the same connect/migrate/health shape as the teacher's
// pkg/database/client.go, with the raw-SQL query style of the pack's
// transcription-engine database package.
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-constraint violation,
// used to translate DB-level exclusivity constraints (e.g. the booking slot
// index) into apperr conflict kinds instead of raw driver errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

//go:embed migrations
var migrationsFS embed.FS

// Config holds the connection settings for the storage adapter.
type Config struct {
	DSN          string
	MaxConns     int32
	MinConns     int32
	ConnLifetime time.Duration
}

// DB wraps a pgx connection pool and exposes tenant-scoped CRUD across the
// platform's entities (contacts.go, jobs.go, consents.go, departments.go,
// routing_rules.go, audit.go).
type DB struct {
	Pool *pgxpool.Pool
	log  *slog.Logger
}

// Connect opens the pool, pings it, and applies pending migrations.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log := slog.With("component", "storage")
	log.Info("database connected", "dsn", maskDSN(cfg.DSN))

	db := &DB{Pool: pool, log: log}
	if err := db.Migrate(cfg.DSN); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func (db *DB) Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Health pings the pool with a bounded timeout, for the /health endpoint.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// Close releases the pool.
func (db *DB) Close() {
	db.log.Info("closing database pool")
	db.Pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
