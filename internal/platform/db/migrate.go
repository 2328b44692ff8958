package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLock is the advisory lock key held while the migrations table is
// read or written.
const migrationLock = 0x5e7e17

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one versioned SQL file, named "<version>_<name>.sql".
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus pairs a known migration with the time it was applied.
type MigrationStatus struct {
	Version   int
	Name      string
	AppliedAt *time.Time
}

// Applied reports whether the migration has been recorded.
func (s MigrationStatus) Applied() bool { return s.AppliedAt != nil }

// Migrator applies the SQL files found at the root of an fs.FS.
type Migrator struct {
	pool  *pgxpool.Pool
	files fs.FS
}

func NewMigrator(pool *pgxpool.Pool, files fs.FS) *Migrator {
	return &Migrator{pool: pool, files: files}
}

// LoadMigrations returns the .sql files sorted by version. Files without a
// numeric "<version>_" prefix are skipped.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migs []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, ok := parseVersion(name)
		if !ok {
			continue
		}
		content, err := fs.ReadFile(m.files, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migs = append(migs, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

func parseVersion(name string) (int, bool) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	return v, err == nil
}

// Up applies every pending migration, each in its own transaction, and
// returns how many were applied. Concurrent runs are serialized by an
// advisory lock, so a file is never applied twice.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	migs, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migs {
		applied, err := m.apply(ctx, mig)
		if err != nil {
			return count, fmt.Errorf("apply migration %s: %w", mig.Name, err)
		}
		if applied {
			count++
		}
	}
	return count, nil
}

// Status lists every known migration with its applied time, if any.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	migs, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	appliedAt := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		appliedAt[v] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(migs))
	for _, mig := range migs {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := appliedAt[mig.Version]; ok {
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		return nil
	})
}

// apply runs mig unless it is already recorded and reports whether it ran.
func (m *Migrator) apply(ctx context.Context, mig Migration) (bool, error) {
	applied := false
	err := m.locked(ctx, func(tx pgx.Tx) error {
		var done bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.Version).Scan(&done); err != nil {
			return fmt.Errorf("check version: %w", err)
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return fmt.Errorf("execute SQL: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// locked runs fn in a transaction holding the migration advisory lock.
func (m *Migrator) locked(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLock)); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
