package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA FILES
// Each version is a pair schema/NNNN_name.up.sql and NNNN_name.down.sql.
// ══════════════════════════════════════════════════════════════════════════════

//go:embed schema/*.sql
var schemaFS embed.FS

// migrationLockKey serializes migrations when the bot and the worker start
// at the same time.
const migrationLockKey = 0x6b6d62 // "kmb"

var migrationFile = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one schema version.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

var loadSchema = sync.OnceValues(func() ([]Migration, error) {
	sub, err := fs.Sub(schemaFS, "schema")
	if err != nil {
		return nil, err
	}
	return parseMigrations(sub)
})

// parseMigrations reads every up/down pair in fsys, sorted by version.
// A version without an up file, or with two different names, is an error.
func parseMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]*Migration)
	for _, name := range names {
		m := migrationFile.FindStringSubmatch(path.Base(name))
		if m == nil {
			return nil, fmt.Errorf("%w: unexpected file %s", ErrMigrationFailed, name)
		}
		version, _ := strconv.Atoi(m[1])

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: m[2]}
			byVersion[version] = mig
		}
		if mig.Name != m[2] {
			return nil, fmt.Errorf("%w: version %d has names %q and %q", ErrMigrationFailed, version, mig.Name, m[2])
		}
		if m[3] == "up" {
			mig.UpSQL = string(body)
		} else {
			mig.DownSQL = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL == "" {
			return nil, fmt.Errorf("%w: version %d has no up file", ErrMigrationFailed, mig.Version)
		}
		out = append(out, *mig)
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migrator applies the embedded schema. Every run holds a transaction-level
// advisory lock and is atomic: Postgres DDL is transactional.
type Migrator struct {
	conn *Connection
}

// NewMigrator creates a migrator on conn.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

func (m *Migrator) locked(ctx context.Context, fn func(ctx context.Context, q Querier, all []Migration, applied map[int]time.Time) error) error {
	all, err := loadSchema()
	if err != nil {
		return err
	}

	return m.conn.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn.q(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    INTEGER PRIMARY KEY,
				name       TEXT NOT NULL,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
		if err != nil {
			return fmt.Errorf("read schema_migrations: %w", err)
		}
		applied := make(map[int]time.Time)
		for rows.Next() {
			var (
				v  int
				at time.Time
			)
			if err := rows.Scan(&v, &at); err != nil {
				rows.Close()
				return err
			}
			applied[v] = at
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		return fn(ctx, q, all, applied)
	})
}

// Migrate applies every pending version and returns how many it applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	count := 0
	err := m.locked(ctx, func(ctx context.Context, q Querier, all []Migration, applied map[int]time.Time) error {
		for _, mig := range all {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if _, err := q.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("%w: %04d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Rollback reverts the newest applied version and returns it, or 0 when
// nothing is applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	reverted := 0
	err := m.locked(ctx, func(ctx context.Context, q Querier, all []Migration, applied map[int]time.Time) error {
		if len(applied) == 0 {
			return nil
		}
		last := slices.Max(mapKeys(applied))

		i := slices.IndexFunc(all, func(mig Migration) bool { return mig.Version == last })
		if i < 0 || all[i].DownSQL == "" {
			return fmt.Errorf("%w: no down file for version %d", ErrMigrationFailed, last)
		}
		if _, err := q.Exec(ctx, all[i].DownSQL); err != nil {
			return fmt.Errorf("%w: revert %04d_%s: %v", ErrMigrationFailed, last, all[i].Name, err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, last); err != nil {
			return err
		}
		reverted = last
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reverted, nil
}

// Status lists every embedded version with its apply time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.locked(ctx, func(_ context.Context, _ Querier, all []Migration, applied map[int]time.Time) error {
		out = slices.Clone(all)
		for i := range out {
			if at, ok := applied[out[i].Version]; ok {
				out[i].IsApplied = true
				out[i].AppliedAt = at
			}
		}
		return nil
	})
	return out, err
}

func mapKeys(m map[int]time.Time) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
