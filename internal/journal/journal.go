// Package journal provides a SQLite-backed durable mirror of engine state.
//
// The journal implements engine.Journal. Every store mutation and ownership
// edge is written in the same call that applies it, so the database always
// holds:
//   - manifests: the current manifest of every stored object
//   - owners: the current ownership edges
//   - changes: an append-only log of every mutation, ordered by seq
//
// Restore replays manifests and edges into a running engine, which lets a
// process pick up where the previous one stopped.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single connection: SQLite allows one writer at a time
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/steady/internal/canonical"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/ownership"
	"github.com/roach88/steady/pkg/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on changes(kind, name)
// 2 - owners keyed by (owned, owner): several owners per object
const currentSchemaVersion = 2

// Change names stored in the changes table for ownership edges.
const (
	ChangeOwn    = "own"
	ChangeDisown = "disown"
)

// Journal is the SQLite mirror. It is safe for concurrent use.
type Journal struct {
	db     *sql.DB
	clock  Clock
	logger *slog.Logger

	// restoring holds the objects Restore is re-applying. Their mutations are
	// already in the change log and are not appended again; mutations of any
	// other object during a restore are.
	mu        sync.Mutex
	restoring map[object.Ref]int
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the journal's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = l
	}
}

// WithClock overrides the sequence clock. Default: a SeqClock resuming
// after the highest recorded seq.
func WithClock(c Clock) Option {
	return func(j *Journal) {
		j.clock = c
	}
}

// Open creates or opens the journal at path. Applies required pragmas and
// migrations automatically; opening an existing journal is idempotent.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db, logger: slog.Default(), restoring: make(map[object.Ref]int)}
	for _, opt := range opts {
		opt(j)
	}

	if j.clock == nil {
		var last int64
		if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM changes").Scan(&last); err != nil {
			db.Close()
			return nil, fmt.Errorf("read last seq: %w", err)
		}
		j.clock = NewSeqClock(last)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record implements store.Journal. It is called under the store's writer
// lock, before the mutation is applied.
func (j *Journal) Record(m store.Mutation) error {
	ctx := context.Background()
	seq := j.clock.Next()

	var digest string
	if m.Change != store.Delete {
		data, err := canonical.Marshal(m.Manifest)
		if err != nil {
			return fmt.Errorf("record %s %s/%s: %w", m.Change, m.Kind, m.Name, err)
		}
		digest, err = canonical.Hash(canonical.DomainManifest, m.Manifest)
		if err != nil {
			return fmt.Errorf("record %s %s/%s: %w", m.Change, m.Kind, m.Name, err)
		}

		return j.tx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO manifests (kind, name, manifest, digest, seq)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(kind, name) DO UPDATE SET
					manifest = excluded.manifest,
					digest = excluded.digest,
					seq = excluded.seq
			`, string(m.Kind), m.Name, string(data), digest, seq); err != nil {
				return fmt.Errorf("upsert manifest: %w", err)
			}
			return j.appendChange(ctx, tx, seq, string(m.Kind), m.Name, m.Change.String(), m.Patch, "", digest)
		})
	}

	return j.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM manifests WHERE kind = ? AND name = ?
		`, string(m.Kind), m.Name); err != nil {
			return fmt.Errorf("delete manifest: %w", err)
		}
		return j.appendChange(ctx, tx, seq, string(m.Kind), m.Name, m.Change.String(), false, "", "")
	})
}

// RecordOwn implements engine.Journal.
func (j *Journal) RecordOwn(edge ownership.Edge) error {
	ctx := context.Background()
	seq := j.clock.Next()

	return j.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO owners (owned_kind, owned_name, owner_kind, owner_name, seq)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(owned_kind, owned_name, owner_kind, owner_name) DO UPDATE SET
				seq = excluded.seq
		`, string(edge.Owned.Kind), edge.Owned.Name, string(edge.Owner.Kind), edge.Owner.Name, seq); err != nil {
			return fmt.Errorf("record own: %w", err)
		}
		return j.appendChange(ctx, tx, seq, string(edge.Owned.Kind), edge.Owned.Name, ChangeOwn, false, edge.Owner.String(), "")
	})
}

// RecordDisown implements engine.Journal.
func (j *Journal) RecordDisown(edge ownership.Edge) error {
	ctx := context.Background()
	seq := j.clock.Next()

	return j.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM owners
			WHERE owned_kind = ? AND owned_name = ? AND owner_kind = ? AND owner_name = ?
		`, string(edge.Owned.Kind), edge.Owned.Name, string(edge.Owner.Kind), edge.Owner.Name); err != nil {
			return fmt.Errorf("record disown: %w", err)
		}
		return j.appendChange(ctx, tx, seq, string(edge.Owned.Kind), edge.Owned.Name, ChangeDisown, false, edge.Owner.String(), "")
	})
}

func (j *Journal) appendChange(ctx context.Context, tx *sql.Tx, seq int64, kind, name, change string, patch bool, owner, digest string) error {
	if j.isRestoring(object.Ref{Kind: object.Kind(kind), Name: name}) {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO changes (seq, kind, name, change, patch, owner, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, seq, kind, name, change, patch, owner, digest); err != nil {
		return fmt.Errorf("append change: %w", err)
	}
	return nil
}

func (j *Journal) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the change log by object for `steady journal --object`.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_changes_object
		ON changes(kind, name, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 rebuilds owners with the (owned, owner) primary key. Existing
// single-owner rows carry over unchanged.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	stmts := []string{
		`CREATE TABLE owners_v2 (
			owned_kind TEXT    NOT NULL,
			owned_name TEXT    NOT NULL,
			owner_kind TEXT    NOT NULL,
			owner_name TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			PRIMARY KEY (owned_kind, owned_name, owner_kind, owner_name)
		)`,
		`INSERT INTO owners_v2 (owned_kind, owned_name, owner_kind, owner_name, seq)
			SELECT owned_kind, owned_name, owner_kind, owner_name, seq FROM owners`,
		`DROP TABLE owners`,
		`ALTER TABLE owners_v2 RENAME TO owners`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// holdChanges stops change-log rows for ref until the matching
// releaseChanges. Calls nest.
func (j *Journal) holdChanges(ref object.Ref) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.restoring[ref]++
}

func (j *Journal) releaseChanges(ref object.Ref) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.restoring[ref] <= 1 {
		delete(j.restoring, ref)
		return
	}
	j.restoring[ref]--
}

func (j *Journal) isRestoring(ref object.Ref) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.restoring[ref] > 0
}
