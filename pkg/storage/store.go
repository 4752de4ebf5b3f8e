package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cuemby/truss/pkg/types"
)

// ErrNotFound is returned by GetX/lookup methods when no row matches.
var ErrNotFound = errors.New("storage: not found")

// Store is the State Store: a SQLite database holding every piece of
// durable package-manager state.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL mode and a busy timeout, and runs any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single serializable transaction, committing
// on success and rolling back on any error (including a panic, which
// is re-raised after rollback). Every Transaction Manager operation
// wraps its database mutations in one WithTx call, per spec.md §4.6.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// --- Troves ---

// CreateTrove inserts t and sets t.ID to the assigned row id.
func CreateTrove(tx *sql.Tx, t *types.Trove) error {
	if t.InstalledAt.IsZero() {
		t.InstalledAt = time.Now().UTC()
	}
	res, err := tx.Exec(
		`INSERT INTO troves (name, version, architecture, kind, description, installed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Version, t.Architecture, string(t.Kind), t.Description, t.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create trove %s: %w", t.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create trove %s: id: %w", t.Name, err)
	}
	t.ID = id
	return nil
}

func scanTrove(row interface{ Scan(...any) error }) (*types.Trove, error) {
	var t types.Trove
	var kind string
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &t.Architecture, &kind, &t.Description, &t.InstalledAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Kind = types.TroveKind(kind)
	return &t, nil
}

// GetTrove looks up a trove by id.
func GetTrove(q Queryer, id int64) (*types.Trove, error) {
	row := q.QueryRow(`SELECT id, name, version, architecture, kind, description, installed_at
		FROM troves WHERE id = ?`, id)
	t, err := scanTrove(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("storage: get trove %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get trove %d: %w", id, err)
	}
	return t, nil
}

// ErrAmbiguousName is returned by GetTroveByName when more than one
// installed trove shares a name (spec.md §4.6 Remove step 1: "ambiguous
// name -> refuse"). Today's Install path keeps this from ever
// happening, since it refuses to create a second trove row for a name
// that is already installed, but the check stays independent of that
// invariant in case it is ever relaxed.
var ErrAmbiguousName = errors.New("storage: ambiguous trove name")

// GetTroveByName finds the installed trove with the given name,
// regardless of version/architecture. Installs are expected to keep at
// most one trove per name installed at a time; if that invariant is
// ever violated, this refuses rather than silently picking one.
func GetTroveByName(q Queryer, name string) (*types.Trove, error) {
	var count int
	if err := q.QueryRow(`SELECT COUNT(*) FROM troves WHERE name = ?`, name).Scan(&count); err != nil {
		return nil, fmt.Errorf("storage: get trove %s: %w", name, err)
	}
	if count > 1 {
		return nil, fmt.Errorf("storage: get trove %s: %w", name, ErrAmbiguousName)
	}

	row := q.QueryRow(`SELECT id, name, version, architecture, kind, description, installed_at
		FROM troves WHERE name = ?`, name)
	t, err := scanTrove(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("storage: get trove %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get trove %s: %w", name, err)
	}
	return t, nil
}

// ListTroves returns every installed trove ordered by name.
func ListTroves(q Queryer) ([]*types.Trove, error) {
	rows, err := q.Query(`SELECT id, name, version, architecture, kind, description, installed_at
		FROM troves ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list troves: %w", err)
	}
	defer rows.Close()

	var out []*types.Trove
	for rows.Next() {
		t, err := scanTrove(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list troves: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTrove removes a trove and, via ON DELETE CASCADE, its file
// records, dependencies, flavors and provenance row.
func DeleteTrove(tx *sql.Tx, id int64) error {
	res, err := tx.Exec(`DELETE FROM troves WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete trove %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete trove %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("storage: delete trove %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Changesets ---

// CreateChangeset inserts c in ChangesetPending status and sets c.ID.
func CreateChangeset(tx *sql.Tx, c *types.Changeset) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = types.ChangesetPending
	}
	res, err := tx.Exec(
		`INSERT INTO changesets (description, status, created_at, reversed_by) VALUES (?, ?, ?, ?)`,
		c.Description, string(c.Status), c.CreatedAt, c.ReversedBy,
	)
	if err != nil {
		return fmt.Errorf("storage: create changeset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create changeset: id: %w", err)
	}
	c.ID = id
	return nil
}

// SetChangesetStatus transitions a changeset's lifecycle state.
func SetChangesetStatus(tx *sql.Tx, id int64, status types.ChangesetStatus) error {
	res, err := tx.Exec(`UPDATE changesets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("storage: set changeset %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("storage: set changeset %d status: %w", id, ErrNotFound)
	}
	return nil
}

// SetChangesetReversedBy records which later changeset reversed id.
func SetChangesetReversedBy(tx *sql.Tx, id, reversedBy int64) error {
	_, err := tx.Exec(`UPDATE changesets SET reversed_by = ? WHERE id = ?`, reversedBy, id)
	if err != nil {
		return fmt.Errorf("storage: set changeset %d reversed_by: %w", id, err)
	}
	return nil
}

func scanChangeset(row interface{ Scan(...any) error }) (*types.Changeset, error) {
	var c types.Changeset
	var status string
	if err := row.Scan(&c.ID, &c.Description, &status, &c.CreatedAt, &c.ReversedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Status = types.ChangesetStatus(status)
	return &c, nil
}

// GetChangeset looks up a changeset by id.
func GetChangeset(q Queryer, id int64) (*types.Changeset, error) {
	row := q.QueryRow(`SELECT id, description, status, created_at, reversed_by FROM changesets WHERE id = ?`, id)
	c, err := scanChangeset(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("storage: get changeset %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get changeset %d: %w", id, err)
	}
	return c, nil
}

// ListChangesets returns every changeset, most recent first.
func ListChangesets(q Queryer) ([]*types.Changeset, error) {
	rows, err := q.Query(`SELECT id, description, status, created_at, reversed_by FROM changesets ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list changesets: %w", err)
	}
	defer rows.Close()

	var out []*types.Changeset
	for rows.Next() {
		c, err := scanChangeset(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list changesets: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting read
// helpers run either standalone or as part of an in-flight
// transaction.
type Queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// DB exposes the underlying *sql.DB for read-only callers (e.g. the
// facade's Query/Search paths) that don't need a transaction.
func (s *Store) DB() *sql.DB {
	return s.db
}
