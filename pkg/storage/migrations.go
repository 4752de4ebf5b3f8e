package storage

import (
	"database/sql"
	"fmt"
)

// migration is one monotonic step applied to bring the schema from
// version N-1 to version N.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,

			`CREATE TABLE IF NOT EXISTS troves (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				name          TEXT NOT NULL,
				version       TEXT NOT NULL,
				architecture  TEXT NOT NULL,
				kind          TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				installed_at  DATETIME NOT NULL,
				UNIQUE(name, version, architecture)
			)`,

			`CREATE TABLE IF NOT EXISTS changesets (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				description  TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL,
				created_at   DATETIME NOT NULL,
				reversed_by  INTEGER REFERENCES changesets(id)
			)`,

			`CREATE TABLE IF NOT EXISTS content_objects (
				sha256       TEXT PRIMARY KEY,
				storage_path TEXT NOT NULL,
				size         INTEGER NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS file_records (
				trove_id    INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
				path        TEXT NOT NULL,
				size        INTEGER NOT NULL,
				mode        INTEGER NOT NULL,
				owner       TEXT NOT NULL DEFAULT '',
				"group"     TEXT NOT NULL DEFAULT '',
				sha256      TEXT NOT NULL DEFAULT '',
				link_target TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (trove_id, path)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_file_records_path ON file_records(path)`,
			`CREATE INDEX IF NOT EXISTS idx_file_records_sha256 ON file_records(sha256)`,

			`CREATE TABLE IF NOT EXISTS file_history (
				changeset_id INTEGER NOT NULL REFERENCES changesets(id) ON DELETE CASCADE,
				path         TEXT NOT NULL,
				operation    TEXT NOT NULL,
				old_hash     TEXT NOT NULL DEFAULT '',
				new_hash     TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (changeset_id, path)
			)`,

			`CREATE TABLE IF NOT EXISTS dependencies (
				trove_id    INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
				name        TEXT NOT NULL,
				kind        TEXT NOT NULL,
				constraint_ TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (trove_id, name, kind)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_dependencies_name ON dependencies(name)`,

			`CREATE TABLE IF NOT EXISTS flavors (
				trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
				key      TEXT NOT NULL,
				value    TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (trove_id, key)
			)`,

			`CREATE TABLE IF NOT EXISTS provenance (
				trove_id   INTEGER PRIMARY KEY REFERENCES troves(id) ON DELETE CASCADE,
				source_url TEXT NOT NULL DEFAULT '',
				branch     TEXT NOT NULL DEFAULT '',
				commit_    TEXT NOT NULL DEFAULT '',
				builder    TEXT NOT NULL DEFAULT '',
				build_host TEXT NOT NULL DEFAULT '',
				vendor     TEXT NOT NULL DEFAULT '',
				license    TEXT NOT NULL DEFAULT ''
			)`,

			`CREATE TABLE IF NOT EXISTS repositories (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				name            TEXT NOT NULL UNIQUE,
				url             TEXT NOT NULL,
				enabled         INTEGER NOT NULL DEFAULT 1,
				priority        INTEGER NOT NULL DEFAULT 0,
				gpg_check       INTEGER NOT NULL DEFAULT 0,
				gpg_key_url     TEXT NOT NULL DEFAULT '',
				metadata_expire INTEGER NOT NULL DEFAULT 0,
				last_sync       DATETIME
			)`,

			`CREATE TABLE IF NOT EXISTS repository_packages (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
				name          TEXT NOT NULL,
				version       TEXT NOT NULL,
				architecture  TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				checksum      TEXT NOT NULL DEFAULT '',
				checksum_type TEXT NOT NULL DEFAULT '',
				size          INTEGER NOT NULL DEFAULT 0,
				download_url  TEXT NOT NULL DEFAULT '',
				metadata_json TEXT NOT NULL DEFAULT '{}',
				UNIQUE(repository_id, name, version, architecture)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_repository_packages_name ON repository_packages(name)`,

			`CREATE TABLE IF NOT EXISTS repository_package_dependencies (
				repository_package_id INTEGER NOT NULL REFERENCES repository_packages(id) ON DELETE CASCADE,
				name                   TEXT NOT NULL,
				kind                   TEXT NOT NULL,
				constraint_            TEXT NOT NULL DEFAULT '',
				description            TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (repository_package_id, name, kind)
			)`,

			`CREATE TABLE IF NOT EXISTS package_deltas (
				id                INTEGER PRIMARY KEY AUTOINCREMENT,
				package_name      TEXT NOT NULL,
				from_version      TEXT NOT NULL,
				to_version        TEXT NOT NULL,
				delta_url         TEXT NOT NULL,
				delta_checksum    TEXT NOT NULL DEFAULT '',
				from_hash         TEXT NOT NULL DEFAULT '',
				to_hash           TEXT NOT NULL DEFAULT '',
				delta_size        INTEGER NOT NULL DEFAULT 0,
				full_size         INTEGER NOT NULL DEFAULT 0,
				compression_ratio REAL NOT NULL DEFAULT 0,
				UNIQUE(package_name, from_version, to_version)
			)`,

			`CREATE TABLE IF NOT EXISTS delta_stats (
				changeset_id   INTEGER PRIMARY KEY REFERENCES changesets(id) ON DELETE CASCADE,
				bytes_saved    INTEGER NOT NULL DEFAULT 0,
				deltas_applied INTEGER NOT NULL DEFAULT 0,
				full_downloads INTEGER NOT NULL DEFAULT 0,
				delta_failures INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
}

// migrate brings db up to the latest schema version, applying any
// migration whose version exceeds the stored one inside its own
// transaction, the way cuemby-warren's bucket bootstrap runs once at
// Open time but generalized to a numbered ladder instead of a single
// idempotent pass.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("storage: bootstrap schema_version: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("storage: begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("storage: migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: migration %d: clear version: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: migration %d: set version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("storage: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("storage: read schema version: %w", err)
	}
	return v, nil
}
