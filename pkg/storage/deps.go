package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuemby/truss/pkg/types"
)

// PutDependency inserts or replaces a (trove, name, kind) edge.
func PutDependency(tx *sql.Tx, d types.Dependency) error {
	_, err := tx.Exec(
		`INSERT INTO dependencies (trove_id, name, kind, constraint_, description)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(trove_id, name, kind) DO UPDATE SET
		   constraint_ = excluded.constraint_, description = excluded.description`,
		d.TroveID, d.Name, string(d.Kind), d.Constraint, d.Description,
	)
	if err != nil {
		return fmt.Errorf("storage: put dependency %d->%s: %w", d.TroveID, d.Name, err)
	}
	return nil
}

// ListDependencies returns every dependency edge owned by troveID.
func ListDependencies(q Queryer, troveID int64) ([]types.Dependency, error) {
	rows, err := q.Query(`SELECT trove_id, name, kind, constraint_, description
		FROM dependencies WHERE trove_id = ? ORDER BY name`, troveID)
	if err != nil {
		return nil, fmt.Errorf("storage: list dependencies for trove %d: %w", troveID, err)
	}
	defer rows.Close()

	var out []types.Dependency
	for rows.Next() {
		var d types.Dependency
		var kind string
		if err := rows.Scan(&d.TroveID, &d.Name, &kind, &d.Constraint, &d.Description); err != nil {
			return nil, fmt.Errorf("storage: list dependencies for trove %d: %w", troveID, err)
		}
		d.Kind = types.DependencyKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDependents returns every installed trove that depends on name
// through a non-optional edge (optional dependencies are not counted),
// the reverse-dependency query behind the facade's RDepends.
func ListDependents(q Queryer, name string) ([]*types.Trove, error) {
	rows, err := q.Query(`
		SELECT t.id, t.name, t.version, t.architecture, t.kind, t.description, t.installed_at
		FROM troves t
		JOIN dependencies d ON d.trove_id = t.id
		WHERE d.name = ? AND d.kind != ?
		ORDER BY t.name`, name, string(types.DependencyOptional))
	if err != nil {
		return nil, fmt.Errorf("storage: list dependents of %s: %w", name, err)
	}
	defer rows.Close()

	var out []*types.Trove
	for rows.Next() {
		t, err := scanTrove(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list dependents of %s: %w", name, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutFlavor inserts or replaces a (trove, key) attribute.
func PutFlavor(tx *sql.Tx, f types.Flavor) error {
	_, err := tx.Exec(
		`INSERT INTO flavors (trove_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(trove_id, key) DO UPDATE SET value = excluded.value`,
		f.TroveID, f.Key, f.Value,
	)
	if err != nil {
		return fmt.Errorf("storage: put flavor %s: %w", f.Key, err)
	}
	return nil
}

// ListFlavors returns every flavor attribute owned by troveID.
func ListFlavors(q Queryer, troveID int64) ([]types.Flavor, error) {
	rows, err := q.Query(`SELECT trove_id, key, value FROM flavors WHERE trove_id = ? ORDER BY key`, troveID)
	if err != nil {
		return nil, fmt.Errorf("storage: list flavors for trove %d: %w", troveID, err)
	}
	defer rows.Close()

	var out []types.Flavor
	for rows.Next() {
		var f types.Flavor
		if err := rows.Scan(&f.TroveID, &f.Key, &f.Value); err != nil {
			return nil, fmt.Errorf("storage: list flavors for trove %d: %w", troveID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PutProvenance inserts or replaces the single provenance row for a trove.
func PutProvenance(tx *sql.Tx, p types.Provenance) error {
	_, err := tx.Exec(
		`INSERT INTO provenance (trove_id, source_url, branch, commit_, builder, build_host, vendor, license)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trove_id) DO UPDATE SET
		   source_url = excluded.source_url, branch = excluded.branch, commit_ = excluded.commit_,
		   builder = excluded.builder, build_host = excluded.build_host,
		   vendor = excluded.vendor, license = excluded.license`,
		p.TroveID, p.SourceURL, p.Branch, p.Commit, p.Builder, p.BuildHost, p.Vendor, p.License,
	)
	if err != nil {
		return fmt.Errorf("storage: put provenance for trove %d: %w", p.TroveID, err)
	}
	return nil
}

// GetProvenance looks up the provenance row for troveID.
func GetProvenance(q Queryer, troveID int64) (types.Provenance, error) {
	var p types.Provenance
	row := q.QueryRow(`SELECT trove_id, source_url, branch, commit_, builder, build_host, vendor, license
		FROM provenance WHERE trove_id = ?`, troveID)
	err := row.Scan(&p.TroveID, &p.SourceURL, &p.Branch, &p.Commit, &p.Builder, &p.BuildHost, &p.Vendor, &p.License)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, fmt.Errorf("storage: get provenance for trove %d: %w", troveID, ErrNotFound)
		}
		return p, fmt.Errorf("storage: get provenance for trove %d: %w", troveID, err)
	}
	return p, nil
}
