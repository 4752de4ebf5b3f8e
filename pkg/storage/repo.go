package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/truss/pkg/types"
)

// CreateRepository inserts r and sets r.ID.
func CreateRepository(tx *sql.Tx, r *types.Repository) error {
	res, err := tx.Exec(
		`INSERT INTO repositories (name, url, enabled, priority, gpg_check, gpg_key_url, metadata_expire, last_sync)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.URL, r.Enabled, r.Priority, r.GPGCheck, r.GPGKeyURL, int64(r.MetadataExpire), nullTime(r.LastSync),
	)
	if err != nil {
		return fmt.Errorf("storage: create repository %s: %w", r.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: create repository %s: id: %w", r.Name, err)
	}
	r.ID = id
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanRepository(row interface{ Scan(...any) error }) (*types.Repository, error) {
	var r types.Repository
	var metadataExpire int64
	var lastSync sql.NullTime
	err := row.Scan(&r.ID, &r.Name, &r.URL, &r.Enabled, &r.Priority, &r.GPGCheck, &r.GPGKeyURL, &metadataExpire, &lastSync)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.MetadataExpire = time.Duration(metadataExpire)
	if lastSync.Valid {
		r.LastSync = lastSync.Time
	}
	return &r, nil
}

// GetRepository looks up a repository by id.
func GetRepository(q Queryer, id int64) (*types.Repository, error) {
	row := q.QueryRow(`SELECT id, name, url, enabled, priority, gpg_check, gpg_key_url, metadata_expire, last_sync
		FROM repositories WHERE id = ?`, id)
	r, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("storage: get repository %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get repository %d: %w", id, err)
	}
	return r, nil
}

// GetRepositoryByName looks up a repository by its unique name.
func GetRepositoryByName(q Queryer, name string) (*types.Repository, error) {
	row := q.QueryRow(`SELECT id, name, url, enabled, priority, gpg_check, gpg_key_url, metadata_expire, last_sync
		FROM repositories WHERE name = ?`, name)
	r, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("storage: get repository %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get repository %s: %w", name, err)
	}
	return r, nil
}

// ListRepositories returns every configured repository ordered by
// priority (highest first) then name.
func ListRepositories(q Queryer) ([]*types.Repository, error) {
	rows, err := q.Query(`SELECT id, name, url, enabled, priority, gpg_check, gpg_key_url, metadata_expire, last_sync
		FROM repositories ORDER BY priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list repositories: %w", err)
	}
	defer rows.Close()

	var out []*types.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list repositories: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRepositoryEnabled toggles whether a repository participates in
// resolution and sync.
func SetRepositoryEnabled(tx *sql.Tx, id int64, enabled bool) error {
	res, err := tx.Exec(`UPDATE repositories SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("storage: set repository %d enabled: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("storage: set repository %d enabled: %w", id, ErrNotFound)
	}
	return nil
}

// SetRepositoryLastSync stamps the time a sync last completed.
func SetRepositoryLastSync(tx *sql.Tx, id int64, when time.Time) error {
	_, err := tx.Exec(`UPDATE repositories SET last_sync = ? WHERE id = ?`, when, id)
	if err != nil {
		return fmt.Errorf("storage: set repository %d last_sync: %w", id, err)
	}
	return nil
}

// DeleteRepository removes a repository and, via ON DELETE CASCADE,
// its packages and their dependency rows. package_deltas rows are not
// tied to a repository and are kept.
func DeleteRepository(tx *sql.Tx, id int64) error {
	res, err := tx.Exec(`DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete repository %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("storage: delete repository %d: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceRepositoryPackages atomically replaces every package (and its
// dependency edges) advertised by repositoryID, implementing the
// sync "replace-all" semantics of spec.md §4.3: a sync either commits a
// complete new index or leaves the previous one untouched.
func ReplaceRepositoryPackages(tx *sql.Tx, repositoryID int64, pkgs []types.RepositoryPackage) error {
	if _, err := tx.Exec(`DELETE FROM repository_packages WHERE repository_id = ?`, repositoryID); err != nil {
		return fmt.Errorf("storage: replace packages for repository %d: %w", repositoryID, err)
	}

	for _, p := range pkgs {
		metadataJSON, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("storage: marshal metadata for %s: %w", p.Name, err)
		}
		res, err := tx.Exec(
			`INSERT INTO repository_packages
			   (repository_id, name, version, architecture, description, checksum, checksum_type, size, download_url, metadata_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			repositoryID, p.Name, p.Version, p.Architecture, p.Description, p.Checksum, p.ChecksumType, p.Size, p.DownloadURL, string(metadataJSON),
		)
		if err != nil {
			return fmt.Errorf("storage: insert repository package %s: %w", p.Name, err)
		}
		pkgID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("storage: insert repository package %s: id: %w", p.Name, err)
		}
		for _, d := range p.Dependencies {
			_, err := tx.Exec(
				`INSERT INTO repository_package_dependencies (repository_package_id, name, kind, constraint_, description)
				 VALUES (?, ?, ?, ?, ?)`,
				pkgID, d.Name, string(d.Kind), d.Constraint, d.Description,
			)
			if err != nil {
				return fmt.Errorf("storage: insert dependency %s for package %s: %w", d.Name, p.Name, err)
			}
		}
	}
	return nil
}

// ListRepositoryPackagesByName returns every advertised package named
// name across all enabled repositories, ordered by repository priority,
// the candidate set the resolver chooses from.
func ListRepositoryPackagesByName(q Queryer, name string) ([]types.RepositoryPackage, error) {
	rows, err := q.Query(`
		SELECT rp.id, rp.repository_id, rp.name, rp.version, rp.architecture, rp.description,
		       rp.checksum, rp.checksum_type, rp.size, rp.download_url, rp.metadata_json
		FROM repository_packages rp
		JOIN repositories r ON r.id = rp.repository_id
		WHERE rp.name = ? AND r.enabled = 1
		ORDER BY r.priority DESC, rp.version DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("storage: list repository packages %s: %w", name, err)
	}
	defer rows.Close()

	var out []types.RepositoryPackage
	for rows.Next() {
		var p types.RepositoryPackage
		var metadataJSON string
		if err := rows.Scan(&p.ID, &p.RepositoryID, &p.Name, &p.Version, &p.Architecture, &p.Description,
			&p.Checksum, &p.ChecksumType, &p.Size, &p.DownloadURL, &metadataJSON); err != nil {
			return nil, fmt.Errorf("storage: list repository packages %s: %w", name, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &p.Metadata); err != nil {
			return nil, fmt.Errorf("storage: decode metadata for %s: %w", name, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		deps, err := listRepositoryPackageDependencies(q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Dependencies = deps
	}
	return out, nil
}

func listRepositoryPackageDependencies(q Queryer, repoPackageID int64) ([]types.Dependency, error) {
	rows, err := q.Query(`SELECT name, kind, constraint_, description
		FROM repository_package_dependencies WHERE repository_package_id = ?`, repoPackageID)
	if err != nil {
		return nil, fmt.Errorf("storage: list dependencies for repository package %d: %w", repoPackageID, err)
	}
	defer rows.Close()

	var out []types.Dependency
	for rows.Next() {
		var d types.Dependency
		var kind string
		if err := rows.Scan(&d.Name, &kind, &d.Constraint, &d.Description); err != nil {
			return nil, fmt.Errorf("storage: list dependencies for repository package %d: %w", repoPackageID, err)
		}
		d.Kind = types.DependencyKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchRepositoryPackages returns packages whose name contains query,
// across all enabled repositories, for the facade's Search operation.
func SearchRepositoryPackages(q Queryer, query string) ([]types.RepositoryPackage, error) {
	rows, err := q.Query(`
		SELECT DISTINCT rp.name
		FROM repository_packages rp
		JOIN repositories r ON r.id = rp.repository_id
		WHERE rp.name LIKE ? AND r.enabled = 1
		ORDER BY rp.name`, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("storage: search repository packages %q: %w", query, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("storage: search repository packages %q: %w", query, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []types.RepositoryPackage
	for _, n := range names {
		pkgs, err := ListRepositoryPackagesByName(q, n)
		if err != nil {
			return nil, err
		}
		if len(pkgs) > 0 {
			out = append(out, pkgs[0])
		}
	}
	return out, nil
}

// PutPackageDelta inserts or replaces a delta advertisement.
func PutPackageDelta(tx *sql.Tx, d types.PackageDelta) error {
	_, err := tx.Exec(
		`INSERT INTO package_deltas
		   (package_name, from_version, to_version, delta_url, delta_checksum, from_hash, to_hash, delta_size, full_size, compression_ratio)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(package_name, from_version, to_version) DO UPDATE SET
		   delta_url = excluded.delta_url, delta_checksum = excluded.delta_checksum,
		   from_hash = excluded.from_hash, to_hash = excluded.to_hash,
		   delta_size = excluded.delta_size, full_size = excluded.full_size,
		   compression_ratio = excluded.compression_ratio`,
		d.PackageName, d.FromVersion, d.ToVersion, d.DeltaURL, d.DeltaChecksum, d.FromHash, d.ToHash,
		d.DeltaSize, d.FullSize, d.CompressionRatio,
	)
	if err != nil {
		return fmt.Errorf("storage: put package delta %s %s->%s: %w", d.PackageName, d.FromVersion, d.ToVersion, err)
	}
	return nil
}

// GetPackageDelta looks up the advertised delta for a specific
// package/version transition, if the repository published one.
func GetPackageDelta(q Queryer, packageName, fromVersion, toVersion string) (types.PackageDelta, error) {
	var d types.PackageDelta
	row := q.QueryRow(`SELECT id, package_name, from_version, to_version, delta_url, delta_checksum,
		from_hash, to_hash, delta_size, full_size, compression_ratio
		FROM package_deltas WHERE package_name = ? AND from_version = ? AND to_version = ?`,
		packageName, fromVersion, toVersion)
	err := row.Scan(&d.ID, &d.PackageName, &d.FromVersion, &d.ToVersion, &d.DeltaURL, &d.DeltaChecksum,
		&d.FromHash, &d.ToHash, &d.DeltaSize, &d.FullSize, &d.CompressionRatio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, fmt.Errorf("storage: get package delta %s %s->%s: %w", packageName, fromVersion, toVersion, ErrNotFound)
		}
		return d, fmt.Errorf("storage: get package delta %s %s->%s: %w", packageName, fromVersion, toVersion, err)
	}
	return d, nil
}

// PutDeltaStats upserts the per-changeset delta-application summary.
func PutDeltaStats(tx *sql.Tx, s types.DeltaStatsEntry) error {
	_, err := tx.Exec(
		`INSERT INTO delta_stats (changeset_id, bytes_saved, deltas_applied, full_downloads, delta_failures)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(changeset_id) DO UPDATE SET
		   bytes_saved = excluded.bytes_saved, deltas_applied = excluded.deltas_applied,
		   full_downloads = excluded.full_downloads, delta_failures = excluded.delta_failures`,
		s.ChangesetID, s.BytesSaved, s.DeltasApplied, s.FullDownloads, s.DeltaFailures,
	)
	if err != nil {
		return fmt.Errorf("storage: put delta stats for changeset %d: %w", s.ChangesetID, err)
	}
	return nil
}

// GetDeltaStats retrieves the delta-application summary for a changeset.
func GetDeltaStats(q Queryer, changesetID int64) (types.DeltaStatsEntry, error) {
	var s types.DeltaStatsEntry
	row := q.QueryRow(`SELECT changeset_id, bytes_saved, deltas_applied, full_downloads, delta_failures
		FROM delta_stats WHERE changeset_id = ?`, changesetID)
	err := row.Scan(&s.ChangesetID, &s.BytesSaved, &s.DeltasApplied, &s.FullDownloads, &s.DeltaFailures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, fmt.Errorf("storage: get delta stats for changeset %d: %w", changesetID, ErrNotFound)
		}
		return s, fmt.Errorf("storage: get delta stats for changeset %d: %w", changesetID, err)
	}
	return s, nil
}
