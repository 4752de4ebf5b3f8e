package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuemby/truss/pkg/types"
)

// PutFileRecord inserts or replaces the file record for (TroveID, Path).
func PutFileRecord(tx *sql.Tx, f types.FileRecord) error {
	_, err := tx.Exec(
		`INSERT INTO file_records (trove_id, path, size, mode, owner, "group", sha256, link_target)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(trove_id, path) DO UPDATE SET
		   size = excluded.size, mode = excluded.mode, owner = excluded.owner,
		   "group" = excluded."group", sha256 = excluded.sha256, link_target = excluded.link_target`,
		f.TroveID, f.Path, f.Size, f.Mode, f.Owner, f.Group, f.SHA256, f.LinkTarget,
	)
	if err != nil {
		return fmt.Errorf("storage: put file record %s: %w", f.Path, err)
	}
	return nil
}

func scanFileRecord(row interface{ Scan(...any) error }) (types.FileRecord, error) {
	var f types.FileRecord
	err := row.Scan(&f.TroveID, &f.Path, &f.Size, &f.Mode, &f.Owner, &f.Group, &f.SHA256, &f.LinkTarget)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	return f, err
}

// ListFileRecordsByTrove returns every file owned by troveID.
func ListFileRecordsByTrove(q Queryer, troveID int64) ([]types.FileRecord, error) {
	rows, err := q.Query(`SELECT trove_id, path, size, mode, owner, "group", sha256, link_target
		FROM file_records WHERE trove_id = ? ORDER BY path`, troveID)
	if err != nil {
		return nil, fmt.Errorf("storage: list file records for trove %d: %w", troveID, err)
	}
	defer rows.Close()

	var out []types.FileRecord
	for rows.Next() {
		f, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list file records for trove %d: %w", troveID, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFileRecordByPath finds which trove (if any) currently owns path.
func GetFileRecordByPath(q Queryer, path string) (types.FileRecord, error) {
	row := q.QueryRow(`SELECT trove_id, path, size, mode, owner, "group", sha256, link_target
		FROM file_records WHERE path = ?`, path)
	f, err := scanFileRecord(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return f, fmt.Errorf("storage: get file record %s: %w", path, ErrNotFound)
		}
		return f, fmt.Errorf("storage: get file record %s: %w", path, err)
	}
	return f, nil
}

// DeleteFileRecord removes the (troveID, path) row.
func DeleteFileRecord(tx *sql.Tx, troveID int64, path string) error {
	_, err := tx.Exec(`DELETE FROM file_records WHERE trove_id = ? AND path = ?`, troveID, path)
	if err != nil {
		return fmt.Errorf("storage: delete file record %s: %w", path, err)
	}
	return nil
}

// PutContentObject records (or re-records) a CAS object's bookkeeping
// row. Puts are idempotent: the same hash always maps to the same size
// and storage path.
func PutContentObject(tx *sql.Tx, c types.ContentObject) error {
	_, err := tx.Exec(
		`INSERT INTO content_objects (sha256, storage_path, size) VALUES (?, ?, ?)
		 ON CONFLICT(sha256) DO NOTHING`,
		c.SHA256, c.StoragePath, c.Size,
	)
	if err != nil {
		return fmt.Errorf("storage: put content object %s: %w", c.SHA256, err)
	}
	return nil
}

// GetContentObject looks up a content object by hash.
func GetContentObject(q Queryer, sha256 string) (types.ContentObject, error) {
	var c types.ContentObject
	row := q.QueryRow(`SELECT sha256, storage_path, size FROM content_objects WHERE sha256 = ?`, sha256)
	if err := row.Scan(&c.SHA256, &c.StoragePath, &c.Size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, fmt.Errorf("storage: get content object %s: %w", sha256, ErrNotFound)
		}
		return c, fmt.Errorf("storage: get content object %s: %w", sha256, err)
	}
	return c, nil
}

// CountFileRecordsByHash reports how many file records still reference
// sha256, used to decide whether a CAS object can be garbage collected
// on removal (spec.md's resolved Open Question on remove-rollback
// content retention).
func CountFileRecordsByHash(q Queryer, sha256 string) (int, error) {
	var n int
	row := q.QueryRow(`SELECT COUNT(*) FROM file_records WHERE sha256 = ?`, sha256)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count file records for %s: %w", sha256, err)
	}
	return n, nil
}

// DeleteContentObject removes the bookkeeping row for sha256. Callers
// must have already confirmed via CountFileRecordsByHash that nothing
// references it.
func DeleteContentObject(tx *sql.Tx, sha256 string) error {
	_, err := tx.Exec(`DELETE FROM content_objects WHERE sha256 = ?`, sha256)
	if err != nil {
		return fmt.Errorf("storage: delete content object %s: %w", sha256, err)
	}
	return nil
}

// PutFileHistoryEntry appends one entry to a changeset's journal.
func PutFileHistoryEntry(tx *sql.Tx, e types.FileHistoryEntry) error {
	_, err := tx.Exec(
		`INSERT INTO file_history (changeset_id, path, operation, old_hash, new_hash)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(changeset_id, path) DO UPDATE SET
		   operation = excluded.operation, old_hash = excluded.old_hash, new_hash = excluded.new_hash`,
		e.ChangesetID, e.Path, string(e.Operation), e.OldHash, e.NewHash,
	)
	if err != nil {
		return fmt.Errorf("storage: put file history entry %s: %w", e.Path, err)
	}
	return nil
}

// ListFileHistory returns every entry recorded for changesetID, the
// journal the Transaction Manager replays to reverse a changeset.
func ListFileHistory(q Queryer, changesetID int64) ([]types.FileHistoryEntry, error) {
	rows, err := q.Query(`SELECT changeset_id, path, operation, old_hash, new_hash
		FROM file_history WHERE changeset_id = ? ORDER BY path`, changesetID)
	if err != nil {
		return nil, fmt.Errorf("storage: list file history for changeset %d: %w", changesetID, err)
	}
	defer rows.Close()

	var out []types.FileHistoryEntry
	for rows.Next() {
		var e types.FileHistoryEntry
		var op string
		if err := rows.Scan(&e.ChangesetID, &e.Path, &op, &e.OldHash, &e.NewHash); err != nil {
			return nil, fmt.Errorf("storage: list file history for changeset %d: %w", changesetID, err)
		}
		e.Operation = types.FileHistoryOp(op)
		out = append(out, e)
	}
	return out, rows.Err()
}
