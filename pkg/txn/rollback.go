package txn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// restoredFileMode is applied to a file restored from the CAS after a
// remove's reversal, since file_history does not retain the original
// mode once the owning file_records row is gone.
const restoredFileMode = 0644

// Rollback reverses targetChangesetID's effects and records the
// reversal as a new Applied changeset, per spec.md §4.6's exact-
// reversal requirement: add undoes to a delete, modify restores the
// prior content, delete restores a removed file from the CAS.
func (m *Manager) Rollback(ctx context.Context, targetChangesetID int64) (*types.Changeset, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RollbackDuration)
	m.publish(events.EventRollbackStarted, fmt.Sprintf("rolling back changeset %d", targetChangesetID), nil)

	target, err := storage.GetChangeset(m.store.DB(), targetChangesetID)
	if err != nil {
		return nil, wrap(NotFound, fmt.Sprintf("changeset %d not found", targetChangesetID), err)
	}
	if target.Status != types.ChangesetApplied {
		return nil, wrap(Conflict, fmt.Sprintf("changeset %d is %s, not applied", targetChangesetID, target.Status), nil)
	}
	if target.ReversedBy != nil {
		return nil, wrap(Conflict, fmt.Sprintf("changeset %d was already reversed by %d", targetChangesetID, *target.ReversedBy), nil)
	}

	entries, err := storage.ListFileHistory(m.store.DB(), targetChangesetID)
	if err != nil {
		return nil, wrap(StorageError, "list file history", err)
	}

	var changeset *types.Changeset
	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := apply(tx, marshalCommand("create_changeset", types.Changeset{
			Description: fmt.Sprintf("rollback of changeset %d", targetChangesetID),
			Status:      types.ChangesetPending,
		}))
		if err != nil {
			return err
		}
		changeset = result.(*types.Changeset)
		return nil
	})
	if err != nil {
		return nil, wrap(StorageError, "create rollback changeset", err)
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := m.reverseEntry(ctx, changeset.ID, entry); err != nil {
			wrapped := wrap(IntegrityError, fmt.Sprintf("reverse %s", entry.Path), err)
			m.publish(events.EventRollbackCompleted, wrapped.Error(), map[string]string{"path": entry.Path})
			return nil, wrapped
		}
	}

	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := apply(tx, marshalCommand("set_changeset_status", struct {
			ID     int64
			Status types.ChangesetStatus
		}{target.ID, types.ChangesetRolledBack})); err != nil {
			return err
		}
		if _, err := apply(tx, marshalCommand("set_changeset_reversed_by", struct {
			ID         int64
			ReversedBy int64
		}{target.ID, changeset.ID})); err != nil {
			return err
		}
		_, err := apply(tx, marshalCommand("set_changeset_status", struct {
			ID     int64
			Status types.ChangesetStatus
		}{changeset.ID, types.ChangesetApplied}))
		return err
	})
	if err != nil {
		return nil, wrap(StorageError, "finalize rollback", err)
	}
	changeset.Status = types.ChangesetApplied

	metrics.ChangesetsTotal.WithLabelValues("rollback", "applied").Inc()
	m.publish(events.EventRollbackCompleted, fmt.Sprintf("rolled back changeset %d", targetChangesetID), nil)
	return changeset, nil
}

// reverseEntry undoes a single FileHistoryEntry on disk and records
// the opposite entry against the new rollback changeset.
func (m *Manager) reverseEntry(ctx context.Context, rollbackChangesetID int64, entry types.FileHistoryEntry) error {
	rec, recErr := storage.GetFileRecordByPath(m.store.DB(), entry.Path)

	switch entry.Operation {
	case types.FileHistoryAdd:
		// The install that added this file is being undone: delete it.
		if recErr == nil {
			if err := m.deployer.Remove(rec); err != nil {
				return err
			}
		}
		return m.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := apply(tx, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: rollbackChangesetID,
				Path:        entry.Path,
				Operation:   types.FileHistoryDelete,
				OldHash:     entry.NewHash,
			}))
			return err
		})

	case types.FileHistoryDelete:
		// The removal that deleted this file is being undone: restore
		// its content from the CAS and re-deploy it.
		content, err := m.objects.Get(entry.OldHash)
		if err != nil {
			return fmt.Errorf("txn: restore %s from cas: %w", entry.Path, err)
		}
		restored := types.FileRecord{Path: entry.Path, SHA256: entry.OldHash, Size: int64(len(content)), Mode: restoredFileMode}
		if err := m.deployer.Deploy(restored); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := apply(tx, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: rollbackChangesetID,
				Path:        entry.Path,
				Operation:   types.FileHistoryAdd,
				NewHash:     entry.OldHash,
			}))
			return err
		})

	case types.FileHistoryModify:
		// An update is being undone: restore the prior content. The
		// original FileRecord still exists (only its hash changed), so
		// its mode/owner/group are reused rather than defaulted.
		rec, err := storage.GetFileRecordByPath(m.store.DB(), entry.Path)
		if err != nil {
			return fmt.Errorf("txn: look up file record %s: %w", entry.Path, err)
		}
		content, err := m.objects.Get(entry.OldHash)
		if err != nil {
			return fmt.Errorf("txn: restore %s from cas: %w", entry.Path, err)
		}
		restored := rec
		restored.SHA256 = entry.OldHash
		restored.Size = int64(len(content))
		if err := m.deployer.Deploy(restored); err != nil {
			return err
		}
		return m.store.WithTx(ctx, func(tx *sql.Tx) error {
			_, err := apply(tx, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: rollbackChangesetID,
				Path:        entry.Path,
				Operation:   types.FileHistoryModify,
				OldHash:     entry.NewHash,
				NewHash:     entry.OldHash,
			}))
			return err
		})

	default:
		return fmt.Errorf("txn: rollback: unknown file history operation %q", entry.Operation)
	}
}
