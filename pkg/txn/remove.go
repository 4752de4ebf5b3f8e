package txn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/resolver"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// Remove uninstalls name, refusing with DependencyBreaks if another
// installed trove still depends on it. There is no option to remove it
// anyway.
func (m *Manager) Remove(ctx context.Context, name string) (*types.Changeset, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RemoveDuration)
	m.publish(events.EventRemoveStarted, fmt.Sprintf("removing %s", name), nil)

	plan, err := resolver.PlanRemoval(m.store.DB(), name)
	if err != nil {
		metrics.ChangesetsTotal.WithLabelValues("remove", "failed").Inc()
		wrapped := classifyResolverError(err)
		m.publish(events.EventRemoveFailed, wrapped.Error(), map[string]string{"name": name})
		return nil, wrapped
	}
	if len(plan.Breaking) > 0 {
		err := wrap(DependencyBreaks, fmt.Sprintf("%s is required by %v", name, plan.Breaking), nil)
		metrics.ChangesetsTotal.WithLabelValues("remove", "failed").Inc()
		m.publish(events.EventRemoveFailed, err.Error(), map[string]string{"name": name})
		return nil, err
	}

	trove, err := storage.GetTroveByName(m.store.DB(), name)
	if err != nil {
		err := wrap(NotFound, fmt.Sprintf("%s is not installed", name), err)
		metrics.ChangesetsTotal.WithLabelValues("remove", "failed").Inc()
		m.publish(events.EventRemoveFailed, err.Error(), map[string]string{"name": name})
		return nil, err
	}
	records, err := storage.ListFileRecordsByTrove(m.store.DB(), trove.ID)
	if err != nil {
		return nil, wrap(StorageError, fmt.Sprintf("list files for %s", name), err)
	}

	var changeset *types.Changeset
	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := apply(tx, marshalCommand("create_changeset", types.Changeset{
			Description: fmt.Sprintf("remove %s", name),
			Status:      types.ChangesetPending,
		}))
		if err != nil {
			return err
		}
		changeset = result.(*types.Changeset)

		var cmds []Command
		for _, rec := range records {
			cmds = append(cmds, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: changeset.ID,
				Path:        rec.Path,
				Operation:   types.FileHistoryDelete,
				OldHash:     rec.SHA256,
			}))
		}
		cmds = append(cmds, marshalCommand("delete_trove", trove.ID))
		return applyAll(tx, cmds)
	})
	if err != nil {
		metrics.ChangesetsTotal.WithLabelValues("remove", "failed").Inc()
		wrapped := wrap(StorageError, "remove transaction", err)
		m.publish(events.EventRemoveFailed, wrapped.Error(), map[string]string{"name": name})
		return nil, wrapped
	}

	logger := log.WithComponent("txn")
	for _, rec := range records {
		if err := m.deployer.Remove(rec); err != nil {
			logger.Error().Err(err).Str("path", rec.Path).Msg("remove: failed to delete file from disk")
		}
	}

	if err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := apply(tx, marshalCommand("set_changeset_status", struct {
			ID     int64
			Status types.ChangesetStatus
		}{changeset.ID, types.ChangesetApplied}))
		return err
	}); err != nil {
		return nil, wrap(StorageError, "mark changeset applied", err)
	}
	changeset.Status = types.ChangesetApplied

	metrics.ChangesetsTotal.WithLabelValues("remove", "applied").Inc()
	m.publish(events.EventRemoveCompleted, fmt.Sprintf("removed %s", name), nil)
	return changeset, nil
}
