package txn

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/truss/pkg/delta"
	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/resolver"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// UpdateSummary reports what Update did across every trove it
// considered.
type UpdateSummary struct {
	Changesets     []*types.Changeset
	DeltaApplied   int
	FullDownloaded int
	Unchanged      int
}

// Update brings the named trove, or every installed trove when name is
// nil, up to the newest repository version. Each upgraded trove gets
// its own changeset; a delta is preferred over a full download when
// one is advertised and worthwhile.
func (m *Manager) Update(ctx context.Context, name *string) (*UpdateSummary, error) {
	logger := log.WithComponent("txn")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UpdateDuration)
	m.publish(events.EventUpdateStarted, "checking for updates", nil)

	var targets []*types.Trove
	if name != nil {
		t, err := storage.GetTroveByName(m.store.DB(), *name)
		if err != nil {
			wrapped := wrap(NotFound, fmt.Sprintf("%s is not installed", *name), err)
			m.publish(events.EventUpdateFailed, wrapped.Error(), nil)
			return nil, wrapped
		}
		targets = []*types.Trove{t}
	} else {
		all, err := storage.ListTroves(m.store.DB())
		if err != nil {
			return nil, wrap(StorageError, "list installed troves", err)
		}
		targets = all
	}

	summary := &UpdateSummary{}
	for _, t := range targets {
		candidates, err := storage.ListRepositoryPackagesByName(m.store.DB(), t.Name)
		if err != nil || len(candidates) == 0 {
			continue
		}
		newest := newestCandidate(candidates)
		if resolver.CompareEVR(resolver.ParseEVR(newest.Version), resolver.ParseEVR(t.Version)) <= 0 {
			summary.Unchanged++
			continue
		}

		cs, usedDelta, err := m.updateOne(ctx, t, newest)
		if err != nil {
			logger.Warn().Err(err).Str("trove", t.Name).Msg("update: skipping trove after failure")
			m.publish(events.EventUpdateFailed, err.Error(), map[string]string{"name": t.Name})
			continue
		}
		summary.Changesets = append(summary.Changesets, cs)
		if usedDelta {
			summary.DeltaApplied++
		} else {
			summary.FullDownloaded++
		}
	}

	m.publish(events.EventUpdateCompleted, fmt.Sprintf("updated %d trove(s)", len(summary.Changesets)), nil)
	return summary, nil
}

func newestCandidate(candidates []types.RepositoryPackage) types.RepositoryPackage {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if resolver.CompareEVR(resolver.ParseEVR(c.Version), resolver.ParseEVR(best.Version)) > 0 {
			best = c
		}
	}
	return best
}

// updateOne upgrades a single trove, trying a delta first. It returns
// the changeset produced and whether a delta (rather than a full
// download) was used.
func (m *Manager) updateOne(ctx context.Context, current *types.Trove, newest types.RepositoryPackage) (*types.Changeset, bool, error) {
	records, err := storage.ListFileRecordsByTrove(m.store.DB(), current.ID)
	if err != nil {
		return nil, false, err
	}

	pd, deltaErr := storage.GetPackageDelta(m.store.DB(), current.Name, current.Version, newest.Version)
	if deltaErr == nil && delta.Worthwhile(pd.DeltaSize, pd.FullSize) && len(records) == 1 {
		cs, err := m.applyDelta(ctx, current, records[0], pd)
		if err == nil {
			return cs, true, nil
		}
		metrics.DeltaApplicationsTotal.WithLabelValues("failure").Inc()
		log.WithComponent("txn").Warn().Err(err).Str("trove", current.Name).Msg("update: delta failed, falling back to full download")
	}

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("truss-%s-%s.pkg", newest.Name, newest.Version))
	checksum := ""
	if newest.ChecksumType == "sha256" {
		checksum = newest.Checksum
	}
	if err := m.fetcher.Download(ctx, newest.DownloadURL, tmpPath, checksum); err != nil {
		return nil, false, wrap(NetworkError, fmt.Sprintf("download %s", newest.Name), err)
	}
	defer os.Remove(tmpPath)

	if _, err := m.Remove(ctx, current.Name); err != nil {
		return nil, false, err
	}
	cs, err := m.installFile(ctx, tmpPath, Options{})
	if err != nil {
		return nil, false, err
	}
	if err := m.recordDeltaStats(ctx, cs.ID, types.DeltaStatsEntry{FullDownloads: 1}); err != nil {
		log.WithComponent("txn").Warn().Err(err).Msg("update: failed to record delta stats")
	}
	return cs, false, nil
}

// applyDelta upgrades a single-file trove in place by patching its one
// content object, without an intervening remove.
func (m *Manager) applyDelta(ctx context.Context, current *types.Trove, rec types.FileRecord, pd types.PackageDelta) (*types.Changeset, error) {
	if rec.SHA256 != pd.FromHash {
		return nil, wrap(DeltaFailure, fmt.Sprintf("%s content has drifted from the advertised delta base", rec.Path), nil)
	}
	oldContent, err := m.objects.Get(pd.FromHash)
	if err != nil {
		return nil, wrap(DeltaFailure, "read base content", err)
	}

	deltaBytes, err := m.fetcher.Fetch(ctx, pd.DeltaURL)
	if err != nil {
		return nil, wrap(NetworkError, "download delta", err)
	}
	newContent, err := delta.Apply(oldContent, deltaBytes, pd.ToHash)
	if err != nil {
		return nil, wrap(DeltaFailure, "apply delta", err)
	}

	newHash, err := m.objects.Put(newContent)
	if err != nil {
		return nil, wrap(StorageError, "store patched content", err)
	}

	var changeset *types.Changeset
	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := apply(tx, marshalCommand("create_changeset", types.Changeset{
			Description: fmt.Sprintf("delta update %s %s -> %s", current.Name, current.Version, pd.ToVersion),
			Status:      types.ChangesetPending,
		}))
		if err != nil {
			return err
		}
		changeset = result.(*types.Changeset)

		current.Version = pd.ToVersion
		if _, err := apply(tx, marshalCommand("create_trove", *current)); err != nil {
			return err
		}

		updated := rec
		updated.SHA256 = newHash
		updated.Size = int64(len(newContent))
		if err := applyAll(tx, []Command{
			marshalCommand("put_content_object", types.ContentObject{SHA256: newHash, Size: updated.Size}),
			marshalCommand("put_file_record", updated),
			marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: changeset.ID,
				Path:        rec.Path,
				Operation:   types.FileHistoryModify,
				OldHash:     rec.SHA256,
				NewHash:     newHash,
			}),
		}); err != nil {
			return err
		}

		_, err = apply(tx, marshalCommand("set_changeset_status", struct {
			ID     int64
			Status types.ChangesetStatus
		}{changeset.ID, types.ChangesetApplied}))
		return err
	})
	if err != nil {
		return nil, wrap(StorageError, "delta update transaction", err)
	}
	changeset.Status = types.ChangesetApplied

	updated := rec
	updated.SHA256 = newHash
	updated.Size = int64(len(newContent))
	if err := m.deployer.Deploy(updated); err != nil {
		return nil, wrap(IntegrityError, fmt.Sprintf("deploy patched %s", rec.Path), err)
	}

	metrics.DeltaApplicationsTotal.WithLabelValues("success").Inc()
	if err := m.recordDeltaStats(ctx, changeset.ID, types.DeltaStatsEntry{DeltasApplied: 1, BytesSaved: pd.FullSize - pd.DeltaSize}); err != nil {
		log.WithComponent("txn").Warn().Err(err).Msg("update: failed to record delta stats")
	}
	return changeset, nil
}

func (m *Manager) recordDeltaStats(ctx context.Context, changesetID int64, stats types.DeltaStatsEntry) error {
	stats.ChangesetID = changesetID
	return m.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := apply(tx, marshalCommand("put_delta_stats", stats))
		return err
	})
}
