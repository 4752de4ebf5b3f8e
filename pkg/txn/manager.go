package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cuemby/truss/pkg/cas"
	"github.com/cuemby/truss/pkg/deploy"
	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/fetch"
	"github.com/cuemby/truss/pkg/keyring"
	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/readers"
	"github.com/cuemby/truss/pkg/readers/arch"
	"github.com/cuemby/truss/pkg/readers/deb"
	"github.com/cuemby/truss/pkg/readers/rpm"
	"github.com/cuemby/truss/pkg/resolver"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// Manager is the Transaction Manager: the orchestrator that drives
// every changeset's Pending -> Applied/RolledBack lifecycle, per
// spec.md §4.6.
type Manager struct {
	store       *storage.Store
	objects     *cas.Store
	deployer    *deploy.Deployer
	installRoot string
	fetcher     *fetch.Client
	verifier    keyring.Verifier
	events      *events.Broker
}

// NewManager builds a Manager rooted at installRoot. A nil verifier
// defaults to keyring.NoopVerifier.
func NewManager(store *storage.Store, objects *cas.Store, installRoot string, fetcher *fetch.Client, verifier keyring.Verifier, broker *events.Broker) *Manager {
	if verifier == nil {
		verifier = keyring.NoopVerifier{}
	}
	return &Manager{
		store:       store,
		objects:     objects,
		deployer:    deploy.NewDeployer(objects, installRoot),
		installRoot: installRoot,
		fetcher:     fetcher,
		verifier:    verifier,
		events:      broker,
	}
}

// Options configures an Install call.
type Options struct {
	InstallRoot string
	Version     string
	Repository  string
	DryRun      bool
	ForceOrphan bool
}

func (m *Manager) publish(typ events.EventType, message string, metadata map[string]string) {
	if m.events == nil {
		return
	}
	m.events.Publish(&events.Event{ID: uuid.New().String(), Type: typ, Message: message, Metadata: metadata})
}

func openReader(path string) (readers.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("txn: open %s: %w", path, err)
	}
	head := make([]byte, 512)
	n, _ := f.Read(head)
	f.Close()

	format, err := readers.Detect(path, head[:n])
	if err != nil {
		return nil, wrap(IntegrityError, fmt.Sprintf("detect format of %s", path), err)
	}

	switch format {
	case readers.FormatRPM:
		return rpm.Open(path)
	case readers.FormatDeb:
		return deb.Open(path)
	case readers.FormatArch:
		return arch.Open(path)
	default:
		return nil, wrap(IntegrityError, fmt.Sprintf("unsupported format for %s", path), nil)
	}
}

// Install installs source, which is either a local package file path
// or a name resolved against synced repositories, and returns the
// Applied changeset it produced.
func (m *Manager) Install(ctx context.Context, source string, opts Options) (*types.Changeset, error) {
	logger := log.WithComponent("txn")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstallDuration)
	m.publish(events.EventInstallStarted, fmt.Sprintf("installing %s", source), nil)

	if _, err := os.Stat(source); err == nil {
		if opts.DryRun {
			logger.Info().Str("file", source).Msg("dry run install of local package file")
			return nil, nil
		}
		cs, err := m.installFile(ctx, source, opts)
		if err != nil {
			metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
			m.publish(events.EventInstallFailed, err.Error(), map[string]string{"source": source})
			return nil, err
		}
		metrics.ChangesetsTotal.WithLabelValues("install", "applied").Inc()
		m.publish(events.EventInstallCompleted, fmt.Sprintf("installed %s", source), nil)
		return cs, nil
	}

	plan, err := resolver.Plan(ctx, m.store.DB(), []string{source})
	if err != nil {
		metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
		m.publish(events.EventInstallFailed, err.Error(), map[string]string{"source": source})
		return nil, classifyResolverError(err)
	}
	if len(plan.Missing) > 0 {
		err := wrap(DependencyMissing, fmt.Sprintf("no candidate for %v", plan.Missing), nil)
		metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
		m.publish(events.EventInstallFailed, err.Error(), nil)
		return nil, err
	}
	if opts.DryRun {
		logger.Info().Strs("order", plan.Order).Msg("dry run install plan")
		return nil, nil
	}

	var last *types.Changeset
	for _, name := range plan.Order {
		pkgs, err := storage.ListRepositoryPackagesByName(m.store.DB(), name)
		if err != nil || len(pkgs) == 0 {
			if _, existErr := storage.GetTroveByName(m.store.DB(), name); existErr == nil {
				continue // already installed and no repository candidate to compare against
			}
			err := wrap(DependencyMissing, fmt.Sprintf("no repository candidate for %s", name), err)
			metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
			m.publish(events.EventInstallFailed, err.Error(), map[string]string{"name": name})
			return nil, err
		}
		candidate := pkgs[0]

		if existing, err := storage.GetTroveByName(m.store.DB(), name); err == nil {
			if resolver.CompareEVR(resolver.ParseEVR(candidate.Version), resolver.ParseEVR(existing.Version)) <= 0 {
				continue // installed version is already current or newer than the best repository candidate
			}
		}

		tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("truss-%s-%s.pkg", candidate.Name, candidate.Version))
		checksum := ""
		if candidate.ChecksumType == "sha256" {
			checksum = candidate.Checksum
		}
		if err := m.fetcher.Download(ctx, candidate.DownloadURL, tmpPath, checksum); err != nil {
			err := wrap(NetworkError, fmt.Sprintf("download %s", name), err)
			metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
			m.publish(events.EventInstallFailed, err.Error(), map[string]string{"name": name})
			return nil, err
		}
		defer os.Remove(tmpPath)

		source := candidate.DownloadURL
		repo, repoErr := storage.GetRepository(m.store.DB(), candidate.RepositoryID)
		if repoErr == nil {
			source = repo.Name
		}
		if repoErr == nil && repo.GPGCheck {
			data, err := os.ReadFile(tmpPath)
			if err != nil {
				return nil, wrap(IntegrityError, fmt.Sprintf("read %s for signature check", name), err)
			}
			if err := m.verifier.Verify(repo.Name, data, nil); err != nil {
				err := wrap(IntegrityError, fmt.Sprintf("signature check failed for %s", name), err)
				metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
				m.publish(events.EventInstallFailed, err.Error(), map[string]string{"name": name})
				return nil, err
			}
		}

		cs, err := m.installFile(ctx, tmpPath, Options{InstallRoot: opts.InstallRoot, Repository: source, ForceOrphan: opts.ForceOrphan})
		if err != nil {
			metrics.ChangesetsTotal.WithLabelValues("install", "failed").Inc()
			m.publish(events.EventInstallFailed, err.Error(), map[string]string{"name": name})
			return nil, err
		}
		last = cs
	}

	metrics.ChangesetsTotal.WithLabelValues("install", "applied").Inc()
	m.publish(events.EventInstallCompleted, fmt.Sprintf("installed %s", source), nil)
	return last, nil
}

// installFile parses path and deploys it as a single changeset. If a
// trove by the same name is already installed, this performs an
// upgrade (per spec.md §4.6 step 2/6) rather than a fresh install:
// the new version must compare strictly greater, and any file path the
// prior version owned is treated as a modify instead of a conflict.
func (m *Manager) installFile(ctx context.Context, path string, opts Options) (*types.Changeset, error) {
	reader, err := openReader(path)
	if err != nil {
		var txErr *Error
		if errors.As(err, &txErr) {
			return nil, err
		}
		return nil, wrap(IntegrityError, fmt.Sprintf("read package %s", path), err)
	}

	trove := reader.ToTrove()
	if opts.Version != "" {
		trove.Version = opts.Version
	}

	var previous *types.Trove
	if existing, err := storage.GetTroveByName(m.store.DB(), trove.Name); err == nil {
		if resolver.CompareEVR(resolver.ParseEVR(trove.Version), resolver.ParseEVR(existing.Version)) <= 0 {
			return nil, wrap(AlreadyExists, fmt.Sprintf("%s %s is already installed (requested %s is not newer)", trove.Name, existing.Version, trove.Version), nil)
		}
		previous = existing
	}

	root := m.installRoot
	deployer := m.deployer
	if opts.InstallRoot != "" {
		root = opts.InstallRoot
		deployer = deploy.NewDeployer(m.objects, opts.InstallRoot)
	}

	files := reader.Files()

	previousByPath := make(map[string]types.FileRecord)
	if previous != nil {
		recs, err := storage.ListFileRecordsByTrove(m.store.DB(), previous.ID)
		if err != nil {
			return nil, wrap(StorageError, "list previous file records", err)
		}
		for _, r := range recs {
			previousByPath[r.Path] = r
		}
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Path] = true

		owner, err := storage.GetFileRecordByPath(m.store.DB(), f.Path)
		switch {
		case err == nil:
			if previous != nil && owner.TroveID == previous.ID {
				continue // same trove being upgraded: modify is allowed
			}
			return nil, wrap(Conflict, fmt.Sprintf("%s is already owned by another installed trove", f.Path), nil)
		case errors.Is(err, storage.ErrNotFound):
			if _, statErr := os.Lstat(filepath.Join(root, f.Path)); statErr == nil && !opts.ForceOrphan {
				return nil, wrap(OrphanFile, fmt.Sprintf("%s exists on disk but is not tracked by any installed trove", f.Path), nil)
			}
		default:
			return nil, wrap(StorageError, fmt.Sprintf("look up owner of %s", f.Path), err)
		}
	}

	var changeset *types.Changeset
	err = m.store.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := apply(tx, marshalCommand("create_changeset", types.Changeset{
			Description: fmt.Sprintf("install %s %s", trove.Name, trove.Version),
			Status:      types.ChangesetPending,
		}))
		if err != nil {
			return err
		}
		changeset = result.(*types.Changeset)

		if previous != nil {
			if _, err := apply(tx, marshalCommand("delete_trove", previous.ID)); err != nil {
				return err
			}
		}

		troveResult, err := apply(tx, marshalCommand("create_trove", trove))
		if err != nil {
			return err
		}
		created := troveResult.(*types.Trove)

		var cmds []Command
		for _, dep := range reader.Dependencies() {
			dep.TroveID = created.ID
			cmds = append(cmds, marshalCommand("put_dependency", dep))
		}

		for i := range files {
			f := files[i]
			f.TroveID = created.ID
			if !f.IsSymlink() {
				data, err := reader.Extract(f.Path)
				if err != nil {
					return fmt.Errorf("txn: extract %s: %w", f.Path, err)
				}
				content, err := m.objects.PutStream(data)
				data.Close()
				if err != nil {
					return err
				}
				f.SHA256 = content
				cmds = append(cmds, marshalCommand("put_content_object", types.ContentObject{SHA256: content, Size: f.Size}))
			}
			files[i] = f

			op := types.FileHistoryAdd
			oldHash := ""
			if prev, ok := previousByPath[f.Path]; ok {
				op = types.FileHistoryModify
				oldHash = prev.SHA256
			}
			cmds = append(cmds, marshalCommand("put_file_record", f))
			cmds = append(cmds, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: changeset.ID,
				Path:        f.Path,
				Operation:   op,
				OldHash:     oldHash,
				NewHash:     f.SHA256,
			}))
		}

		// Paths the previous version owned that the new one no longer
		// ships are journaled as deletes; delete_trove already dropped
		// their file_records rows via cascade.
		for p, prev := range previousByPath {
			if seen[p] {
				continue
			}
			cmds = append(cmds, marshalCommand("put_file_history_entry", types.FileHistoryEntry{
				ChangesetID: changeset.ID,
				Path:        p,
				Operation:   types.FileHistoryDelete,
				OldHash:     prev.SHA256,
			}))
		}

		if opts.Repository != "" {
			cmds = append(cmds, marshalCommand("put_provenance", types.Provenance{TroveID: created.ID, SourceURL: opts.Repository}))
		}

		return applyAll(tx, cmds)
	})
	if err != nil {
		return nil, wrap(StorageError, "install transaction", err)
	}

	deployed, err := deployer.DeployAll(files)
	if err != nil {
		m.compensateInstall(deployer, deployed)
		return nil, wrap(IntegrityError, fmt.Sprintf("deploy %s", trove.Name), err)
	}
	for p, prev := range previousByPath {
		if seen[p] {
			continue
		}
		if err := deployer.Remove(prev); err != nil {
			log.WithComponent("txn").Warn().Err(err).Str("path", p).Msg("install: failed to remove file dropped by upgrade")
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

	return changeset, nil
}

// compensateInstall removes files already deployed before a later
// deploy step failed, per spec.md §4.6's deterministic compensation.
func (m *Manager) compensateInstall(deployer *deploy.Deployer, deployed []types.FileRecord) {
	logger := log.WithComponent("txn")
	for _, rec := range deployed {
		if err := deployer.Remove(rec); err != nil {
			logger.Error().Err(err).Str("path", rec.Path).Msg("compensation: failed to remove deployed file")
		}
	}
}

func classifyResolverError(err error) error {
	var unsat *resolver.UnsatisfiableConstraintError
	var conflict *resolver.ConflictingConstraintsError
	var cycle *resolver.CircularDependencyError
	var missing *resolver.MissingPackageError

	switch {
	case errors.As(err, &unsat):
		return wrap(ConstraintUnsat, err.Error(), err)
	case errors.As(err, &conflict):
		return wrap(ConstraintUnsat, err.Error(), err)
	case errors.As(err, &cycle):
		return wrap(CycleDetected, err.Error(), err)
	case errors.As(err, &missing):
		return wrap(DependencyMissing, err.Error(), err)
	default:
		return wrap(StorageError, "resolve", err)
	}
}
