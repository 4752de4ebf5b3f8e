package facade

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/cuemby/truss/pkg/cas"
	"github.com/cuemby/truss/pkg/config"
	"github.com/cuemby/truss/pkg/events"
	"github.com/cuemby/truss/pkg/fetch"
	"github.com/cuemby/truss/pkg/keyring"
	"github.com/cuemby/truss/pkg/metrics"
	"github.com/cuemby/truss/pkg/repocatalog"
	"github.com/cuemby/truss/pkg/resolver"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/txn"
	"github.com/cuemby/truss/pkg/types"
	"github.com/cuemby/truss/pkg/verify"
)

// Facade is the single entry point a program embeds to drive truss as
// a library: one struct, one method per operation, wrapping the store,
// the transaction manager and the resolver behind a call surface that
// doesn't leak any of their internals.
type Facade struct {
	store   *storage.Store
	objects *cas.Store
	manager *txn.Manager
	events  *events.Broker
	fetcher *fetch.Client
}

// Open initializes (or reopens) a truss state store at cfg.Root and
// returns a ready-to-use Facade. The caller owns the returned Facade's
// lifetime and should call Close when done.
func Open(cfg *config.Config) (*Facade, error) {
	store, err := storage.Open(filepath.Join(cfg.Root, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("facade: open state store: %w", err)
	}
	objects, err := cas.Open(filepath.Join(cfg.Root, "cas"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("facade: open object store: %w", err)
	}

	fetcher := fetch.NewClient()
	broker := events.NewBroker()
	broker.Start()

	manager := txn.NewManager(store, objects, filepath.Join(cfg.Root, "root"), fetcher, keyring.NoopVerifier{}, broker)

	f := &Facade{store: store, objects: objects, manager: manager, events: broker, fetcher: fetcher}

	for _, r := range cfg.Repositories {
		repo, err := f.RepoAdd(context.Background(), r.Name, r.URL, r.Priority, r.GPGCheck, r.GPGKeyURL)
		if err != nil {
			// Any error adding a configured repository, including one
			// already present from a prior run, is skipped: Open neither
			// fails nor reports it.
			continue
		}
		if !r.Enabled {
			_ = f.RepoDisable(context.Background(), repo.ID)
		}
	}

	return f, nil
}

// Close releases the underlying state store and event broker.
func (f *Facade) Close() error {
	f.events.Stop()
	return f.store.Close()
}

// Install installs source (a local package path or a repository-known
// name) and returns the changeset it produced.
func (f *Facade) Install(ctx context.Context, source string, opts txn.Options) (*types.Changeset, error) {
	return f.manager.Install(ctx, source, opts)
}

// Remove uninstalls name.
func (f *Facade) Remove(ctx context.Context, name string) (*types.Changeset, error) {
	return f.manager.Remove(ctx, name)
}

// Rollback reverses the changeset identified by changesetID.
func (f *Facade) Rollback(ctx context.Context, changesetID int64) (*types.Changeset, error) {
	return f.manager.Rollback(ctx, changesetID)
}

// Update upgrades name to the newest repository version, or every
// installed trove when name is nil.
func (f *Facade) Update(ctx context.Context, name *string) (*txn.UpdateSummary, error) {
	return f.manager.Update(ctx, name)
}

// Verify reconciles name's installed files against their recorded
// hashes, or every installed trove's when name is empty.
func (f *Facade) Verify(name string) (*verify.Report, error) {
	return f.manager.Verify(name)
}

// Query returns the installed trove named name.
func (f *Facade) Query(name string) (*types.Trove, error) {
	return storage.GetTroveByName(f.store.DB(), name)
}

// List returns every installed trove.
func (f *Facade) List() ([]*types.Trove, error) {
	return storage.ListTroves(f.store.DB())
}

// Search looks up repository packages whose name contains query.
func (f *Facade) Search(query string) ([]types.RepositoryPackage, error) {
	return storage.SearchRepositoryPackages(f.store.DB(), query)
}

// Depends returns the install order for name without installing
// anything: its direct and transitive dependencies, dependencies
// first, followed by name itself. Names with no installed trove or
// repository candidate are left out.
func (f *Facade) Depends(ctx context.Context, name string) ([]string, error) {
	plan, err := resolver.Plan(ctx, f.store.DB(), []string{name})
	if err != nil {
		return nil, err
	}
	return plan.Order, nil
}

// RDepends returns the names of installed troves that directly depend
// on name.
func (f *Facade) RDepends(name string) ([]string, error) {
	dependents, err := storage.ListDependents(f.store.DB(), name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dependents))
	for i, t := range dependents {
		names[i] = t.Name
	}
	return names, nil
}

// WhatBreaks reports which installed troves would become unsatisfied
// if name were removed, without actually removing it.
func (f *Facade) WhatBreaks(name string) ([]string, error) {
	plan, err := resolver.PlanRemoval(f.store.DB(), name)
	if err != nil {
		return nil, err
	}
	return plan.Breaking, nil
}

// RepoAdd registers a new repository.
func (f *Facade) RepoAdd(ctx context.Context, name, url string, priority int, gpgCheck bool, gpgKeyURL string) (*types.Repository, error) {
	repo := &types.Repository{Name: name, URL: url, Enabled: true, Priority: priority, GPGCheck: gpgCheck, GPGKeyURL: gpgKeyURL}
	err := f.store.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.CreateRepository(tx, repo)
	})
	if err != nil {
		return nil, fmt.Errorf("facade: add repository %s: %w", name, err)
	}
	return repo, nil
}

// RepoList returns every configured repository.
func (f *Facade) RepoList() ([]*types.Repository, error) {
	return storage.ListRepositories(f.store.DB())
}

// RepoRemove deletes a repository and its cached package index.
func (f *Facade) RepoRemove(ctx context.Context, id int64) error {
	return f.store.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.DeleteRepository(tx, id)
	})
}

// RepoEnable flips a repository's enabled flag on.
func (f *Facade) RepoEnable(ctx context.Context, id int64) error {
	return f.store.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.SetRepositoryEnabled(tx, id, true)
	})
}

// RepoDisable flips a repository's enabled flag off.
func (f *Facade) RepoDisable(ctx context.Context, id int64) error {
	return f.store.WithTx(ctx, func(tx *sql.Tx) error {
		return storage.SetRepositoryEnabled(tx, id, false)
	})
}

// RepoSync downloads id's index and replaces its cached package list.
func (f *Facade) RepoSync(ctx context.Context, id int64, force bool) (int, error) {
	repo, err := storage.GetRepository(f.store.DB(), id)
	if err != nil {
		return 0, err
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DownloadDuration)
	n, err := repocatalog.Sync(ctx, f.store, f.fetcher, repo, force)
	if err != nil {
		f.events.Publish(&events.Event{Type: events.EventRepoSyncFailed, Message: err.Error()})
		return 0, err
	}
	f.events.Publish(&events.Event{Type: events.EventRepoSyncCompleted, Message: fmt.Sprintf("%s: %d packages", repo.Name, n)})
	return n, nil
}
