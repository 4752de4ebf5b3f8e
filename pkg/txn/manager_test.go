package txn

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/cas"
	"github.com/cuemby/truss/pkg/fetch"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, *storage.Store, *cas.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	objects, err := cas.Open(filepath.Join(dir, "cas"))
	require.NoError(t, err)

	installRoot := filepath.Join(dir, "root")
	require.NoError(t, os.MkdirAll(installRoot, 0755))

	mgr := NewManager(store, objects, installRoot, fetch.NewClient(), nil, nil)
	return mgr, store, objects, installRoot
}

// installTroveDirectly bypasses the archive-reading path (Install's
// concern) and inserts a trove with one deployed file, the way tests
// for Remove/Rollback/Verify want to start from an already-installed
// state without needing a real rpm/deb/arch fixture on disk.
func installTroveDirectly(t *testing.T, mgr *Manager, store *storage.Store, objects *cas.Store, installRoot, name string, content []byte) (*types.Trove, types.FileRecord) {
	t.Helper()
	hash, err := objects.Put(content)
	require.NoError(t, err)

	trove := &types.Trove{Name: name, Version: "1.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
	rec := types.FileRecord{Path: "/usr/bin/" + name, Size: int64(len(content)), Mode: 0755, SHA256: hash}

	require.NoError(t, store.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := storage.CreateTrove(tx, trove); err != nil {
			return err
		}
		rec.TroveID = trove.ID
		if err := storage.PutFileRecord(tx, rec); err != nil {
			return err
		}
		return storage.PutContentObject(tx, types.ContentObject{SHA256: hash, Size: rec.Size})
	}))

	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(installRoot, rec.Path)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(installRoot, rec.Path), content, 0755))

	return trove, rec
}

func TestInstallUnrecognizedFileFormatReturnsError(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-package.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	_, err := mgr.Install(context.Background(), path, Options{})
	assert.Error(t, err)
}

func TestInstallUnknownRepositoryNameReturnsDependencyMissing(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	_, err := mgr.Install(context.Background(), "does-not-exist", Options{})
	require.Error(t, err)
	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, DependencyMissing, txErr.Kind)
}

func TestRemoveRefusesWhenDependentsExist(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	base, _ := installTroveDirectly(t, mgr, store, objects, installRoot, "libfoo", []byte("base"))
	dependent, _ := installTroveDirectly(t, mgr, store, objects, installRoot, "app", []byte("app"))

	require.NoError(t, store.WithTx(context.Background(), func(tx *sql.Tx) error {
		return storage.PutDependency(tx, types.Dependency{TroveID: dependent.ID, Name: base.Name, Kind: types.DependencyRuntime})
	}))

	_, err := mgr.Remove(context.Background(), base.Name)
	require.Error(t, err)
	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, DependencyBreaks, txErr.Kind)
}

func TestRemoveDeletesTroveAndFile(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	trove, rec := installTroveDirectly(t, mgr, store, objects, installRoot, "standalone", []byte("content"))

	cs, err := mgr.Remove(context.Background(), trove.Name)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetApplied, cs.Status)

	_, err = storage.GetTroveByName(store.DB(), trove.Name)
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(installRoot, rec.Path))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRollbackRestoresRemovedFile(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	trove, rec := installTroveDirectly(t, mgr, store, objects, installRoot, "restorable", []byte("original content"))

	removeCS, err := mgr.Remove(context.Background(), trove.Name)
	require.NoError(t, err)

	rolledBack, err := mgr.Rollback(context.Background(), removeCS.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetApplied, rolledBack.Status)

	target, err := storage.GetChangeset(store.DB(), removeCS.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetRolledBack, target.Status)
	require.NotNil(t, target.ReversedBy)
	assert.Equal(t, rolledBack.ID, *target.ReversedBy)

	restored, err := os.ReadFile(filepath.Join(installRoot, rec.Path))
	require.NoError(t, err)
	assert.Equal(t, "original content", string(restored))
}

func TestRollbackRefusesAlreadyReversedChangeset(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	trove, _ := installTroveDirectly(t, mgr, store, objects, installRoot, "twice", []byte("x"))

	removeCS, err := mgr.Remove(context.Background(), trove.Name)
	require.NoError(t, err)
	_, err = mgr.Rollback(context.Background(), removeCS.ID)
	require.NoError(t, err)

	_, err = mgr.Rollback(context.Background(), removeCS.ID)
	require.Error(t, err)
	var txErr *Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, Conflict, txErr.Kind)
}

func TestVerifyReportsInstalledTrove(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	trove, _ := installTroveDirectly(t, mgr, store, objects, installRoot, "verified", []byte("payload"))

	report, err := mgr.Verify(trove.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Zero(t, report.Modified)
	assert.Zero(t, report.Missing)
}

func TestVerifyDetectsModifiedFile(t *testing.T) {
	mgr, store, objects, installRoot := newTestManager(t)
	trove, rec := installTroveDirectly(t, mgr, store, objects, installRoot, "tampered", []byte("payload"))

	require.NoError(t, os.WriteFile(filepath.Join(installRoot, rec.Path), []byte("tampered payload"), 0755))

	report, err := mgr.Verify(trove.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Modified)
}
