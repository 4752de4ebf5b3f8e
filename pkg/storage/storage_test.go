package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTroveCRUD(t *testing.T) {
	s := openTestStore(t)

	trove := &types.Trove{Name: "curl", Version: "8.4.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return CreateTrove(tx, trove)
	})
	require.NoError(t, err)
	assert.NotZero(t, trove.ID)

	got, err := GetTrove(s.DB(), trove.ID)
	require.NoError(t, err)
	assert.Equal(t, "curl", got.Name)

	byName, err := GetTroveByName(s.DB(), "curl")
	require.NoError(t, err)
	assert.Equal(t, trove.ID, byName.ID)

	list, err := ListTroves(s.DB())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return DeleteTrove(tx, trove.ID)
	})
	require.NoError(t, err)

	_, err = GetTrove(s.DB(), trove.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRecordCascadeOnTroveDelete(t *testing.T) {
	s := openTestStore(t)

	trove := &types.Trove{Name: "bash", Version: "5.2", Architecture: "x86_64", Kind: types.TroveKindPackage}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := CreateTrove(tx, trove); err != nil {
			return err
		}
		return PutFileRecord(tx, types.FileRecord{
			TroveID: trove.ID, Path: "/bin/bash", Size: 1024, Mode: 0755, SHA256: "abc123",
		})
	})
	require.NoError(t, err)

	files, err := ListFileRecordsByTrove(s.DB(), trove.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return DeleteTrove(tx, trove.ID)
	})
	require.NoError(t, err)

	files, err = ListFileRecordsByTrove(s.DB(), trove.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestChangesetLifecycle(t *testing.T) {
	s := openTestStore(t)

	cs := &types.Changeset{Description: "install curl"}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return CreateChangeset(tx, cs)
	})
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetPending, cs.Status)

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return SetChangesetStatus(tx, cs.ID, types.ChangesetApplied)
	})
	require.NoError(t, err)

	got, err := GetChangeset(s.DB(), cs.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetApplied, got.Status)
}

func TestDependencyEdgesAndRDepends(t *testing.T) {
	s := openTestStore(t)

	var libcurl, curl *types.Trove
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		libcurl = &types.Trove{Name: "libcurl", Version: "8.4.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := CreateTrove(tx, libcurl); err != nil {
			return err
		}
		curl = &types.Trove{Name: "curl", Version: "8.4.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := CreateTrove(tx, curl); err != nil {
			return err
		}
		return PutDependency(tx, types.Dependency{
			TroveID: curl.ID, Name: "libcurl", Kind: types.DependencyRuntime, Constraint: ">=8.0.0",
		})
	})
	require.NoError(t, err)

	deps, err := ListDependencies(s.DB(), curl.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "libcurl", deps[0].Name)

	dependents, err := ListDependents(s.DB(), "libcurl")
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, "curl", dependents[0].Name)
}

func TestReplaceRepositoryPackagesIsAtomicReplace(t *testing.T) {
	s := openTestStore(t)

	repo := &types.Repository{Name: "main", URL: "https://example.test/repo", Enabled: true, Priority: 10}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return CreateRepository(tx, repo)
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return ReplaceRepositoryPackages(tx, repo.ID, []types.RepositoryPackage{
			{Name: "curl", Version: "8.3.0", Architecture: "x86_64", Metadata: map[string]string{}},
		})
	})
	require.NoError(t, err)

	pkgs, err := ListRepositoryPackagesByName(s.DB(), "curl")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "8.3.0", pkgs[0].Version)

	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return ReplaceRepositoryPackages(tx, repo.ID, []types.RepositoryPackage{
			{Name: "curl", Version: "8.4.0", Architecture: "x86_64", Metadata: map[string]string{}},
		})
	})
	require.NoError(t, err)

	pkgs, err = ListRepositoryPackagesByName(s.DB(), "curl")
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "8.4.0", pkgs[0].Version)
}

func TestPackageDeltaAndStats(t *testing.T) {
	s := openTestStore(t)

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		return PutPackageDelta(tx, types.PackageDelta{
			PackageName: "curl", FromVersion: "8.3.0", ToVersion: "8.4.0",
			DeltaURL: "https://example.test/curl.delta", CompressionRatio: 0.2,
		})
	})
	require.NoError(t, err)

	d, err := GetPackageDelta(s.DB(), "curl", "8.3.0", "8.4.0")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/curl.delta", d.DeltaURL)

	cs := &types.Changeset{Description: "update curl"}
	err = s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := CreateChangeset(tx, cs); err != nil {
			return err
		}
		return PutDeltaStats(tx, types.DeltaStatsEntry{ChangesetID: cs.ID, BytesSaved: 900, DeltasApplied: 1})
	})
	require.NoError(t, err)

	stats, err := GetDeltaStats(s.DB(), cs.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), stats.BytesSaved)
}
