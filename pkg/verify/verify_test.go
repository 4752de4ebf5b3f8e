package verify

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestTroveReportsOKModifiedAndMissing(t *testing.T) {
	s := openTestStore(t)
	root := t.TempDir()

	okContent := []byte("#!/bin/sh\necho ok\n")
	modifiedOriginal := []byte("original contents")
	modifiedTampered := []byte("tampered contents")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "bin", "ok"), okContent, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr", "bin", "modified"), modifiedTampered, 0o755))
	// "missing" is intentionally never written to disk.

	trove := &types.Trove{Name: "toolbox", Version: "1.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := storage.CreateTrove(tx, trove); err != nil {
			return err
		}
		records := []types.FileRecord{
			{TroveID: trove.ID, Path: "/usr/bin/ok", SHA256: hashOf(okContent), Mode: 0o755},
			{TroveID: trove.ID, Path: "/usr/bin/modified", SHA256: hashOf(modifiedOriginal), Mode: 0o755},
			{TroveID: trove.ID, Path: "/usr/bin/missing", SHA256: hashOf([]byte("gone")), Mode: 0o755},
		}
		for _, r := range records {
			if err := storage.PutFileRecord(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	report, err := Trove(s.DB(), root, "toolbox")
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, report.Modified)
	assert.Equal(t, 1, report.Missing)
	assert.Len(t, report.Files, 3)
}

func TestTroveVerifiesSymlinkTarget(t *testing.T) {
	s := openTestStore(t)
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.Symlink("python3.11", filepath.Join(root, "usr", "bin", "python3")))

	trove := &types.Trove{Name: "python", Version: "3.11", Architecture: "x86_64", Kind: types.TroveKindPackage}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := storage.CreateTrove(tx, trove); err != nil {
			return err
		}
		return storage.PutFileRecord(tx, types.FileRecord{
			TroveID:    trove.ID,
			Path:       "/usr/bin/python3",
			LinkTarget: "python3.11",
			Mode:       0o777,
		})
	})
	require.NoError(t, err)

	report, err := Trove(s.DB(), root, "python")
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 0, report.Modified)
	assert.Equal(t, 0, report.Missing)
}

func TestTroveDetectsRetargetedSymlink(t *testing.T) {
	s := openTestStore(t)
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr", "bin"), 0o755))
	require.NoError(t, os.Symlink("python3.12", filepath.Join(root, "usr", "bin", "python3")))

	trove := &types.Trove{Name: "python", Version: "3.11", Architecture: "x86_64", Kind: types.TroveKindPackage}
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		if err := storage.CreateTrove(tx, trove); err != nil {
			return err
		}
		return storage.PutFileRecord(tx, types.FileRecord{
			TroveID:    trove.ID,
			Path:       "/usr/bin/python3",
			LinkTarget: "python3.11",
			Mode:       0o777,
		})
	})
	require.NoError(t, err)

	report, err := Trove(s.DB(), root, "python")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Modified)
}

func TestAllAggregatesAcrossTroves(t *testing.T) {
	s := openTestStore(t)
	root := t.TempDir()

	content := []byte("hello")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "a"), content, 0o755))

	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		t1 := &types.Trove{Name: "pkg-a", Version: "1.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, t1); err != nil {
			return err
		}
		if err := storage.PutFileRecord(tx, types.FileRecord{TroveID: t1.ID, Path: "/bin/a", SHA256: hashOf(content)}); err != nil {
			return err
		}
		t2 := &types.Trove{Name: "pkg-b", Version: "1.0", Architecture: "x86_64", Kind: types.TroveKindPackage}
		if err := storage.CreateTrove(tx, t2); err != nil {
			return err
		}
		return storage.PutFileRecord(tx, types.FileRecord{TroveID: t2.ID, Path: "/bin/b", SHA256: hashOf([]byte("never written"))})
	})
	require.NoError(t, err)

	report, err := All(s.DB(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, 1, report.Missing)
	assert.Len(t, report.Files, 2)
}

func TestTroveUnknownNameReturnsError(t *testing.T) {
	s := openTestStore(t)
	_, err := Trove(s.DB(), t.TempDir(), "does-not-exist")
	assert.Error(t, err)
}
