package facade

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/truss/pkg/config"
)

func openTestFacade(t *testing.T) *Facade {
	t.Helper()
	cfg, err := config.Unmarshal([]byte("root: " + t.TempDir()))
	require.NoError(t, err)
	f, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestOpenCreatesStateAndObjectStores(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Unmarshal([]byte("root: " + dir))
	require.NoError(t, err)

	f, err := Open(cfg)
	require.NoError(t, err)
	defer f.Close()

	assert.FileExists(t, filepath.Join(dir, "state.db"))
	assert.DirExists(t, filepath.Join(dir, "cas", "objects"))
}

func TestRepoAddListEnableDisable(t *testing.T) {
	f := openTestFacade(t)
	ctx := context.Background()

	repo, err := f.RepoAdd(ctx, "local-test", "https://repo.example.test/updates", 10, false, "")
	require.NoError(t, err)
	assert.NotZero(t, repo.ID)

	repos, err := f.RepoList()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.True(t, repos[0].Enabled)

	require.NoError(t, f.RepoDisable(ctx, repo.ID))
	repos, err = f.RepoList()
	require.NoError(t, err)
	assert.False(t, repos[0].Enabled)

	require.NoError(t, f.RepoEnable(ctx, repo.ID))
	repos, err = f.RepoList()
	require.NoError(t, err)
	assert.True(t, repos[0].Enabled)

	require.NoError(t, f.RepoRemove(ctx, repo.ID))
	repos, err = f.RepoList()
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestQueryUnknownTroveReturnsError(t *testing.T) {
	f := openTestFacade(t)
	_, err := f.Query("nonexistent")
	assert.Error(t, err)
}

func TestListEmptyStoreReturnsNoTroves(t *testing.T) {
	f := openTestFacade(t)
	troves, err := f.List()
	require.NoError(t, err)
	assert.Empty(t, troves)
}

func TestWhatBreaksUnknownTroveReturnsError(t *testing.T) {
	f := openTestFacade(t)
	_, err := f.WhatBreaks("nonexistent")
	assert.Error(t, err)
}
