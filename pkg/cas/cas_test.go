package cas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetIdempotent(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	hash1, err := store.Put([]byte("hello world"))
	require.NoError(t, err)

	hash2, err := store.Put([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	data, err := store.Get(hash1)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestGetMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)

	hash, err := store.Put([]byte("content"))
	require.NoError(t, err)

	target := filepath.Join(root, "deployed", "file")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("content"), 0644))

	status, err := Verify(target, hash)
	require.NoError(t, err)
	assert.Equal(t, VerifyOK, status)

	require.NoError(t, os.WriteFile(target, []byte("tampered"), 0644))
	status, err = Verify(target, hash)
	require.NoError(t, err)
	assert.Equal(t, VerifyModified, status)

	require.NoError(t, os.Remove(target))
	status, err = Verify(target, hash)
	require.NoError(t, err)
	assert.Equal(t, VerifyMissing, status)
}

func TestDeduplication(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	h1, err := store.Put([]byte("same bytes"))
	require.NoError(t, err)
	h2, err := store.Put([]byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.True(t, store.Has(h1))
}
