package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalAppliesDefaults(t *testing.T) {
	cfg, err := Unmarshal([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, cfg.Root)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, DefaultMaxAttempts, cfg.HTTPMaxAttempts)
	assert.Equal(t, DefaultSyncConcurrency, cfg.SyncConcurrency)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Empty(t, cfg.Repositories)
}

func TestUnmarshalOverridesDefaults(t *testing.T) {
	doc := []byte(`
root: /opt/truss
http_timeout: 10s
http_max_attempts: 5
sync_concurrency: 8
log_level: debug
log_json: true
repositories:
  - name: fedora-updates
    url: https://example.test/fedora/updates
    enabled: true
    priority: 10
    gpg_check: true
    gpg_key_url: https://example.test/RPM-GPG-KEY
`)
	cfg, err := Unmarshal(doc)
	require.NoError(t, err)
	assert.Equal(t, "/opt/truss", cfg.Root)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5, cfg.HTTPMaxAttempts)
	assert.Equal(t, 8, cfg.SyncConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	require.Len(t, cfg.Repositories, 1)
	assert.Equal(t, "fedora-updates", cfg.Repositories[0].Name)
	assert.True(t, cfg.Repositories[0].GPGCheck)
}

func TestUnmarshalRejectsInvalidLogLevel(t *testing.T) {
	_, err := Unmarshal([]byte("log_level: verbose\n"))
	assert.Error(t, err)
}

func TestUnmarshalRejectsDuplicateRepositoryNames(t *testing.T) {
	doc := []byte(`
repositories:
  - name: dup
    url: https://a.example.test
  - name: dup
    url: https://b.example.test
`)
	_, err := Unmarshal(doc)
	assert.Error(t, err)
}

func TestUnmarshalRejectsRepositoryMissingURL(t *testing.T) {
	doc := []byte(`
repositories:
  - name: incomplete
`)
	_, err := Unmarshal(doc)
	assert.Error(t, err)
}

func TestLoadFileReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truss.yaml")
	content := []byte("root: " + dir + "\nlog_level: warn\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
