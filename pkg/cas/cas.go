package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/truss/pkg/log"
)

// ErrNotFound is returned by Get when the requested hash has no
// object on disk.
var ErrNotFound = errors.New("cas: object not found")

// VerifyStatus classifies the outcome of Verify.
type VerifyStatus string

const (
	VerifyOK       VerifyStatus = "ok"
	VerifyModified VerifyStatus = "modified"
	VerifyMissing  VerifyStatus = "missing"
)

// Store is a content-addressed object store rooted at a directory.
type Store struct {
	root string
}

// Open returns a Store rooted at root, creating the objects/ and tmp/
// directories if they don't already exist.
func Open(root string) (*Store, error) {
	for _, dir := range []string{filepath.Join(root, "objects"), filepath.Join(root, "tmp")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("cas: create %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash[2:])
}

// Has reports whether an object with the given hex sha256 exists.
func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

// Put stores data, returning its hex sha256. A second Put of
// byte-identical content is a no-op beyond the hash computation.
func (s *Store) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if s.Has(hash) {
		return hash, nil
	}

	objPath := s.objectPath(hash)
	if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
		return "", fmt.Errorf("cas: mkdir for %s: %w", hash, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "obj-*")
	if err != nil {
		return "", fmt.Errorf("cas: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("cas: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("cas: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, objPath); err != nil {
		// Another writer may have raced us to the same hash; that's
		// fine since the content is identical by construction.
		if s.Has(hash) {
			return hash, nil
		}
		return "", fmt.Errorf("cas: rename into place: %w", err)
	}

	log.WithComponent("cas").Debug().Str("hash", hash).Int("bytes", len(data)).Msg("stored object")
	return hash, nil
}

// PutStream is like Put but reads from r, useful for large payloads
// the caller doesn't want to buffer twice.
func (s *Store) PutStream(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("cas: read stream: %w", err)
	}
	return s.Put(data)
}

// Get returns the content stored under hash.
func (s *Store) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cas: read %s: %w", hash, err)
	}
	return data, nil
}

// OpenObject returns a reader for the object stored under hash. The caller
// must close it.
func (s *Store) OpenObject(hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cas: open %s: %w", hash, err)
	}
	return f, nil
}

// Verify stream-hashes the file at targetPath and compares it against
// expectedHash.
func Verify(targetPath, expectedHash string) (VerifyStatus, error) {
	f, err := os.Open(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyMissing, nil
		}
		return "", fmt.Errorf("cas: open %s: %w", targetPath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("cas: hash %s: %w", targetPath, err)
	}

	if hex.EncodeToString(h.Sum(nil)) != expectedHash {
		return VerifyModified, nil
	}
	return VerifyOK, nil
}

// RemoveObject deletes the object for hash. Callers (maintenance only)
// are responsible for the reference-count guarantee described in
// spec.md §3.
func (s *Store) RemoveObject(hash string) error {
	if err := os.Remove(s.objectPath(hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cas: remove %s: %w", hash, err)
	}
	return nil
}
