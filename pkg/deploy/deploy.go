package deploy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/truss/pkg/cas"
	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/types"
)

// Deployer writes CAS objects onto an install root.
type Deployer struct {
	store      *cas.Store
	installRoot string
}

// NewDeployer creates a Deployer that resolves every target path
// relative to installRoot.
func NewDeployer(store *cas.Store, installRoot string) *Deployer {
	return &Deployer{store: store, installRoot: installRoot}
}

// target resolves an absolute package path against the install root,
// the same way Archive.writeObject resolves dists paths against the
// archive root.
func (d *Deployer) target(path string) string {
	return filepath.Join(d.installRoot, path)
}

// Deploy writes rec's content from the CAS onto the filesystem. For a
// symlink record it recreates the link instead of writing bytes.
func (d *Deployer) Deploy(rec types.FileRecord) error {
	target := d.target(rec.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("deploy: mkdir for %s: %w", rec.Path, err)
	}

	if rec.IsSymlink() {
		_ = os.Remove(target)
		if err := os.Symlink(rec.LinkTarget, target); err != nil {
			return fmt.Errorf("deploy: symlink %s -> %s: %w", target, rec.LinkTarget, err)
		}
		return nil
	}

	data, err := d.store.Get(rec.SHA256)
	if err != nil {
		return fmt.Errorf("deploy: read object %s: %w", rec.SHA256, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".truss-deploy-*")
	if err != nil {
		return fmt.Errorf("deploy: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("deploy: write temp file: %w", err)
	}
	if err := tmp.Chmod(os.FileMode(rec.Mode)); err != nil {
		tmp.Close()
		return fmt.Errorf("deploy: chmod %s: %w", rec.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("deploy: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("deploy: rename into place %s: %w", target, err)
	}

	applyOwnership(target, rec.Owner, rec.Group)

	log.WithComponent("deploy").Debug().Str("path", rec.Path).Str("hash", rec.SHA256).Msg("deployed file")
	return nil
}

// DeployAll deploys files in the given order, stopping at the first
// error so the Transaction Manager can compensate what was already
// written (spec.md §4.6).
func (d *Deployer) DeployAll(recs []types.FileRecord) (deployed []types.FileRecord, err error) {
	for _, rec := range recs {
		if err = d.Deploy(rec); err != nil {
			return deployed, err
		}
		deployed = append(deployed, rec)
	}
	return deployed, nil
}

// Remove deletes the file at rec.Path from the filesystem. Missing
// files are not an error: removal is idempotent.
func (d *Deployer) Remove(rec types.FileRecord) error {
	target := d.target(rec.Path)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deploy: remove %s: %w", rec.Path, err)
	}
	return nil
}

// Verify reconciles the on-disk file against rec's recorded hash.
func (d *Deployer) Verify(rec types.FileRecord) (cas.VerifyStatus, error) {
	if rec.IsSymlink() {
		link, err := os.Readlink(d.target(rec.Path))
		if err != nil {
			if os.IsNotExist(err) {
				return cas.VerifyMissing, nil
			}
			return "", err
		}
		if link != rec.LinkTarget {
			return cas.VerifyModified, nil
		}
		return cas.VerifyOK, nil
	}
	return cas.Verify(d.target(rec.Path), rec.SHA256)
}
