package repocatalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/storage"
	"github.com/cuemby/truss/pkg/types"
)

// Sync implements spec.md §4.3's sync protocol: skip the network round
// trip when the cached index hasn't expired, otherwise fetch, parse,
// and atomically replace the repository's packages (with their
// dependency rows) in a single transaction, leaving prior contents
// intact on any failure. Advertised package deltas are not touched.
func Sync(ctx context.Context, store *storage.Store, fetcher Fetcher, repo *types.Repository, force bool) (int, error) {
	logger := log.WithRepository(repo.Name)

	if !force && repo.MetadataExpire > 0 && !repo.LastSync.IsZero() && time.Since(repo.LastSync) < repo.MetadataExpire {
		count, err := countRepositoryPackages(store.DB(), repo.ID)
		if err == nil {
			logger.Debug().Msg("sync skipped, index not yet expired")
			return count, nil
		}
	}

	pkgs, err := fetchAndParse(ctx, fetcher, repo)
	if err != nil {
		logger.Error().Err(err).Msg("sync failed, prior index retained")
		return 0, fmt.Errorf("repocatalog: sync %s: %w", repo.Name, err)
	}

	now := time.Now().UTC()
	err = store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := storage.ReplaceRepositoryPackages(tx, repo.ID, pkgs); err != nil {
			return err
		}
		return storage.SetRepositoryLastSync(tx, repo.ID, now)
	})
	if err != nil {
		return 0, fmt.Errorf("repocatalog: commit sync %s: %w", repo.Name, err)
	}

	repo.LastSync = now
	logger.Info().Int("packages", len(pkgs)).Msg("repository synced")
	return len(pkgs), nil
}

func countRepositoryPackages(q storage.Queryer, repositoryID int64) (int, error) {
	var n int
	row := q.QueryRow(`SELECT COUNT(*) FROM repository_packages WHERE repository_id = ?`, repositoryID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func fetchAndParse(ctx context.Context, fetcher Fetcher, repo *types.Repository) ([]types.RepositoryPackage, error) {
	format := DetectFormat(repo.Name, repo.URL)

	switch format {
	case FormatFedora:
		return ParseFedora(ctx, repo.URL, fetcher)
	case FormatArch:
		data, err := fetcher.Fetch(ctx, repo.URL)
		if err != nil {
			return nil, err
		}
		return ParseArch(data)
	case FormatDebian:
		data, err := fetcher.Fetch(ctx, repo.URL)
		if err != nil {
			return nil, err
		}
		return ParseDebian(data)
	default:
		data, err := fetcher.Fetch(ctx, repo.URL)
		if err != nil {
			return nil, err
		}
		return ParseJSON(data)
	}
}
