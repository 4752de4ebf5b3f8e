/*
Package fetch provides the HTTP client and bounded concurrency pool
used to retrieve repository indices and package payloads.

Client retries transient failures with exponential backoff (3 attempts
by default) and verifies a SHA-256 checksum before an atomic
temp+rename write makes a downloaded file visible. Pool bounds how many
repository syncs or package downloads run at once, built on
golang.org/x/sync/errgroup so a failing download cancels its siblings
rather than leaving the fan-out to run to completion pointlessly.

	client := fetch.NewClient()
	pool := fetch.NewPool(4)
	err := pool.Run(ctx, len(repos), func(ctx context.Context, i int) error {
		_, err := repocatalog.Sync(ctx, store, client, repos[i], false)
		return err
	})
*/
package fetch
