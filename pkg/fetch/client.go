package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/truss/pkg/log"
	"github.com/cuemby/truss/pkg/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 30 * time.Second
	defaultBackoff     = 500 * time.Millisecond
)

// Client is an HTTP client with retry/backoff for repository index and
// package downloads.
type Client struct {
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
}

// NewClient returns a Client with the package manager's default retry
// policy: 3 attempts, exponential backoff starting at 500ms, and a
// 30-second timeout covering each Fetch as a whole, retries included.
func NewClient() *Client {
	return &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
}

// Fetch retrieves url's body in full, retrying transient failures
// (network errors, 5xx responses) with exponential backoff. It
// satisfies pkg/repocatalog.Fetcher.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	logger := log.WithComponent("fetch")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DownloadDuration)
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.DownloadRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(1<<(attempt-2))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch: build request for %s: %w", url, err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn().Err(err).Str("url", url).Int("attempt", attempt).Msg("fetch failed, retrying")
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("fetch: %s: server error %d", url, resp.StatusCode)
			logger.Warn().Str("url", url).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("fetch failed, retrying")
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch: %s: client error %d", url, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("fetch: read body of %s: %w", url, err)
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("fetch: %s: exhausted %d attempts: %w", url, c.maxAttempts, lastErr)
}

// Download fetches url and writes it to destPath via a temp+rename,
// verifying the SHA-256 checksum (if non-empty) before the rename
// makes the file visible. A checksum mismatch leaves destPath
// untouched and returns ErrChecksumMismatch.
func (c *Client) Download(ctx context.Context, url, destPath, sha256Sum string) error {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}

	if sha256Sum != "" {
		sum := sha256.Sum256(body)
		got := hex.EncodeToString(sum[:])
		if got != sha256Sum {
			metrics.ChecksumMismatchesTotal.Inc()
			return fmt.Errorf("%w: %s: want %s got %s", ErrChecksumMismatch, url, sha256Sum, got)
		}
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fetch: mkdir %s: %w", dir, err)
	}
	tmp := destPath + ".downloading"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("fetch: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("fetch: rename %s: %w", tmp, err)
	}
	return nil
}
