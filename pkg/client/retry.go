package client

import (
	"context"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/pkg/config"
)

// RetryUpload wraps Upload in cfg's retry policy (spec §4.9 "Retry": "a
// wrapping policy re-attempts the whole operation up to N times on
// transient errors ... Each retry re-opens the connection and reuses
// resume"). Permanent errors (unauthorized, not-found, checksum-mismatch,
// path-traversal, ...) propagate immediately without retrying.
func RetryUpload(ctx context.Context, cfg *config.ClientTransferConfig, opts UploadOptions) error {
	return withRetry(ctx, cfg, func(ctx context.Context, c *Client) error {
		return c.Upload(ctx, opts)
	})
}

// RetryDownload wraps Download in cfg's retry policy, symmetric with
// RetryUpload.
func RetryDownload(ctx context.Context, cfg *config.ClientTransferConfig, opts DownloadOptions) error {
	return withRetry(ctx, cfg, func(ctx context.Context, c *Client) error {
		return c.Download(ctx, opts)
	})
}

// withRetry dials a fresh connection on every attempt — the prior
// connection, if any, is already gone by the time a transient error
// surfaces — and hands it to fn. Resume (spec §4.7 start_upload/
// start_download) is what makes re-dialing cheap instead of redoing the
// whole transfer.
func withRetry(ctx context.Context, cfg *config.ClientTransferConfig, fn func(context.Context, *Client) error) error {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c, dialErr := Dial(ctx, cfg)
		if dialErr != nil {
			lastErr = dialErr
			if !ferrors.IsTransient(dialErr) || attempt == attempts {
				return dialErr
			}
			if !sleepBackoff(ctx, backoff, attempt) {
				return ctx.Err()
			}
			continue
		}

		err := fn(ctx, c)
		_ = c.Close()

		if err == nil {
			return nil
		}
		lastErr = err

		if !ferrors.IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		logger.Warn("transfer attempt %d/%d failed with a transient error, retrying: %v", attempt, attempts, err)
		if !sleepBackoff(ctx, backoff, attempt) {
			return ctx.Err()
		}
	}
	return lastErr
}

// sleepBackoff waits a linearly increasing backoff before the next attempt,
// returning false if ctx is cancelled first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) bool {
	wait := base * time.Duration(attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
