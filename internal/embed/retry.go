package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// RetryConfig controls DownloadWithRetry's exponential backoff.
type RetryConfig struct {
	MaxRetries   int           // Maximum number of retry attempts (not including initial attempt)
	InitialDelay time.Duration // Delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// DownloadWithRetry runs fn with exponential backoff, honoring the
// propagation policy used across the embedding backends: an error
// classified kerrors.IsFailFast (ErrEmbeddingPermanent and friends) is never
// worth retrying, so it's returned on the first attempt instead of burning
// the whole backoff schedule on a call that will keep failing the same way.
// Only a kerrors.IsRetryable (or otherwise unclassified) error consumes a
// retry slot.
func DownloadWithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.Debug("embedding call succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if kerrors.IsFailFast(err) {
			slog.Debug("embedding call failed with a non-retryable error, not retrying",
				slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		slog.Debug("embedding call failed, backing off before retry",
			slog.Int("attempt", attempt), slog.Duration("delay", delay), slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
