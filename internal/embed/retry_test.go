package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDownloadWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := DownloadWithRetry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDownloadWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := DownloadWithRetry(context.Background(), fastRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return kerrors.EmbeddingTransient("server busy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDownloadWithRetry_StopsImmediatelyOnFailFastError(t *testing.T) {
	calls := 0
	err := DownloadWithRetry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return kerrors.EmbeddingPermanent("model not found", nil)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrEmbeddingPermanent))
	assert.Equal(t, 1, calls, "a fail-fast error must not consume the retry budget")
}

func TestDownloadWithRetry_ExhaustsRetriesOnPersistentTransientError(t *testing.T) {
	cfg := fastRetryConfig()
	calls := 0
	err := DownloadWithRetry(context.Background(), cfg, func() error {
		calls++
		return kerrors.EmbeddingTransient("always busy", nil)
	})
	require.Error(t, err)
	assert.Equal(t, cfg.MaxRetries+1, calls)
}

func TestDownloadWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := DownloadWithRetry(ctx, cfg, func() error {
		calls++
		return kerrors.EmbeddingTransient("busy", nil)
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, cfg.MaxRetries+1)
}
