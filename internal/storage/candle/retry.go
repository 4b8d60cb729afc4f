// internal/storage/candle/retry.go
package candle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/newthinker/quarry/internal/core"
	"go.uber.org/zap"
)

// EnsureSchemaWithRetry calls EnsureSchema up to attempts times with a fixed delay between tries.
// The backing store may not be reachable yet at process start.
func EnsureSchemaWithRetry(ctx context.Context, store Store, attempts int, delay time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts < 1 {
		attempts = 1
	}

	try := 0
	op := func() error {
		try++
		return store.EnsureSchema(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("candle store not ready, retrying",
			zap.Int("attempt", try),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return core.WrapError(core.ErrSchemaNotReady, fmt.Errorf("after %d attempts: %w", try, err))
	}
	logger.Info("candle store schema ready", zap.Int("attempts", try))
	return nil
}
