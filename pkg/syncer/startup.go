package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/terrycain/blob-config-sync/pkg/e"
	"github.com/terrycain/blob-config-sync/pkg/metrics"
	"github.com/terrycain/blob-config-sync/pkg/s"
)

// InitialSync blocks until a forced Sync succeeds and returns the successful result along with the number of
// attempts made. Every failure kind is retried; it only gives up when ctx is cancelled or a bounded policy
// runs out of attempts.
func InitialSync(ctx context.Context, syncer Syncer, policy RetryPolicy) (s.SyncResult, int, error) {
	for attempt := 1; ; attempt++ {
		metrics.StartupAttempt()
		log.Info().Int("attempt", attempt).Msg("Fetching initial config")

		attemptCtx, cancel := withAttemptTimeout(ctx, policy.AttemptTimeout)
		result, err := syncer.Sync(attemptCtx, true)
		cancel()
		if err == nil {
			log.Info().Int("attempt", attempt).Str("hash", result.Hash).Int("bytes", result.Size).Msg("Initial config fetch successful")
			return result, attempt, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, attempt, ctxErr
		}

		if policy.MaxAttempts > 0 && attempt >= policy.MaxAttempts {
			return result, attempt, fmt.Errorf("%w after %d attempts: %s", e.ErrRetriesExhausted, attempt, err.Error())
		}

		retryable := true
		var fetchErr *e.FetchError
		if errors.As(err, &fetchErr) {
			retryable = fetchErr.Retryable()
		}

		delay := policy.Delay(attempt)
		log.Error().Err(err).
			Int("attempt", attempt).
			Bool("retryable", retryable).
			Dur("retry_in", delay).
			Msg("Initial config fetch failed")

		if err = policy.sleep(ctx, delay); err != nil {
			return result, attempt, err
		}
	}
}
