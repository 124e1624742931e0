package api

import (
	"context"
	"time"

	"commerce-service/internal/apperror"
	"commerce-service/internal/util"

	"github.com/sethvargo/go-retry"
)

const retryBaseDelay = 25 * time.Millisecond

// retryOnConflict runs fn up to attempts times, backing off exponentially
// with jitter between attempts. Only Conflict errors are retried.
func retryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	backoff := retry.NewExponential(retryBaseDelay)
	backoff = retry.WithMaxRetries(uint64(attempts-1), backoff)
	backoff = retry.WithJitterPercent(20, backoff)

	tries := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if tries > 0 {
			util.CheckoutRetriesTotal.Inc()
		}
		tries++

		err := fn(ctx)
		if apperror.Is(err, apperror.KindConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}
