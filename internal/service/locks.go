package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commerce-service/internal/apperror"
	"commerce-service/internal/models"
	"commerce-service/internal/store"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 10 * time.Second
	lockAttempts    = 20
	lockRetryPeriod = 50 * time.Millisecond
)

// UserLocks serializes cart mutations and checkouts of one user across
// instances. The cart row lock taken inside each transaction still applies
// when no Locker is configured.
type UserLocks struct {
	locker Locker
	ttl    time.Duration
	logger *zap.Logger
}

// NewUserLocks creates per-user locks backed by locker, which may be nil
func NewUserLocks(locker Locker, ttl time.Duration, logger *zap.Logger) *UserLocks {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &UserLocks{locker: locker, ttl: ttl, logger: logger}
}

var errLockBusy = errors.New("lock held by another request")

func userLockKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// Acquire blocks until the user's lock is held and returns its release func
func (l *UserLocks) Acquire(ctx context.Context, userID int64) (func(), error) {
	noop := func() {}
	if l == nil || l.locker == nil {
		return noop, nil
	}

	key := userLockKey(userID)
	backoff := retry.WithMaxRetries(lockAttempts-1, retry.NewConstant(lockRetryPeriod))

	var token string
	degraded := false
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		held, ok, err := l.locker.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			degraded = true
			l.logger.Warn("Distributed lock unavailable, relying on row locks",
				zap.Int64("user_id", userID),
				zap.Error(err))
			return nil
		}
		if !ok {
			return retry.RetryableError(errLockBusy)
		}
		token = held
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindConflict, err, "cart is being modified by another request")
	}
	if degraded {
		return noop, nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.locker.ReleaseLock(releaseCtx, key, token); err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// storeError converts repository failures into typed errors
func storeError(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case apperror.As(err) != nil:
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperror.NotFound(notFound)
	case errors.Is(err, models.ErrInvalidQuantity):
		return apperror.Wrap(apperror.KindValidation, err, "quantity must be at least 1")
	case store.IsConcurrencyError(err):
		return apperror.Wrap(apperror.KindConflict, err, "stock changed concurrently, please retry")
	default:
		return apperror.Wrap(apperror.KindInternal, err, "internal error")
	}
}

func failureReason(err error) string {
	return strings.ToLower(string(apperror.KindOf(err)))
}
