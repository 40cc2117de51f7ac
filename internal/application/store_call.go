package application

import (
	"context"
	"errors"
	"time"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
)

// storeCall bounds every store interaction with a timeout. Reads get one
// retry after backoff on transport failures; writes never do.
type storeCall struct {
	timeout time.Duration
	backoff time.Duration
}

func (c storeCall) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func read[T any](ctx context.Context, c storeCall, fn func(context.Context) (T, error)) (T, error) {
	v, err := once(ctx, c, fn)
	if err == nil || !entity.IsRetryable(err) || ctx.Err() != nil {
		return v, err
	}
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		var zero T
		return zero, normalizeErr(ctx.Err())
	case <-t.C:
	}
	return once(ctx, c, fn)
}

func write[T any](ctx context.Context, c storeCall, fn func(context.Context) (T, error)) (T, error) {
	return once(ctx, c, fn)
}

func once[T any](ctx context.Context, c storeCall, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := c.bound(ctx)
	defer cancel()
	v, err := fn(callCtx)
	return v, normalizeErr(err)
}

func normalizeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, entity.ErrTimeout) {
		return entity.ErrTimeout
	}
	return err
}

// asDuplicate converts a store constraint violation into the business error.
func asDuplicate(err error) error {
	var cv *entity.ConstraintViolationError
	if errors.As(err, &cv) {
		return &entity.DuplicateIdentityError{Field: cv.Field}
	}
	return err
}
