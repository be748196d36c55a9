package resilience

import (
	"context"
	"time"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// WithTimeout races fn against d and an optional abort via ctx. On
// expiry it returns a *liberr.LibraryError of KindOperationTimeout.
// fn must respect ctx cancellation promptly; WithTimeout cannot forcibly
// stop a goroutine that ignores its context.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		val, err := fn(tctx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil || tctx.Err() == nil {
			return o.val, o.err
		}
	case <-tctx.Done():
	}
	if ctx.Err() != nil {
		return zero, liberr.New(liberr.KindRetryAborted, liberr.CodeRetryAborted, "operation aborted", ctx.Err())
	}
	return zero, liberr.New(liberr.KindOperationTimeout, liberr.CodeOperationTimeout, "operation timed out", tctx.Err())
}
