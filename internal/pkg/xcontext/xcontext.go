// Package xcontext adapts context.Context to the logging and error
// conventions used across the module.
package xcontext

import (
	"context"
	"errors"

	"github.com/flyte/chromium-pdf-api/internal/pkg/xlog"
	"github.com/flyte/chromium-pdf-api/internal/pkg/xtime"
)

// WithTimeout returns a context bounded by timeoutSeconds and logs the
// deadline it installs.
func WithTimeout(logger xlog.Logger, timeoutSeconds float64) (context.Context, context.CancelFunc) {
	const op string = "xcontext.WithTimeout"
	ctx, cancel := context.WithTimeout(context.Background(), xtime.Duration(timeoutSeconds))
	logger.DebugOpf(op, "context bounded to %.2fs", timeoutSeconds)
	return ctx, cancel
}

// MustHandleError normalizes err against ctx: if the context deadline
// has been exceeded and err doesn't already say so, the deadline is
// reported instead, since it is almost always the actual root cause of
// whatever err describes.
func MustHandleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}
