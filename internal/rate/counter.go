package rate

import (
	"context"
	"time"
)

// Counter is a sliding-window attempt counter keyed by an opaque identity.
//
// Allow admits an attempt only when fewer than max attempts were recorded in
// [now-window, now], and records the admitted attempt in the same atomic step.
// Record adds one attempt unconditionally.
type Counter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error)
	Record(ctx context.Context, key string) error
}

func validWindow(window time.Duration, max int) error {
	if window <= 0 || max <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
