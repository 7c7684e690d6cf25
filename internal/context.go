package internal

import (
	"context"
	"time"
)

const defaultTimeout = 5 * time.Second

// WithTimeout bounds ctx by d, or by five seconds when d is not positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
