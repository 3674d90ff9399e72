package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// limiter throttles model calls to a steady rate with a burst allowance.
// A nil limiter never blocks.
type limiter struct {
	rl *rate.Limiter
}

func newLimiter(rps float64, burst int) *limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire waits for a token. When the wait would outlast ctx's deadline it
// fails at once with an error wrapping context.DeadlineExceeded.
func (l *limiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.rl.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
