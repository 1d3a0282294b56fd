package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidInterval = errors.New("run interval must be positive")

// Loop runs immediately and then once per interval until ctx is canceled. A failed
// run is logged and does not stop the loop.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, now func() time.Time) error {
	if interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx, now()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("Run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
