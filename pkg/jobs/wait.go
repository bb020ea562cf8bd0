package jobs

import (
	"context"
	"time"
)

// WaitConfig bounds the near-synchronous wait of a request on its mutation.
type WaitConfig struct {
	Initial time.Duration
	Budget  time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

// DefaultWaitConfig starts at 200ms and doubles while the total stays within 3s.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{Initial: 200 * time.Millisecond, Budget: 3 * time.Second}
}

// WaitProcessed polls check with exponential backoff. It reports whether the
// mutation was processed before the budget ran out.
func WaitProcessed(ctx context.Context, cfg WaitConfig, check func(ctx context.Context) (bool, error)) (bool, error) {
	if cfg.Initial <= 0 {
		cfg.Initial = 200 * time.Millisecond
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 3 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	interval := cfg.Initial
	var total time.Duration
	for total+interval <= cfg.Budget {
		if err := cfg.Sleep(ctx, interval); err != nil {
			return false, err
		}
		total += interval
		interval *= 2

		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
