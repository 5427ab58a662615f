package session

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/voicecanvas/internal/observe"
	"github.com/MrWong99/voicecanvas/pkg/provider/realtime"
)

// Default connection retry parameters.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// RetryPolicy controls how [Adapter.Connect] retries a failed connection
// attempt. Zero fields take their defaults.
type RetryPolicy struct {
	// MaxAttempts is the total number of connection attempts, including the
	// first. Defaults to 3 if zero. Set to 1 to disable retries.
	MaxAttempts int

	// Backoff is the initial wait between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the wait. Defaults to 30s if zero.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// connectWithRetry calls p.Connect until it succeeds, the policy is
// exhausted or ctx is done. The last connection error is returned.
func connectWithRetry(ctx context.Context, p realtime.Provider, opts realtime.ConnectOptions, policy RetryPolicy) (realtime.SessionHandle, error) {
	policy = policy.withDefaults()
	backoff := policy.Backoff

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("session: connect %s: %w (last error: %v)", p.Name(), err, lastErr)
			}
			return nil, fmt.Errorf("session: connect %s: %w", p.Name(), err)
		}

		h, err := p.Connect(ctx, opts)
		if err == nil {
			if attempt > 1 {
				observe.Logger(ctx).Info("realtime connection established after retry",
					"provider", p.Name(),
					"attempt", attempt,
				)
			}
			return h, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		observe.Logger(ctx).Warn("realtime connection attempt failed",
			"provider", p.Name(),
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"backoff", backoff,
			"err", err,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("session: connect %s: %w (last error: %v)", p.Name(), ctx.Err(), lastErr)
		case <-t.C:
		}

		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}

	return nil, fmt.Errorf("session: connect %s after %d attempt(s): %w", p.Name(), policy.MaxAttempts, lastErr)
}
