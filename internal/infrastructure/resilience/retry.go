package resilience

import (
	"context"
	"log/slog"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func (c RetryConfig) normalize() RetryConfig {
	out := c
	def := DefaultRetryConfig()
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = def.InitialBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.Multiplier < 1.0 {
		out.Multiplier = def.Multiplier
	}
	return out
}

// Retrier re-runs short adapter calls (queue publishes, metadata fetches)
// on retryable errors. Long-running job retries belong to the task engine,
// and AI call fallback belongs to the gateway; neither uses this.
type Retrier struct {
	cfg RetryConfig
}

func NewRetrier(cfg RetryConfig) *Retrier {
	return &Retrier{cfg: cfg.normalize()}
}

func (r *Retrier) Do(ctx context.Context, operation string, classifier Classifier, fn func(context.Context) error) error {
	if classifier == nil {
		classifier = func(error) Classification {
			return Classification{RecordFailure: true}
		}
	}

	backoff := r.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classifier(lastErr).Retryable || attempt == r.cfg.MaxAttempts {
			return lastErr
		}

		wait := backoff
		if wait > r.cfg.MaxBackoff {
			wait = r.cfg.MaxBackoff
		}
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * r.cfg.Multiplier)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
	return lastErr
}
