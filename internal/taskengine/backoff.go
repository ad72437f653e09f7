package taskengine

import (
	"math/rand"
	"time"
)

// backoffDelay returns the wait before retry number attempt (1-based),
// growing as base·2^(attempt-1) with ±25% jitter, capped. The jitter band
// is narrower than the doubling, so delays never decrease between attempts.
func backoffDelay(base, cap time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if cap > 0 && delay >= cap {
		// At the cap the schedule is flat; skipping jitter here keeps
		// delays non-decreasing across attempts.
		return cap
	}

	if rng != nil && delay > 0 {
		skew := time.Duration(rng.Int63n(int64(delay)/2+1)) - delay/4
		delay += skew
	}
	if cap > 0 && delay > cap {
		delay = cap
	}
	return delay
}
