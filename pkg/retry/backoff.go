package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before retry number attempt (0-indexed: the
// delay after the first failure is attempt 0).
//
// A positive serverHint — a retry-after duration reported by the failing
// service — takes precedence over the computed schedule; it is still capped
// at cfg.MaxDelay. Otherwise the delay is
//
//	min(InitialDelay × Multiplier^attempt, MaxDelay)
//
// When cfg.Jitter is set, the result is randomized by ±Jitter×delay so a
// crowd of clients that failed together does not retry in lockstep.
func Backoff(attempt int, cfg Config, serverHint time.Duration) time.Duration {
	cfg = cfg.withDefaults()

	var d time.Duration
	if serverHint > 0 {
		d = serverHint
	} else {
		scaled := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
		if scaled > float64(cfg.MaxDelay) {
			d = cfg.MaxDelay
		} else {
			d = time.Duration(scaled)
		}
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}

	if cfg.Jitter > 0 {
		// Spread across [d·(1−j), d·(1+j)].
		span := cfg.Jitter * float64(d)
		d += time.Duration((rand.Float64()*2 - 1) * span)
		if d < 0 {
			d = 0
		}
	}
	return d
}
