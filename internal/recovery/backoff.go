package recovery

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays. One policy instance is shared by every
// component that retries, so thresholds and delays cannot drift apart.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Delay returns the wait before the given attempt (0-based): base * 2^attempt
// capped at Max, plus up to one Base of random jitter when enabled.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}

	if p.Jitter && p.Base > 0 {
		d += time.Duration(rand.Int63n(int64(p.Base)))
	}

	return d
}

// JitterBound returns the maximum jitter Delay can add.
func (p BackoffPolicy) JitterBound() time.Duration {
	if !p.Jitter {
		return 0
	}
	return p.Base
}
