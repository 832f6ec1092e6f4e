package httpapi

import (
	"sync"
	"time"
)

// limiterSweepAfter is how long an idle bucket survives before the next
// allow call garbage-collects it.
const limiterSweepAfter = 10 * time.Minute

// limiter is a per-client token bucket. Buckets refill continuously at the
// configured rate and are created full, so the first burst of a new client
// always passes.
type limiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newLimiter(perSecond float64, burst int, now func() time.Time) *limiter {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if now == nil {
		now = time.Now
	}
	return &limiter{
		rate:    perSecond,
		burst:   float64(burst),
		now:     now,
		buckets: make(map[string]*bucket),
		swept:   now(),
	}
}

// allow consumes one token from key's bucket, reporting whether one was
// available.
func (l *limiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > limiterSweepAfter {
		l.sweepLocked(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	} else {
		b.tokens += now.Sub(b.last).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepLocked drops buckets idle long enough to have refilled completely.
func (l *limiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.last) > limiterSweepAfter {
			delete(l.buckets, key)
		}
	}
	l.swept = now
}
