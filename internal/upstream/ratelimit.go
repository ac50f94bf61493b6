package upstream

import (
	"errors"
	"sync"
	"time"

	"github.com/allaspectsdev/genrelay/internal/config"
)

// ErrRateLimited is returned when the local limit for a provider is
// exhausted. It is transient, so the attempt is retried after backoff.
var ErrRateLimited = errors.New("local rate limit exceeded")

// tokenBucket is a token-bucket limiter for one provider.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(rate float64, burst int, now func() time.Time) *tokenBucket {
	if burst <= 0 {
		burst = max(1, int(rate))
	}
	return &tokenBucket{
		rate:       rate,
		burst:      float64(burst),
		tokens:     float64(burst),
		lastRefill: now(),
		now:        now,
	}
}

// allow consumes one token if available. When it returns false, wait is
// how long until the next token.
func (b *tokenBucket) allow() (ok bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens = min(b.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*b.rate)
	b.lastRefill = now

	if b.tokens < 1 {
		return false, time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

// limiters holds a bucket per provider with a positive rate_limit.
type limiters map[string]*tokenBucket

func newLimiters(providers map[string]config.ProviderConfig, now func() time.Time) limiters {
	l := make(limiters)
	for name, pc := range providers {
		if pc.RateLimit > 0 {
			l[name] = newTokenBucket(pc.RateLimit, pc.RateBurst, now)
		}
	}
	return l
}

func (l limiters) allow(provider string) (bool, time.Duration) {
	b, ok := l[provider]
	if !ok {
		return true, 0
	}
	return b.allow()
}
