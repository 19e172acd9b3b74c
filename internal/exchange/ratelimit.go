package exchange

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// keyedLimiter hands out a token bucket per key (symbol, or a fixed "account" key for
// account-wide endpoints), so one hot symbol cannot starve requests for another.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newKeyedLimiter(perMinute int, burst int) *keyedLimiter {
	return &keyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (k *keyedLimiter) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.r, k.burst)
		k.limiters[key] = l
	}
	return l
}

// wait blocks until a token for key is available or ctx is cancelled.
func (k *keyedLimiter) wait(ctx context.Context, key string) error {
	return k.get(key).Wait(ctx)
}
