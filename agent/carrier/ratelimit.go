package carrier

import (
	"sync"
	"time"
)

// tokenBucket throttles outbound carrier calls. Tokens refill
// continuously at the configured per-minute rate; capacity equals one
// minute's allowance.
type tokenBucket struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	burst  float64
	tokens float64
	last   time.Time
}

func newTokenBucket(perMinute int) *tokenBucket {
	if perMinute <= 0 {
		return nil
	}
	return &tokenBucket{
		rate:   float64(perMinute) / 60,
		burst:  float64(perMinute),
		tokens: float64(perMinute),
		last:   time.Now(),
	}
}

// allow consumes one token if available. A nil bucket never limits.
func (b *tokenBucket) allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
