package handlers

import "time"

// terminalRateLimit is the number of client messages allowed per second per
// connection; terminalRateBurst allows short bursts such as paste
// operations. Messages beyond the rate are dropped, not queued.
const (
	terminalRateLimit = 100
	terminalRateBurst = 200
)

// tokenBucket is a per-connection rate limiter. It is only touched from the
// connection's read goroutine, so it needs no locking.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(rate, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(rate),
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	tb.lastRefill = now
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
