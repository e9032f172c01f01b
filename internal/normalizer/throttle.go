package normalizer

import (
	"sync"

	"golang.org/x/time/rate"

	"bsefeed/logger"
)

// UnknownTokenWarner throttles the "unknown token" warning to once per
// token, using the same per-key rate-limit idiom a per-exchange warning
// throttle would, keyed on the token itself instead of exchange/symbol.
type UnknownTokenWarner struct {
	mu       sync.Mutex
	limiters map[uint32]*rate.Limiter
}

// NewUnknownTokenWarner returns a warner ready for use.
func NewUnknownTokenWarner() *UnknownTokenWarner {
	return &UnknownTokenWarner{limiters: make(map[uint32]*rate.Limiter)}
}

// Warn logs "unknown token" for token at most once. Every subsequent call
// for the same token is silently suppressed.
func (w *UnknownTokenWarner) Warn(log *logger.Log, token uint32) {
	w.mu.Lock()
	limiter, seen := w.limiters[token]
	if !seen {
		limiter = rate.NewLimiter(0, 1)
		w.limiters[token] = limiter
	}
	w.mu.Unlock()

	if !limiter.Allow() {
		return
	}

	log.WithComponent("normalizer").WithToken(token).Warn("unknown token")
}
