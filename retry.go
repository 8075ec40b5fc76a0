package ripple

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultRetryBaseDelay = time.Second

// retryHandler paces upload retries with exponential backoff. Once maxRetries
// delays have been handed out it reports exhaustion until reset.
type retryHandler struct {
	mu         sync.Mutex
	exp        *backoff.ExponentialBackOff
	policy     backoff.BackOff
	maxRetries int
	attempts   int
	lastDelay  time.Duration
}

func newRetryHandler(maxRetries int, baseDelay time.Duration) *retryHandler {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = baseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = baseDelay << 16
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &retryHandler{
		exp:        exp,
		policy:     backoff.WithMaxRetries(exp, uint64(maxRetries)),
		maxRetries: maxRetries,
		lastDelay:  baseDelay,
	}
}

// next returns the delay before the next retry. ok is false once the retry
// budget is spent.
func (r *retryHandler) next() (delay time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.policy.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	r.attempts++
	r.lastDelay = d
	return d, true
}

// pauseDuration is how long uploads stop after exhaustion.
func (r *retryHandler) pauseDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return 2 * r.lastDelay
}

// Attempts returns the retries handed out since the last reset.
func (r *retryHandler) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *retryHandler) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy.Reset()
	r.attempts = 0
	r.lastDelay = r.exp.InitialInterval
}
