package scraper

import (
	"log"
	"net/http"
	"sync"
	"time"
)

// BreakerStatus is a point-in-time view of a CircuitBreaker
type BreakerStatus struct {
	Open        bool      `json:"open"`
	Failures    int       `json:"failures"`
	Requests    int       `json:"requests"`
	Consecutive int       `json:"consecutive"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
}

// CircuitBreaker stops a scrape run when the site starts refusing us.
// It trips after two blocking responses in a row, or once threshold
// failures pile up over at least minSample requests. After cooldown the
// next caller is let through and the counters restart.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	status BreakerStatus
}

const minSample = 20

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func isBlockingStatus(statusCode int) bool {
	return statusCode == http.StatusForbidden ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.status.Requests++
	cb.status.Consecutive = 0
}

// RecordFailure counts a failed request. statusCode is 0 for transport errors.
func (cb *CircuitBreaker) RecordFailure(statusCode int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := &cb.status
	st.Requests++
	st.Failures++
	st.Consecutive++
	if st.Open {
		return
	}

	switch {
	case st.Consecutive >= 2 && isBlockingStatus(statusCode):
		log.Printf("[CircuitBreaker] OPEN: %d consecutive %d responses, pausing for %v",
			st.Consecutive, statusCode, cb.cooldown)
	case st.Requests >= minSample && st.Failures >= cb.threshold:
		log.Printf("[CircuitBreaker] OPEN: %d/%d requests failed, pausing for %v",
			st.Failures, st.Requests, cb.cooldown)
	default:
		return
	}
	st.Open = true
	st.OpenedAt = cb.now()
}

// CanProceed reports whether a request may be sent
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.status.Open {
		return true
	}
	if cb.now().Sub(cb.status.OpenedAt) < cb.cooldown {
		return false
	}

	log.Printf("[CircuitBreaker] half-open after %v", cb.cooldown)
	cb.status = BreakerStatus{}
	return true
}

func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}
