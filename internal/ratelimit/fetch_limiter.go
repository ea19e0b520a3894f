package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// FetchLimiter paces outgoing scraper requests: at most maxInFlight at
// once and at least baseDelay (plus random jitter) between starts.
type FetchLimiter struct {
	maxInFlight     int
	currentInFlight int
	mutex           sync.Mutex
	baseDelay       time.Duration
	jitter          time.Duration
	lastRequest     time.Time
}

// NewFetchLimiter creates a limiter for scraping one site
func NewFetchLimiter(maxInFlight int, baseDelay, jitter time.Duration) *FetchLimiter {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &FetchLimiter{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
	}
}

func (fl *FetchLimiter) delay() time.Duration {
	d := fl.baseDelay
	if fl.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(fl.jitter)))
	}
	return d
}

// Acquire waits for a free slot and the pacing delay
func (fl *FetchLimiter) Acquire(ctx context.Context) error {
	fl.mutex.Lock()
	for fl.currentInFlight >= fl.maxInFlight {
		fl.mutex.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
		fl.mutex.Lock()
	}

	wait := fl.delay() - time.Since(fl.lastRequest)
	if !fl.lastRequest.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			fl.mutex.Unlock()
			return ctx.Err()
		case <-timer.C:
		}
	}

	fl.currentInFlight++
	fl.lastRequest = time.Now()
	fl.mutex.Unlock()
	return nil
}

// Release marks a request as completed
func (fl *FetchLimiter) Release() {
	fl.mutex.Lock()
	if fl.currentInFlight > 0 {
		fl.currentInFlight--
	}
	fl.mutex.Unlock()
}

// GetInFlight returns current in-flight request count
func (fl *FetchLimiter) GetInFlight() int {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	return fl.currentInFlight
}
