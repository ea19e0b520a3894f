package ratelimit

import (
	"sync"
	"time"
)

// window counts events over a trailing period
type window struct {
	period time.Duration
	limit  int
	events []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.period)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

func (w *window) full() bool {
	return w.limit > 0 && len(w.events) >= w.limit
}

func (w *window) remaining() int {
	if w.limit <= 0 {
		return -1
	}
	if r := w.limit - len(w.events); r > 0 {
		return r
	}
	return 0
}

type clientWindows struct {
	minute, hour, day window
	lastSeen          time.Time
}

// RateLimiter enforces per-client minute, hour and day limits.
// A zero limit disables that window.
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool

	clients map[string]*clientWindows
	now     func() time.Time
	mu      sync.Mutex
}

// NewRateLimiter creates a new rate limiter with the given limits
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		clients:           make(map[string]*clientWindows),
		now:               time.Now,
	}
}

func (rl *RateLimiter) windowsFor(key string) *clientWindows {
	cw, ok := rl.clients[key]
	if !ok {
		cw = &clientWindows{
			minute: window{period: time.Minute, limit: rl.requestsPerMinute},
			hour:   window{period: time.Hour, limit: rl.requestsPerHour},
			day:    window{period: 24 * time.Hour, limit: rl.requestsPerDay},
		}
		rl.clients[key] = cw
	}
	return cw
}

// Allow records a request from key and reports whether it is within limits
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cw := rl.windowsFor(key)
	cw.lastSeen = now
	cw.minute.prune(now)
	cw.hour.prune(now)
	cw.day.prune(now)

	if cw.minute.full() || cw.hour.full() || cw.day.full() {
		return false
	}

	cw.minute.events = append(cw.minute.events, now)
	cw.hour.events = append(cw.hour.events, now)
	cw.day.events = append(cw.day.events, now)
	return true
}

// Sweep drops clients idle for longer than a day
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-24 * time.Hour)
	removed := 0
	for key, cw := range rl.clients {
		if cw.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// GetStats returns usage for one client
func (rl *RateLimiter) GetStats(key string) Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cw := rl.windowsFor(key)
	cw.minute.prune(now)
	cw.hour.prune(now)
	cw.day.prune(now)

	return Stats{
		Enabled:             true,
		Clients:             len(rl.clients),
		RequestsLastMinute:  len(cw.minute.events),
		RequestsLastHour:    len(cw.hour.events),
		RequestsLastDay:     len(cw.day.events),
		RemainingThisMinute: cw.minute.remaining(),
		RemainingThisHour:   cw.hour.remaining(),
		RemainingThisDay:    cw.day.remaining(),
	}
}

// Stats contains rate limiter statistics. Remaining is -1 for an
// unlimited window.
type Stats struct {
	Enabled             bool `json:"enabled"`
	Clients             int  `json:"clients"`
	RequestsLastMinute  int  `json:"requests_last_minute"`
	RequestsLastHour    int  `json:"requests_last_hour"`
	RequestsLastDay     int  `json:"requests_last_day"`
	RemainingThisMinute int  `json:"remaining_this_minute"`
	RemainingThisHour   int  `json:"remaining_this_hour"`
	RemainingThisDay    int  `json:"remaining_this_day"`
}

// Reset clears all tracked requests
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients = make(map[string]*clientWindows)
}
