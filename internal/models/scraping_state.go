package models

import "time"

// ScrapingState tracks the dataset refresh job and its blocking state
type ScrapingState struct {
	IsBlocked     bool       `json:"is_blocked"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	Running       bool       `json:"running"`
	LastAttempt   time.Time  `json:"last_attempt"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	LastChecksum  string     `json:"last_checksum,omitempty"`
	StationCount  int        `json:"station_count"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
}

// CanScrape reports whether the cooling period (if any) has passed
func (s *ScrapingState) CanScrape(now time.Time) bool {
	if !s.IsBlocked {
		return true
	}
	if s.BlockedUntil == nil {
		return false
	}
	return now.After(*s.BlockedUntil)
}

// SetBlocked marks scraping as blocked for coolingPeriod
func (s *ScrapingState) SetBlocked(reason string, coolingPeriod time.Duration, now time.Time) {
	s.IsBlocked = true
	s.BlockedReason = reason
	until := now.Add(coolingPeriod)
	s.BlockedUntil = &until
	s.LastAttempt = now
}

// RecordSuccess records a completed refresh
func (s *ScrapingState) RecordSuccess(checksum string, count int, now time.Time) {
	s.SuccessCount++
	s.FailureCount = 0
	s.LastSuccess = &now
	s.LastAttempt = now
	s.LastError = ""
	s.LastChecksum = checksum
	s.StationCount = count
	s.IsBlocked = false
	s.BlockedUntil = nil
	s.BlockedReason = ""
}

// RecordFailure records a failed refresh
func (s *ScrapingState) RecordFailure(err error, now time.Time) {
	s.FailureCount++
	s.LastAttempt = now
	if err != nil {
		s.LastError = err.Error()
	}
}
