// Package ratelimit tracks the Canvas API throttling bucket and gates requests.
// Canvas reports the remaining quota of the access token in the
// X-Rate-Limit-Remaining header and the cost of the last request in
// X-Request-Cost. Once the bucket is exhausted Canvas answers 403
// "Rate Limit Exceeded", so the client slows down before that happens.
package ratelimit

import (
	"time"
)

// Response headers read by the tracker.
const (
	HeaderRemaining   = "X-Rate-Limit-Remaining"
	HeaderRequestCost = "X-Request-Cost"
)

// Thresholds for rate limit decisions. Canvas buckets start at 700 units.
const (
	// ThresholdCritical applies the long pause when the bucket falls below this value.
	ThresholdCritical = 50.0

	// ThresholdWarning applies the short pause when the bucket falls below this value.
	ThresholdWarning = 150.0

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 300.0

	// DefaultBucket is assumed until the first response is seen.
	DefaultBucket = 700.0
)

// StateMaxAge is how long an observed bucket value is trusted. Canvas refills
// the bucket continuously, so old readings are ignored.
const StateMaxAge = 60 * time.Second

// RateLimitState represents the last observed Canvas throttling state.
type RateLimitState struct {
	// Remaining is the quota left in the bucket (X-Rate-Limit-Remaining).
	Remaining float64 `json:"remaining"`

	// LastCost is the cost charged for the last request (X-Request-Cost).
	LastCost float64 `json:"last_cost"`

	// LastUpdate is when the headers were last read.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalPause returns true if the bucket is nearly exhausted.
func (s *RateLimitState) NeedsCriticalPause() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalPause()
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
