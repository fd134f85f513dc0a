package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	canvasRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_rate_limit_remaining",
		Help: "Last observed X-Rate-Limit-Remaining value from Canvas",
	})

	canvasRateLimitPausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_rate_limit_pauses_total",
		Help: "Total number of requests delayed because the Canvas bucket was low",
	}, []string{"level"})
)

// Tracker monitors the Canvas throttling bucket and delays requests when it runs low.
// State is process-local: the bucket belongs to the access token and every
// request of this process reports its current value.
type Tracker struct {
	mu     sync.Mutex
	state  RateLimitState
	logger zerolog.Logger

	// WarningPause and CriticalPause are the delays applied before a request
	// when the bucket is below the warning or critical threshold.
	WarningPause  time.Duration
	CriticalPause time.Duration
}

// NewTracker creates a new rate limit tracker with a full bucket.
func NewTracker(logger zerolog.Logger) *Tracker {
	t := &Tracker{
		logger:        logger,
		WarningPause:  1 * time.Second,
		CriticalPause: 5 * time.Second,
	}
	t.state = RateLimitState{Remaining: DefaultBucket}
	t.state.UpdateHealth()
	return t
}

// GetState returns a copy of the current state. A stale reading is reported
// as a full bucket.
func (t *Tracker) GetState() RateLimitState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state
	if !state.LastUpdate.IsZero() && state.IsStale(StateMaxAge) {
		state.Remaining = DefaultBucket
		state.UpdateHealth()
	}
	return state
}

// UpdateFromHeaders parses the Canvas throttling headers and stores the new state.
// Responses without the headers leave the state unchanged.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.ParseFloat(remainStr, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	var cost float64
	if costStr := strings.TrimSpace(headers.Get(HeaderRequestCost)); costStr != "" {
		cost, err = strconv.ParseFloat(costStr, 64)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRequestCost, err)
		}
	}

	state := RateLimitState{
		Remaining:  remain,
		LastCost:   cost,
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	canvasRateLimitRemaining.Set(remain)

	switch {
	case state.NeedsCriticalPause():
		t.logger.Warn().Float64("remaining", remain).Float64("cost", cost).Msg("Canvas rate limit bucket CRITICAL")
	case state.NeedsThrottling():
		t.logger.Warn().Float64("remaining", remain).Float64("cost", cost).Msg("Canvas rate limit bucket low")
	default:
		t.logger.Debug().Float64("remaining", remain).Float64("cost", cost).Msg("Canvas rate limit state updated")
	}

	return nil
}

// Wait delays the caller according to the current bucket level. It returns
// early with the context error if ctx is done while pausing.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.GetState()

	var pause time.Duration
	var level string
	switch {
	case state.NeedsCriticalPause():
		pause, level = t.CriticalPause, "critical"
	case state.NeedsThrottling():
		pause, level = t.WarningPause, "warning"
	default:
		return nil
	}
	if pause <= 0 {
		return nil
	}

	canvasRateLimitPausesTotal.WithLabelValues(level).Inc()
	t.logger.Warn().
		Float64("remaining", state.Remaining).
		Dur("pause", pause).
		Str("level", level).
		Msg("Throttling Canvas request")

	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
