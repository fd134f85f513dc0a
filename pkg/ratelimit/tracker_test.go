package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewTracker_StartsHealthy(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())

	state := tracker.GetState()
	if state.Remaining != DefaultBucket {
		t.Errorf("Remaining = %v, want %v", state.Remaining, DefaultBucket)
	}
	if !state.IsHealthy {
		t.Error("new tracker should be healthy")
	}
}

func TestUpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		remain        string
		cost          string
		wantErr       bool
		wantRemaining float64
	}{
		{name: "healthy", remain: "650.25", cost: "1.5", wantRemaining: 650.25},
		{name: "low", remain: "90", cost: "", wantRemaining: 90},
		{name: "missing headers keep state", remain: "", cost: "", wantRemaining: DefaultBucket},
		{name: "invalid remaining", remain: "lots", wantErr: true, wantRemaining: DefaultBucket},
		{name: "invalid cost", remain: "500", cost: "cheap", wantErr: true, wantRemaining: DefaultBucket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(zerolog.Nop())
			headers := http.Header{}
			if tt.remain != "" {
				headers.Set(HeaderRemaining, tt.remain)
			}
			if tt.cost != "" {
				headers.Set(HeaderRequestCost, tt.cost)
			}

			err := tracker.UpdateFromHeaders(headers)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := tracker.GetState().Remaining; got != tt.wantRemaining {
				t.Errorf("Remaining = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}

func TestGetState_StaleReadingIgnored(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	tracker.state = RateLimitState{Remaining: 5, LastUpdate: time.Now().Add(-2 * StateMaxAge)}

	if got := tracker.GetState().Remaining; got != DefaultBucket {
		t.Errorf("stale state Remaining = %v, want %v", got, DefaultBucket)
	}
}

func TestWait_PausesWhenLow(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	tracker.WarningPause = 20 * time.Millisecond
	tracker.CriticalPause = 40 * time.Millisecond

	headers := http.Header{}
	headers.Set(HeaderRemaining, "100")
	if err := tracker.UpdateFromHeaders(headers); err != nil {
		t.Fatalf("UpdateFromHeaders: %v", err)
	}

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v, want >= 20ms", elapsed)
	}
}

func TestWait_HealthyDoesNotPause(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	tracker.WarningPause = time.Hour

	start := time.Now()
	if err := tracker.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("healthy Wait took %v", elapsed)
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	tracker := NewTracker(zerolog.Nop())
	tracker.CriticalPause = time.Hour

	headers := http.Header{}
	headers.Set(HeaderRemaining, "1")
	_ = tracker.UpdateFromHeaders(headers)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tracker.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait error = %v, want deadline exceeded", err)
	}
}
