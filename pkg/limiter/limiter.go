// Package limiter bounds the number of concurrently running tasks.
//
// A Limiter admits at most Size tasks at a time. Submit blocks the submitting
// goroutine until a slot is free; waiting submitters are admitted in FIFO
// order. Each submission returns a Future, and Wait joins every task submitted
// so far. Admitted tasks are never cancelled by the limiter.
//
// A Limiter is meant to be created per batch of work, not shared process-wide:
//
//	lim := limiter.New(8)
//	futures := make([]*limiter.Future[[]Row], 0, len(students))
//	for _, s := range students {
//		futures = append(futures, limiter.Submit(ctx, lim, func(ctx context.Context) ([]Row, error) {
//			return fetchRows(ctx, s)
//		}))
//	}
//	lim.Wait()
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of concurrent per-student fetches used for reports.
const DefaultSize = 8

var (
	inFlightGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "progress_limiter_in_flight",
		Help: "Tasks currently running inside limiters",
	}, []string{"limiter"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_limiter_tasks_total",
		Help: "Tasks finished by limiters by outcome",
	}, []string{"limiter", "outcome"})

	queueWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "progress_limiter_queue_wait_seconds",
		Help:    "Time tasks waited for a limiter slot",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"limiter"})
)

// ErrTaskPanicked wraps a panic raised inside a task.
var ErrTaskPanicked = errors.New("task panicked")

// Limiter is a counting semaphore over goroutine tasks.
type Limiter struct {
	name     string
	size     int
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a limiter admitting at most size concurrent tasks. size < 1 is treated as 1.
func New(size int) *Limiter {
	return NewNamed("default", size)
}

// NewNamed creates a limiter whose metrics carry the given name.
func NewNamed(name string, size int) *Limiter {
	if size < 1 {
		size = 1
	}
	return &Limiter{
		name: name,
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Size returns the configured concurrency bound.
func (l *Limiter) Size() int {
	return l.size
}

// InFlight returns the number of tasks currently running.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak returns the highest number of tasks observed running at the same time.
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}

// Wait blocks until every task submitted so far has finished.
func (l *Limiter) Wait() {
	l.wg.Wait()
}

// Future is the eventual outcome of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the task has finished and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit waits for a free slot and runs fn in a new goroutine. If ctx ends
// before a slot is free the future fails with the context error and fn never runs.
func Submit[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	l.wg.Add(1)

	queued := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		f.err = fmt.Errorf("waiting for limiter slot: %w", err)
		tasksTotal.WithLabelValues(l.name, "rejected").Inc()
		close(f.done)
		l.wg.Done()
		return f
	}
	queueWait.WithLabelValues(l.name).Observe(time.Since(queued).Seconds())

	l.enter()
	go func() {
		defer l.wg.Done()
		defer close(f.done)
		defer l.sem.Release(1)
		defer l.leave()

		f.value, f.err = run(ctx, fn)
		outcome := "ok"
		if f.err != nil {
			outcome = "error"
		}
		tasksTotal.WithLabelValues(l.name, outcome).Inc()
	}()

	return f
}

func run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return fn(ctx)
}

func (l *Limiter) enter() {
	n := l.inFlight.Add(1)
	inFlightGauge.WithLabelValues(l.name).Inc()
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (l *Limiter) leave() {
	l.inFlight.Add(-1)
	inFlightGauge.WithLabelValues(l.name).Dec()
}
