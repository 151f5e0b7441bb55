// Package ratelimit implements admission control for Flowdeck API calls.
// It bounds the number of concurrently in-flight operations, paces
// successive dispatches, and queues excess submissions in a bounded FIFO
// queue with a configurable overflow policy.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for admission control.
var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowdeck_limiter_queue_depth",
		Help: "Number of operations currently queued awaiting admission",
	})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowdeck_limiter_in_flight",
		Help: "Number of operations currently executing",
	})

	rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowdeck_limiter_rejections_total",
		Help: "Total submissions rejected because the queue was full",
	})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowdeck_limiter_evictions_total",
		Help: "Total queued operations evicted to make room for newer ones",
	})
)

// Errors returned to callers whose operation never ran.
var (
	// ErrQueueFull is returned to a submitter when the queue is at capacity
	// and the overflow policy is RejectNewest.
	ErrQueueFull = errors.New("rate limiter queue full")

	// ErrEvicted is returned to a queued caller whose slot was reclaimed
	// for a newer submission under the RejectOldest policy.
	ErrEvicted = errors.New("evicted from rate limiter queue")
)

// OverflowPolicy selects which operation loses when the queue is full.
type OverflowPolicy int

const (
	// RejectNewest rejects the incoming submission immediately.
	RejectNewest OverflowPolicy = iota

	// RejectOldest evicts the oldest queued operation to make room.
	RejectOldest
)

// String returns the policy name for logging.
func (p OverflowPolicy) String() string {
	if p == RejectOldest {
		return "reject_oldest"
	}
	return "reject_newest"
}

// Config holds the limiter configuration. Immutable after New.
type Config struct {
	// MaxConcurrent is the maximum number of operations executing at once.
	MaxConcurrent int

	// MinInterval is the minimum time between successive dispatches,
	// independent of concurrency slack. Zero disables pacing.
	MinInterval time.Duration

	// MaxQueueDepth bounds the number of operations waiting for admission.
	// Zero means no queueing: submissions beyond MaxConcurrent overflow
	// immediately.
	MaxQueueDepth int

	// Overflow selects the behavior when the queue is full.
	Overflow OverflowPolicy
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		MinInterval:   0,
		MaxQueueDepth: 100,
		Overflow:      RejectNewest,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return errors.New("max_concurrent must be >= 1")
	}
	if c.MinInterval < 0 {
		return errors.New("min_interval must be >= 0")
	}
	if c.MaxQueueDepth < 0 {
		return errors.New("max_queue_depth must be >= 0")
	}
	return nil
}

// waiter represents one queued submission. Exactly one of its channels
// is closed: ready when the operation is admitted, evicted when it is
// removed under RejectOldest. A cancelled waiter is marked and skipped.
type waiter struct {
	ready     chan struct{}
	evicted   chan struct{}
	cancelled bool
}

// Limiter is the sole admission-control authority for one client
// instance. All internal state is guarded by a single mutex; it is safe
// for concurrent submission from many goroutines.
type Limiter struct {
	cfg    Config
	logger zerolog.Logger

	mu           sync.Mutex
	running      int
	lastDispatch time.Time
	queue        []*waiter
	timerArmed   bool
}

// New creates a limiter from the given configuration.
func New(cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:    cfg,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}, nil
}

// Schedule admits op under the limiter's concurrency and pacing
// constraints and runs it to completion. Queued submissions are admitted
// in FIFO order. Schedule blocks until op finishes, the submission is
// rejected or evicted, or ctx is cancelled while waiting; op itself is
// never started after a rejection.
func (l *Limiter) Schedule(ctx context.Context, op func() error) error {
	w := &waiter{
		ready:   make(chan struct{}),
		evicted: make(chan struct{}),
	}

	l.mu.Lock()
	var evictee *waiter
	if !l.admissibleLocked() && l.queuedLocked() >= l.cfg.MaxQueueDepth {
		if l.cfg.Overflow == RejectOldest {
			evictee = l.popOldestLocked()
		} else {
			l.mu.Unlock()
			rejectionsTotal.Inc()
			l.logger.Warn().
				Str("policy", l.cfg.Overflow.String()).
				Int("max_queue_depth", l.cfg.MaxQueueDepth).
				Msg("Queue full - rejecting submission")
			return ErrQueueFull
		}
	}
	l.queue = append(l.queue, w)
	queueDepth.Set(float64(l.queuedLocked()))
	l.dispatchLocked()
	l.mu.Unlock()

	if evictee != nil {
		close(evictee.evicted)
		evictionsTotal.Inc()
		l.logger.Warn().
			Str("policy", l.cfg.Overflow.String()).
			Msg("Queue full - evicted oldest queued operation")
	}

	select {
	case <-w.ready:
		// Admitted.
	case <-w.evicted:
		return ErrEvicted
	case <-ctx.Done():
		l.mu.Lock()
		w.cancelled = true
		l.removeLocked(w)
		queueDepth.Set(float64(len(l.queue)))
		l.mu.Unlock()
		// Admission may have raced the cancellation; if so the slot
		// must be released without running op.
		select {
		case <-w.ready:
			l.release()
		default:
		}
		return ctx.Err()
	}

	inFlight.Inc()
	defer func() {
		inFlight.Dec()
		l.release()
	}()
	return op()
}

// queuedLocked returns the number of live (non-cancelled) queued waiters.
func (l *Limiter) queuedLocked() int {
	n := 0
	for _, w := range l.queue {
		if !w.cancelled {
			n++
		}
	}
	return n
}

// admissibleLocked reports whether a new submission could be dispatched
// immediately, bypassing queue-depth accounting. A submission that will
// start right away never occupies a queue slot.
func (l *Limiter) admissibleLocked() bool {
	if l.running >= l.cfg.MaxConcurrent {
		return false
	}
	if l.queuedLocked() > 0 {
		return false
	}
	return l.intervalElapsedLocked()
}

func (l *Limiter) intervalElapsedLocked() bool {
	if l.cfg.MinInterval == 0 || l.lastDispatch.IsZero() {
		return true
	}
	return time.Since(l.lastDispatch) >= l.cfg.MinInterval
}

// dispatchLocked admits queued waiters while a concurrency slot is free
// and the pacing interval has elapsed. When the interval has not yet
// elapsed it arms a timer to resume dispatching; pacing therefore
// strictly governs dispatch cadence regardless of queue depth.
func (l *Limiter) dispatchLocked() {
	for {
		// Drop cancelled waiters at the head.
		for len(l.queue) > 0 && l.queue[0].cancelled {
			l.queue = l.queue[1:]
		}
		if len(l.queue) == 0 {
			queueDepth.Set(0)
			return
		}
		if l.running >= l.cfg.MaxConcurrent {
			return
		}
		if !l.intervalElapsedLocked() {
			l.armTimerLocked()
			return
		}

		w := l.queue[0]
		l.queue = l.queue[1:]
		l.running++
		l.lastDispatch = time.Now()
		queueDepth.Set(float64(len(l.queue)))
		close(w.ready)
	}
}

// armTimerLocked schedules a dispatch pass for when the pacing interval
// next elapses. At most one timer is armed at a time.
func (l *Limiter) armTimerLocked() {
	if l.timerArmed {
		return
	}
	l.timerArmed = true
	wait := l.cfg.MinInterval - time.Since(l.lastDispatch)
	if wait < 0 {
		wait = 0
	}
	time.AfterFunc(wait, func() {
		l.mu.Lock()
		l.timerArmed = false
		l.dispatchLocked()
		l.mu.Unlock()
	})
}

// release returns a concurrency slot and resumes dispatching.
func (l *Limiter) release() {
	l.mu.Lock()
	l.running--
	l.dispatchLocked()
	if l.running == 0 && len(l.queue) == 0 {
		l.logger.Debug().Msg("Limiter idle - queue drained")
	}
	l.mu.Unlock()
}

// popOldestLocked removes and returns the oldest live waiter, or nil.
func (l *Limiter) popOldestLocked() *waiter {
	for i, w := range l.queue {
		if !w.cancelled {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return w
		}
	}
	return nil
}

// removeLocked deletes w from the queue if still present.
func (l *Limiter) removeLocked(target *waiter) {
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}
