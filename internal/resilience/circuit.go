package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while the breaker is shedding calls to a target.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State of a Breaker. The numeric value is what the breaker_state gauge reports.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single trial call through after the cool-off.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker guards one downstream target, such as the quote api behind the
// widget client or the bootstrap endpoint quotewatch loads. It opens once
// failures reach failureRatio over at least minRequests calls, stays open for
// openFor, then admits one trial call whose result closes or reopens it.
type Breaker struct {
	mu sync.Mutex

	minRequests  int
	failureRatio float64
	openFor      time.Duration
	target       string
	logger       zerolog.Logger

	state      State
	failed     int
	succeeded  int
	openedAt   time.Time
	trialSince time.Time
}

// NewBreaker applies defaults for non-positive arguments: one request, a 50%
// failure ratio and a 30s cool-off. Ratios above 1 are clamped.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	b := &Breaker{
		minRequests:  max(minRequests, 1),
		failureRatio: min(failureRatio, 1),
		openFor:      openFor,
		logger:       zerolog.Nop(),
	}
	if b.failureRatio <= 0 {
		b.failureRatio = 0.5
	}
	if b.openFor <= 0 {
		b.openFor = 30 * time.Second
	}
	return b
}

// WithTarget names the guarded dependency in metrics and transition logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishStateLocked()
	return b
}

// WithLogger sets the fallback logger; a logger on the call context wins.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// Allow reports whether a call may go out now. A trial that never reports
// back, e.g. because a newer quote cancelled it, is replaced after openFor.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
		b.trialSince = now
		return true
	case HalfOpen:
		if now.Sub(b.trialSince) < b.openFor {
			return false
		}
		b.trialSince = now
		return true
	}
	return true
}

// Report feeds the result of an allowed call back into the breaker.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if success {
		b.succeeded++
	} else {
		b.failed++
	}
	total := b.failed + b.succeeded
	if total < b.minRequests {
		return
	}
	if float64(b.failed)/float64(total) >= b.failureRatio {
		b.moveLocked(ctx, Open)
		return
	}
	// halve the window so old successes do not mask a fresh outage
	if total > 2*b.minRequests {
		b.failed = (b.failed + 1) / 2
		b.succeeded = (b.succeeded + 1) / 2
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Backoff doubles base per attempt, starting at attempt 1, and spreads the
// result by ±jitterPct (0.2 is 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(max(attempt, 1)-1)
	if jitterPct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * jitterPct * float64(d)
	return d + time.Duration(spread)
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failed, b.succeeded = 0, 0
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
		b.trialSince = time.Time{}
	}
	b.publishStateLocked()
	if prev == next {
		return
	}

	target := b.targetLabel()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(target, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishStateLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.targetLabel()).Set(float64(b.state))
	}
}

func (b *Breaker) targetLabel() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
