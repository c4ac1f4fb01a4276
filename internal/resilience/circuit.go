package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets one probe through to test recovery.
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
	default:
		return "unknown"
	}
}

// BreakerOptions tunes a Breaker. Zero values take sensible defaults.
type BreakerOptions struct {
	// MinRequests observed before the failure ratio is evaluated.
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	// Target labels metrics and logs with the guarded dependency.
	Target string
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Breaker is a failure-ratio circuit breaker.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	target       string
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewBreaker constructs a closed breaker.
func NewBreaker(opts BreakerOptions) *Breaker {
	b := &Breaker{
		state:        Closed,
		minRequests:  opts.MinRequests,
		failureRatio: opts.FailureRatio,
		openFor:      opts.OpenFor,
		target:       strings.TrimSpace(opts.Target),
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if b.minRequests <= 0 {
		b.minRequests = 1
	}
	if b.failureRatio <= 0 {
		b.failureRatio = 0.5
	}
	if b.failureRatio > 1 {
		b.failureRatio = 1
	}
	if b.openFor <= 0 {
		b.openFor = 30 * time.Second
	}
	if b.target == "" {
		b.target = "default"
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.recordStateLocked()
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. Once the cool-off has elapsed an
// open breaker moves to half-open and admits a single probe. A nil breaker
// allows everything.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) >= b.openFor {
			b.changeStateLocked(ctx, HalfOpen)
			return true
		}
		return false
	case HalfOpen:
		// a probe is already in flight
		return false
	default:
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.changeStateLocked(ctx, Open)
	} else if total > b.minRequests*2 {
		// decay so old outcomes stop dominating the ratio
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// Backoff returns an exponential delay for attempt (1-based). jitterPct spreads
// the delay uniformly by up to that fraction in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * float64(d) * jitterPct
	return d + time.Duration(delta)
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	if breakerState != nil {
		breakerState.WithLabelValues(b.target).Set(float64(b.state))
	}
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	if breakerTransitions != nil {
		breakerTransitions.WithLabelValues(b.target, from.String(), to.String()).Inc()
	}
	evt := b.loggerFor(ctx).Info().Str("target", b.target).Str("from_state", from.String()).Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.logger != nil {
		return b.logger
	}
	nop := zerolog.Nop()
	return &nop
}
