// Package retry runs a remote operation up to MaxRetries+1 times with
// exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"chatanvil/internal/llm"
	"chatanvil/internal/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
)

// Policy controls how often and how long to wait between attempts.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Jitter switches to (2^attempt + rand[0,1)) * BaseDelay instead of
	// BaseDelay * 2^(attempt-1).
	Jitter bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// ceilingDelay bounds Delay when MaxDelay is unset.
const ceilingDelay = 24 * time.Hour

// Delay returns the wait before retry number n (1-based), capped at
// MaxDelay, or at ceilingDelay when MaxDelay is zero.
func (p Policy) Delay(n int, rnd func() float64) time.Duration {
	if n < 1 {
		n = 1
	}
	var f float64
	if p.Jitter {
		j := 0.0
		if rnd != nil {
			j = rnd()
		}
		f = (math.Pow(2, float64(n)) + j) * float64(p.BaseDelay)
	} else {
		f = float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	}

	limit := p.MaxDelay
	if limit <= 0 {
		limit = ceilingDelay
	}
	// compare as floats: converting an out-of-range value to Duration overflows
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= float64(limit) {
		return limit
	}
	return time.Duration(f)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Do stops without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried: explicitly marked
// errors, configuration and message errors, cancellation, and vendor
// status codes that will not change on a second try.
func IsPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var ce *llm.ConfigurationError
	if errors.As(err, &ce) {
		return true
	}
	var me *llm.InvalidMessageError
	if errors.As(err, &me) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var se *llm.StatusError
	if errors.As(err, &se) {
		return se.Permanent()
	}
	return false
}

// Result is the outcome of Do: either Value, or Err after Attempts calls.
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value and the terminal error.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Retrier applies a Policy. The zero value is not usable; use New.
type Retrier struct {
	policy  Policy
	sleep   Sleeper
	rand    func() float64
	log     *logger.Logger
	name    string
	onRetry []func(attempt int, err error, delay time.Duration)
}

type Option func(*Retrier)

// WithSleeper replaces the real timer, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

func WithRand(f func() float64) Option {
	return func(r *Retrier) { r.rand = f }
}

func WithLogger(l *logger.Logger, name string) Option {
	return func(r *Retrier) {
		r.log = l
		r.name = name
	}
}

// OnRetry registers a callback run before each backoff sleep.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) { r.onRetry = append(r.onRetry, fn) }
}

func New(p Policy, opts ...Option) *Retrier {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	r := &Retrier{
		policy: p,
		sleep:  sleepContext,
		rand:   rand.Float64,
		log:    logger.Discard(),
		name:   "retry",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do calls op until it succeeds, returns a permanent error, or the retry
// budget is spent. There is no sleep after the final attempt.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) Result[T] {
	var zero T
	attempts := r.policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Value: zero, Attempts: attempt - 1, Err: err}
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.log.Info("[%s] succeeded on attempt %d", r.name, attempt)
			}
			return Result[T]{Value: v, Attempts: attempt}
		}
		lastErr = err

		if IsPermanent(err) {
			r.log.Debug("[%s] attempt %d failed permanently: %v", r.name, attempt, err)
			return Result[T]{Value: zero, Attempts: attempt, Err: unwrapPermanent(err)}
		}
		if attempt == attempts {
			break
		}

		delay := r.policy.Delay(attempt, r.rand)
		r.log.Warn("[%s] attempt %d/%d failed: %v - retrying in %s", r.name, attempt, attempts, err, delay)
		for _, fn := range r.onRetry {
			fn(attempt, err, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return Result[T]{Value: zero, Attempts: attempt, Err: err}
		}
	}

	r.log.Error("[%s] all %d attempts failed: %v", r.name, attempts, lastErr)
	return Result[T]{Value: zero, Attempts: attempts, Err: lastErr}
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) && pe == err {
		return pe.err
	}
	return err
}
