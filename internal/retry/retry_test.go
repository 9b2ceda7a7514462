package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"chatanvil/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return ctx.Err()
}

func newTestRetrier(p Policy) (*Retrier, *fakeSleeper) {
	fs := &fakeSleeper{}
	return New(p, WithSleeper(fs.sleep), WithRand(func() float64 { return 0.5 })), fs
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	r, fs := newTestRetrier(Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	calls := 0
	res := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fs.delays)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	r, fs := newTestRetrier(Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute})

	calls := 0
	boom := errors.New("boom")
	res := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	require.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, res.Attempts)
	// no sleep after the final attempt
	assert.Len(t, fs.delays, 3)
}

func TestDo_ZeroRetries(t *testing.T) {
	r, fs := newTestRetrier(Policy{MaxRetries: 0, BaseDelay: time.Second})

	calls := 0
	res := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})

	assert.Error(t, res.Err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"marked", Permanent(errors.New("no"))},
		{"configuration", &llm.ConfigurationError{Provider: "openai", Reason: "missing key"}},
		{"unauthorized", &llm.StatusError{Provider: "openai", StatusCode: http.StatusUnauthorized}},
		{"bad request", &llm.StatusError{Provider: "openai", StatusCode: http.StatusBadRequest}},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, fs := newTestRetrier(Policy{MaxRetries: 5, BaseDelay: time.Second})
			calls := 0
			res := Do(context.Background(), r, func(ctx context.Context) (int, error) {
				calls++
				return 0, tt.err
			})
			require.Error(t, res.Err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, fs.delays)
		})
	}
}

func TestDo_PermanentUnwrapped(t *testing.T) {
	r, _ := newTestRetrier(Policy{MaxRetries: 2})
	inner := errors.New("inner")
	res := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		return 0, Permanent(inner)
	})
	assert.Same(t, inner, res.Err)
}

func TestDo_RetriesTransientStatus(t *testing.T) {
	r, fs := newTestRetrier(Policy{MaxRetries: 2, BaseDelay: time.Millisecond})
	calls := 0
	res := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		calls++
		return 0, &llm.StatusError{Provider: "groq", StatusCode: http.StatusTooManyRequests}
	})
	assert.Error(t, res.Err)
	assert.Equal(t, 3, calls)
	assert.Len(t, fs.delays, 2)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var seen []int
	fs := &fakeSleeper{}
	r := New(Policy{MaxRetries: 2, BaseDelay: time.Second},
		WithSleeper(fs.sleep),
		OnRetry(func(attempt int, err error, delay time.Duration) {
			seen = append(seen, attempt)
		}))

	Do(context.Background(), r, func(ctx context.Context) (int, error) {
		return 0, errors.New("x")
	})
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_CanceledContext(t *testing.T) {
	r, _ := newTestRetrier(Policy{MaxRetries: 3, BaseDelay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := Do(ctx, r, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_RealSleeperHonorsContext(t *testing.T) {
	r := New(Policy{MaxRetries: 3, BaseDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := Do(ctx, r, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.Attempts)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1, nil))
	assert.Equal(t, 2*time.Second, p.Delay(2, nil))
	assert.Equal(t, 4*time.Second, p.Delay(3, nil))
	assert.Equal(t, 5*time.Second, p.Delay(4, nil))

	p.Jitter = true
	p.MaxDelay = time.Minute
	half := func() float64 { return 0.5 }
	assert.Equal(t, 2500*time.Millisecond, p.Delay(1, half))
	assert.Equal(t, 4500*time.Millisecond, p.Delay(2, half))
}

func TestPolicy_DelayWithoutMaxDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	assert.Equal(t, 8*time.Second, p.Delay(4, nil))
	assert.Equal(t, ceilingDelay, p.Delay(200, nil))
	assert.Equal(t, ceilingDelay, p.Delay(5000, nil))

	p.Jitter = true
	assert.Equal(t, ceilingDelay, p.Delay(200, func() float64 { return 0.5 }))

	p = Policy{BaseDelay: time.Second, MaxDelay: time.Minute}
	assert.Equal(t, time.Minute, p.Delay(5000, nil))
}

func TestResult_Unwrap(t *testing.T) {
	v, err := Result[int]{Value: 7, Attempts: 1}.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.True(t, Result[int]{}.OK())
}
