package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Backoff:     Linear(5 * time.Second),
		Sleep:       rec.sleep,
	}, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second}
	if len(rec.waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, rec.waits)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], rec.waits[i])
		}
	}
}

func TestDoExhausted(t *testing.T) {
	rec := &sleepRecorder{}
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts: 4,
		Backoff:     Constant(time.Second),
		Sleep:       rec.sleep,
	}, func(ctx context.Context, attempt int) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 4 {
		t.Errorf("expected ExhaustedError with 4 attempts, got %#v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	// no sleep after the last attempt
	if len(rec.waits) != 3 {
		t.Errorf("expected 3 waits, got %d", len(rec.waits))
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable func(error) bool
	}{
		{name: "fatal wrapper", err: &FatalError{Err: errors.New("nope")}},
		{name: "wrapped fatal", err: errors.Join(errors.New("ctx"), &FatalError{Err: errors.New("nope")})},
		{name: "classifier", err: errors.New("nope"), retryable: func(error) bool { return false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sleepRecorder{}
			calls := 0
			err := Do(context.Background(), Config{
				MaxAttempts: 5,
				Backoff:     Linear(time.Second),
				Retryable:   tt.retryable,
				Sleep:       rec.sleep,
			}, func(ctx context.Context, attempt int) error {
				calls++
				return tt.err
			})
			if err != tt.err {
				t.Errorf("expected the original error back, got %v", err)
			}
			if calls != 1 {
				t.Errorf("expected 1 call, got %d", calls)
			}
			if len(rec.waits) != 0 {
				t.Errorf("expected no waits, got %v", rec.waits)
			}
		})
	}
}

func TestDoOnRetry(t *testing.T) {
	var attempts []int
	_ = Do(context.Background(), Config{
		MaxAttempts: 3,
		Backoff:     Linear(time.Millisecond),
		Sleep:       func(context.Context, time.Duration) error { return nil },
		OnRetry: func(attempt int, err error, wait time.Duration) {
			attempts = append(attempts, attempt)
			if wait != time.Duration(attempt)*time.Millisecond {
				t.Errorf("attempt %d: unexpected wait %v", attempt, wait)
			}
		},
	}, func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected OnRetry attempts %v", attempts)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{
		MaxAttempts: 3,
		Backoff:     Constant(time.Hour),
	}, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestSleepZero(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestAdaptiveLimiterAdjusts(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 6, 1, 0.5)
	lim.RecoverAfter = 0

	lim.RateLimited()
	if got := lim.CurrentLimit(); got != 2 {
		t.Errorf("expected 2 after failure, got %v", got)
	}
	lim.RateLimited()
	lim.RateLimited()
	if got := lim.CurrentLimit(); got != 1 {
		t.Errorf("expected floor of 1, got %v", got)
	}
	for range 10 {
		lim.Success()
	}
	if got := lim.CurrentLimit(); got != 6 {
		t.Errorf("expected ceiling of 6, got %v", got)
	}
}

func TestAdaptiveLimiterHoldsAfterRecentFailure(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 1, 10, 1, 0.5)
	lim.RateLimited()
	lim.Success()
	if got := lim.CurrentLimit(); got != 2 {
		t.Errorf("expected rate to stay at 2 right after a failure, got %v", got)
	}
}

func TestDoUsesLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(100, 1, 100, 1, 0.5)
	err := Do(context.Background(), Config{
		MaxAttempts: 2,
		Sleep:       func(context.Context, time.Duration) error { return nil },
		Limiter:     lim,
	}, func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := lim.CurrentLimit(); got != 50 {
		t.Errorf("expected limiter to halve to 50, got %v", got)
	}
}
