package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// newTestExecutor создаёт Executor с мгновенным sleep.
func newTestExecutor(policy Policy, refresher CredentialRefresher) (*Executor, *[]time.Duration) {
	e := New(Config{Policy: policy, Refresher: refresher})
	var delays []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestRun_SucceedsAfterRetryableFailures(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxRetries: 3}, nil)

	calls := 0
	result, err := Run(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", domain.NewTaskError(domain.ErrCodeNetwork, "connection reset", true)
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	// k=2 retryable failures → ровно k+1 = 3 вызова
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRun_NonRetryableSingleAttempt(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxRetries: 5}, nil)

	calls := 0
	_, err := Run(context.Background(), e, func(context.Context) (string, error) {
		calls++
		return "", domain.NewValidationError("empty input")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error should invoke body exactly once, got %d", calls)
	}

	taskErr, ok := domain.AsTaskError(err)
	if !ok {
		t.Fatalf("expected TaskError, got %T", err)
	}
	if taskErr.Retryable {
		t.Error("error should be marked non-retryable")
	}
	if taskErr.Attempts != 1 {
		t.Errorf("expected attempts=1, got %d", taskErr.Attempts)
	}
}

func TestRun_ExhaustsRetries(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxRetries: 2}, nil)

	calls := 0
	_, err := Run(context.Background(), e, func(context.Context) (string, error) {
		calls++
		return "", domain.NewTaskError(domain.ErrCodeNetwork, "unreachable", true)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if !IsExhausted(err) {
		t.Errorf("expected retries-exhausted marker, got %v", err)
	}
	// первая попытка + 2 retry
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRun_ExhaustionKeepsTaskErrorInChain(t *testing.T) {
	e, _ := newTestExecutor(Policy{MaxRetries: 2}, nil)

	_, err := Run(context.Background(), e, func(context.Context) (string, error) {
		return "", domain.NewTaskError(domain.ErrCodeNetwork, "unreachable", true)
	})

	// Маркер внешний, TaskError достаётся из-под него
	if !IsExhausted(err) {
		t.Fatalf("expected retries-exhausted marker, got %v", err)
	}
	taskErr, ok := domain.AsTaskError(err)
	if !ok {
		t.Fatalf("expected TaskError in chain, got %T", err)
	}
	if taskErr.Code != domain.ErrCodeNetwork {
		t.Errorf("expected NETWORK_ERROR, got %s", taskErr.Code)
	}
	if taskErr.Attempts != 3 {
		t.Errorf("expected attempts=3, got %d", taskErr.Attempts)
	}
}

func TestRun_ExponentialBackoff(t *testing.T) {
	e, delays := newTestExecutor(Policy{
		MaxRetries:    3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}, nil)

	_, _ = Run(context.Background(), e, func(context.Context) (string, error) {
		return "", domain.NewTaskError(domain.ErrCodeNetwork, "down", true)
	})

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(*delays) != len(expected) {
		t.Fatalf("expected %d delays, got %d", len(expected), len(*delays))
	}
	for i, want := range expected {
		if (*delays)[i] != want {
			t.Errorf("delay %d: expected %v, got %v", i, want, (*delays)[i])
		}
	}
}

func TestRun_RetryAfterHintOverridesBackoff(t *testing.T) {
	e, delays := newTestExecutor(Policy{
		MaxRetries:    1,
		BaseDelay:     100 * time.Millisecond,
		BackoffFactor: 2,
	}, nil)

	calls := 0
	_, _ = Run(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &domain.TaskError{
				Code:       domain.ErrCodeRateLimit,
				Message:    "rate limited",
				Retryable:  true,
				RetryAfter: 7 * time.Second,
			}
		}
		return "ok", nil
	})

	if len(*delays) != 1 {
		t.Fatalf("expected 1 delay, got %d", len(*delays))
	}
	if (*delays)[0] != 7*time.Second {
		t.Errorf("expected retry-after 7s to override backoff, got %v", (*delays)[0])
	}
}

func TestRun_BudgetStopsRetries(t *testing.T) {
	e, _ := newTestExecutor(Policy{
		MaxRetries:    10,
		BaseDelay:     time.Second,
		BackoffFactor: 2,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := Run(ctx, e, func(context.Context) (string, error) {
		calls++
		return "", domain.NewTaskError(domain.ErrCodeNetwork, "down", true)
	})

	if !IsBudgetExceeded(err) {
		t.Errorf("expected budget-exceeded marker, got %v", err)
	}
	// backoff 1s > бюджет 100ms: вторая попытка не начинается
	if calls != 1 {
		t.Errorf("expected 1 call before budget stop, got %d", calls)
	}
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.calls++
	return f.err
}

func TestRun_AuthRefreshSingleRetry(t *testing.T) {
	refresher := &fakeRefresher{}
	e, _ := newTestExecutor(Policy{MaxRetries: 5}, refresher)

	calls := 0
	_, err := Run(context.Background(), e, func(context.Context) (string, error) {
		calls++
		return "", domain.NewTaskError(domain.ErrCodeAuth, "token expired", false)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if refresher.calls != 1 {
		t.Errorf("expected exactly one credential refresh, got %d", refresher.calls)
	}
	// первая попытка + одна после refresh, не больше
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDefaultRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"task error retryable", domain.NewTaskError(domain.ErrCodeNetwork, "x", true), true},
		{"task error non-retryable", domain.NewValidationError("x"), false},
		{"context canceled", context.Canceled, false},
		{"unclassified", errors.New("boom"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultRetryable(tc.err); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		if RetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestFromStatus(t *testing.T) {
	rateLimited := FromStatus(429, "slow down", 3*time.Second)
	if rateLimited.Code != domain.ErrCodeRateLimit {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %s", rateLimited.Code)
	}
	if rateLimited.RetryAfter != 3*time.Second {
		t.Errorf("expected retry-after preserved, got %v", rateLimited.RetryAfter)
	}

	auth := FromStatus(401, "unauthorized", 0)
	if auth.Code != domain.ErrCodeAuth {
		t.Errorf("expected AUTHENTICATION_ERROR, got %s", auth.Code)
	}
}
