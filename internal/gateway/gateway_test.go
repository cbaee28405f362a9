package gateway

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// throttleErr is a typed throttling error with an optional retry-after hint.
type throttleErr struct {
	hint int
}

func (e *throttleErr) Error() string          { return "backend rate limit exceeded" }
func (e *throttleErr) Throttle() bool         { return true }
func (e *throttleErr) RetryAfterSeconds() int { return e.hint }

func quickConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		Burst:             50,
		InterRequestDelay: time.Millisecond,
		MaxRetries:        3,
		RetryDelay:        5 * time.Millisecond,
	}
}

func TestSubmitPriorityOrder(t *testing.T) {
	q := New(quickConfig())

	var mu sync.Mutex
	var order []string

	record := func(name string) Operation {
		return func() (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	// First submission occupies the drain loop long enough for the rest to
	// queue up behind it.
	blocker := q.Submit(func() (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	}, PriorityLow)

	lowA := q.Submit(record("low-a"), PriorityLow)
	high := q.Submit(record("high"), PriorityHigh)
	lowB := q.Submit(record("low-b"), PriorityLow)
	urgent := q.Submit(record("urgent"), 3)

	for _, ch := range []<-chan Result{blocker, lowA, high, lowB, urgent} {
		if res := <-ch; res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
	}

	want := []string{"urgent", "high", "low-a", "low-b"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("executed %d ops, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s (full order: %v)", i, order[i], want[i], order)
		}
	}
}

func TestRateCeilingDelaysExecution(t *testing.T) {
	q := New(Config{
		RequestsPerSecond: 2,
		Burst:             50,
		InterRequestDelay: time.Millisecond,
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
	})

	start := time.Now()
	var results []<-chan Result
	for i := 0; i < 5; i++ {
		results = append(results, q.Submit(func() (interface{}, error) {
			return nil, nil
		}, PriorityLow))
	}
	for _, ch := range results {
		if res := <-ch; res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
	}

	// With a ceiling of 2/s, the fifth op cannot start before ~2s.
	if elapsed := time.Since(start); elapsed < 1900*time.Millisecond {
		t.Errorf("5 ops at 2/s completed in %s, want >= ~2s", elapsed)
	}
}

func TestRetryOnThrottle(t *testing.T) {
	q := New(quickConfig())

	attempts := 0
	res := <-q.Submit(func() (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, &throttleErr{}
		}
		return "done", nil
	}, PriorityLow)

	if res.Err != nil {
		t.Fatalf("caller observed error: %v", res.Err)
	}
	if res.Value != "done" {
		t.Errorf("Value = %v, want done", res.Value)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNonThrottleErrorNotRetried(t *testing.T) {
	q := New(quickConfig())

	boom := errors.New("boom")
	attempts := 0
	res := <-q.Submit(func() (interface{}, error) {
		attempts++
		return nil, boom
	}, PriorityLow)

	if !errors.Is(res.Err, boom) {
		t.Errorf("Err = %v, want boom", res.Err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetriesExhausted(t *testing.T) {
	cfg := quickConfig()
	cfg.MaxRetries = 2
	q := New(cfg)

	attempts := 0
	res := <-q.Submit(func() (interface{}, error) {
		attempts++
		return nil, &throttleErr{}
	}, PriorityLow)

	if res.Err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", attempts)
	}
}

func TestClearRejectsQueuedOnly(t *testing.T) {
	q := New(quickConfig())

	inflight := q.Submit(func() (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return "survived", nil
	}, PriorityLow)

	// Give the drain loop time to pick up the first request.
	time.Sleep(20 * time.Millisecond)

	queuedA := q.Submit(func() (interface{}, error) { return nil, nil }, PriorityLow)
	queuedB := q.Submit(func() (interface{}, error) { return nil, nil }, PriorityHigh)

	q.Clear()

	for _, ch := range []<-chan Result{queuedA, queuedB} {
		res := <-ch
		if !errors.Is(res.Err, ErrCleared) {
			t.Errorf("queued request Err = %v, want ErrCleared", res.Err)
		}
	}

	res := <-inflight
	if res.Err != nil || res.Value != "survived" {
		t.Errorf("in-flight request = (%v, %v), want (survived, nil)", res.Value, res.Err)
	}
}

func TestBurstAllowance(t *testing.T) {
	cfg := quickConfig()
	cfg.Burst = 1
	q := New(cfg)

	first := q.Submit(func() (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	}, PriorityLow)
	time.Sleep(20 * time.Millisecond)

	second := q.Submit(func() (interface{}, error) { return nil, nil }, PriorityLow)
	third := q.Submit(func() (interface{}, error) { return nil, nil }, PriorityLow)

	if res := <-third; !errors.Is(res.Err, ErrQueueFull) {
		t.Errorf("third Err = %v, want ErrQueueFull", res.Err)
	}
	if res := <-first; res.Err != nil {
		t.Errorf("first Err = %v", res.Err)
	}
	if res := <-second; res.Err != nil {
		t.Errorf("second Err = %v", res.Err)
	}
}

func TestStats(t *testing.T) {
	q := New(quickConfig())

	res := <-q.Submit(func() (interface{}, error) { return nil, nil }, PriorityLow)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	stats := q.Stats()
	if stats.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d, want 0", stats.QueueDepth)
	}
	if stats.WindowCount != 1 {
		t.Errorf("WindowCount = %d, want 1", stats.WindowCount)
	}
}

func TestRetryDelayHint(t *testing.T) {
	newBackoff := func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.RandomizationFactor = 0
		bo.Multiplier = 2
		bo.MaxElapsedTime = 0
		return bo
	}

	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"server hint honored", &throttleErr{hint: 3}, 3 * time.Second},
		{"zero hint falls back to backoff", &throttleErr{hint: 0}, time.Second},
		{"untyped error falls back to backoff", errors.New("429"), time.Second},
		{"wrapped hint honored", fmt.Errorf("call failed: %w", &throttleErr{hint: 7}), 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryDelay(tt.err, newBackoff()); got != tt.want {
				t.Errorf("retryDelay() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsThrottle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed throttle", &throttleErr{}, true},
		{"wrapped typed throttle", fmt.Errorf("call: %w", &throttleErr{}), true},
		{"http 429 text", errors.New("unexpected status 429"), true},
		{"ratelimited text", errors.New("RATELIMITED"), true},
		{"too many requests text", errors.New("too many requests"), true},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsThrottle(tt.err); got != tt.want {
				t.Errorf("IsThrottle(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
