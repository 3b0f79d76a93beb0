package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// fast keeps test runs short while exercising the same loop.
var fast = Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoSucceedsOnNthAttempt(t *testing.T) {
	var calls int
	p := fast
	p.MaxAttempts = 3

	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExceedsMaxAttempts(t *testing.T) {
	targetErr := errors.New("persistent error")
	var calls int
	p := fast
	p.MaxAttempts = 4

	err := p.Do(context.Background(), func() error {
		calls++
		return targetErr
	})
	if !errors.Is(err, targetErr) {
		t.Errorf("expected target error, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	targetErr := errors.New("bad request")
	var calls int

	err := fast.Do(context.Background(), func() error {
		calls++
		return Permanent(targetErr)
	})
	if err != targetErr {
		t.Errorf("expected unwrapped target error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	// Cancel after the first attempt.
	go func() {
		for calls.Load() == 0 {
			time.Sleep(1 * time.Millisecond)
		}
		cancel()
	}()

	err := Do(ctx, 5, func() error {
		calls.Add(1)
		return errors.New("keep trying")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls.Load() > 2 {
		t.Errorf("expected at most 2 calls, got %d", calls.Load())
	}
}

func TestDoContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := Do(ctx, 3, func() error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls with cancelled context, got %d", calls)
	}
}

func TestDoDefaultMaxAttempts(t *testing.T) {
	var calls int
	err := fast.Do(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != DefaultMaxAttempts {
		t.Errorf("expected %d calls (default), got %d", DefaultMaxAttempts, calls)
	}
}

func TestBackoffProgression(t *testing.T) {
	p := Policy{}.withDefaults()
	prev := time.Duration(0)
	for attempt := 0; attempt < 3; attempt++ {
		d := p.backoff(attempt)
		if d <= prev && attempt > 0 {
			t.Errorf("attempt %d: backoff %v should be > previous %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffCapped(t *testing.T) {
	p := Policy{}.withDefaults()
	d := p.backoff(100)
	maxWithJitter := p.MaxDelay + time.Duration(float64(p.MaxDelay)*jitterFraction)
	if d > maxWithJitter {
		t.Errorf("backoff %v exceeds max with jitter %v", d, maxWithJitter)
	}
}

func TestBackoffIncludesJitter(t *testing.T) {
	p := Policy{}.withDefaults()
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[p.backoff(1)] = true
	}
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying backoff durations")
	}
}

func TestDoAfterOverridesBackoff(t *testing.T) {
	target := errors.New("rate limited")
	var waits []time.Duration
	var retried []int

	p := Policy{
		MaxAttempts: 3,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
		OnRetry: func(attempt int, _ time.Duration, err error) {
			if !errors.Is(err, target) {
				t.Errorf("OnRetry got %v, want %v", err, target)
			}
			retried = append(retried, attempt)
		},
	}

	var calls int
	err := p.Do(context.Background(), func() error {
		calls++
		return After(target, 42*time.Second)
	})
	if err != target {
		t.Errorf("expected unwrapped target error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 || waits[0] != 42*time.Second || waits[1] != 42*time.Second {
		t.Errorf("waits = %v, want [42s 42s]", waits)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDoSleepErrorStops(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		Sleep: func(context.Context, time.Duration) error {
			return context.DeadlineExceeded
		},
	}
	var calls int
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected sleep error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestAfterNil(t *testing.T) {
	if After(nil, time.Second) != nil {
		t.Error("After(nil) should be nil")
	}
}
