package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestRetrierRetriesRetryableFailure(t *testing.T) {
	retrier := NewRetrier(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := retrier.Do(context.Background(), "op", func(err error) Classification {
		return Classification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrierStopsOnPermanentFailure(t *testing.T) {
	retrier := NewRetrier(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := retrier.Do(context.Background(), "op", func(error) Classification {
		return Classification{Retryable: false, RecordFailure: false}
	}, func(context.Context) error {
		attempts++
		return errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestBreakersOpenAfterFailures(t *testing.T) {
	breakers := NewBreakers(BreakerConfig{
		MinRequests:      2,
		FailureRatio:     0.5,
		OpenTimeout:      50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})

	errDown := errors.New("downstream down")
	classifier := func(error) Classification {
		return Classification{RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := breakers.Do("backend", classifier, func() error { return errDown })
		if !errors.Is(err, errDown) {
			t.Fatalf("expected downstream error on call %d, got %v", i, err)
		}
	}

	err := breakers.Do("backend", classifier, func() error {
		t.Fatal("open circuit must not invoke the call")
		return nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("IsCircuitOpen must report true for %v", err)
	}
}

func TestBreakersIsolatePerName(t *testing.T) {
	breakers := NewBreakers(BreakerConfig{
		MinRequests:      1,
		FailureRatio:     0.1,
		OpenTimeout:      time.Second,
		HalfOpenMaxCalls: 1,
	})

	errDown := errors.New("down")
	classifier := func(error) Classification {
		return Classification{RecordFailure: true}
	}

	_ = breakers.Do("a", classifier, func() error { return errDown })
	if err := breakers.Do("a", classifier, func() error { return nil }); !IsCircuitOpen(err) {
		t.Fatalf("expected circuit a open, got %v", err)
	}

	if err := breakers.Do("b", classifier, func() error { return nil }); err != nil {
		t.Fatalf("circuit b must be unaffected, got %v", err)
	}
}
