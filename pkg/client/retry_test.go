package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps backoff short so tests run quickly.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        40 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 100ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 2*time.Second {
		t.Errorf("MaxBackoff = %v, want 2s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassUnavailable, errors.New("temporary error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected the last error to stay reachable, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_NoRetryClasses(t *testing.T) {
	for _, class := range []ErrorClass{ErrorClassClient, ErrorClassServer, ""} {
		t.Run(string(class), func(t *testing.T) {
			callCount := 0
			testErr := errors.New("final error")
			err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
				callCount++
				return class, testErr
			})

			if callCount != 1 {
				t.Errorf("Expected 1 call, got %d", callCount)
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Error("Should not return ErrRetryExhausted when no retry was attempted")
			}
			if !errors.Is(err, testErr) {
				t.Errorf("Expected original error, got %v", err)
			}
		})
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	callCount := 0
	testErr := errors.New("unavailable")
	err := retryWithBackoff(context.Background(), NoRetry(), func() (ErrorClass, error) {
		callCount++
		return ErrorClassUnavailable, testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if err != testErr {
		t.Errorf("Expected the original error unwrapped, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := fastRetry()
	config.InitialBackoff = time.Second

	callCount := 0
	err := retryWithBackoff(ctx, config, func() (ErrorClass, error) {
		callCount++
		cancel()
		return ErrorClassNetwork, errors.New("error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	timestamps := []time.Time{}
	_ = retryWithBackoff(context.Background(), config, func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassNetwork, errors.New("error")
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	// With ±20% jitter: first delay in [40ms, 60ms], second in [80ms, 120ms]
	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	if firstDelay < 40*time.Millisecond {
		t.Errorf("First retry delay %v shorter than expected", firstDelay)
	}
	if secondDelay < 80*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than expected", secondDelay)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        25 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}

	timestamps := []time.Time{}
	_ = retryWithBackoff(context.Background(), config, func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassNetwork, errors.New("error")
	})

	if len(timestamps) != 4 {
		t.Fatalf("Expected 4 timestamps, got %d", len(timestamps))
	}

	// Without the cap the third delay would be ~2s.
	if last := timestamps[3].Sub(timestamps[2]); last > 500*time.Millisecond {
		t.Errorf("Third delay %v ignored MaxBackoff", last)
	}
}
