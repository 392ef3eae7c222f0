package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetryWithContext(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		got, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 42 {
			t.Errorf("got %d, want 42", got)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		wantErr := errors.New("always")
		calls := 0
		_, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (int, error) {
			calls++
			return 0, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("got %v, want %v", err, wantErr)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("canceled context stops attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := RetryWithContext(ctx, 3, func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("should not run")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
	})

	t.Run("cancellation error is not retried", func(t *testing.T) {
		calls := 0
		_, err := RetryWithContext(context.Background(), 3, func(ctx context.Context) (int, error) {
			calls++
			return 0, context.DeadlineExceeded
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("got %v, want context.DeadlineExceeded", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestRetryErr(t *testing.T) {
	calls := 0
	err := RetryErr(0, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("maxTries <= 0 should default to one attempt, got %d", calls)
	}
}
