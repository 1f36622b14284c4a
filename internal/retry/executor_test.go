package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type mockOperation struct {
	invocations int
	failUntil   int
	fatalErr    error
}

func (m *mockOperation) execute(ctx context.Context) error {
	m.invocations++
	if m.invocations < m.failUntil {
		return &pgconn.PgError{Code: "08006", Message: "connection failure"}
	}
	if m.invocations == m.failUntil && m.fatalErr != nil {
		return m.fatalErr
	}
	return nil
}

func fastExecutor(maxAttempts int) *Executor {
	return NewExecutor(NewSQLErrorClassifier(),
		NewExponentialBackoff(maxAttempts, WithInitialDelay(time.Millisecond), WithJitter(0)))
}

func TestExecutor_SuccessOnFirstAttempt(t *testing.T) {
	op := &mockOperation{failUntil: 1}
	if err := fastExecutor(3).Execute(context.Background(), op.execute); err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if op.invocations != 1 {
		t.Errorf("Expected 1 invocation, got %d", op.invocations)
	}
}

func TestExecutor_SuccessAfterRetries(t *testing.T) {
	op := &mockOperation{failUntil: 3}
	var retries []int
	executor := fastExecutor(5).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		retries = append(retries, attempt)
	})

	if err := executor.Execute(context.Background(), op.execute); err != nil {
		t.Fatalf("Expected success, got error: %v", err)
	}
	if op.invocations != 3 {
		t.Errorf("Expected 3 invocations, got %d", op.invocations)
	}
	if len(retries) != 2 {
		t.Errorf("Expected 2 retry callbacks, got %d", len(retries))
	}
}

func TestExecutor_FatalErrorStopsImmediately(t *testing.T) {
	fatal := &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}
	op := &mockOperation{failUntil: 1, fatalErr: fatal}

	err := fastExecutor(5).Execute(context.Background(), op.execute)
	if !errors.Is(err, fatal) {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if op.invocations != 1 {
		t.Errorf("Expected 1 invocation, got %d", op.invocations)
	}
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	op := &mockOperation{failUntil: 100}
	err := fastExecutor(2).Execute(context.Background(), op.execute)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if op.invocations != 3 {
		t.Errorf("Expected 3 invocations (1 + 2 retries), got %d", op.invocations)
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := NewExecutor(NewSQLErrorClassifier(),
		NewExponentialBackoff(5, WithInitialDelay(time.Hour), WithJitter(0))).
		WithOnRetry(func(int, error, time.Duration) { cancel() })

	op := &mockOperation{failUntil: 100}
	if err := executor.Execute(ctx, op.execute); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastExecutor(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, &pgconn.PgError{Code: "57P03"}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("Do() = %d, want 42", v)
	}
}

func TestNewExecutor_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil classifier")
		}
	}()
	NewExecutor(nil, NewExponentialBackoff(1))
}
