package txretry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func TestIsTransient(t *testing.T) {
	transient := []error{
		errors.New("Error 1213 (40001): Deadlock found when trying to get lock"),
		errors.New("Error 1205 (HY000): Lock wait timeout exceeded"),
		errors.New("database is locked (5) (SQLITE_BUSY)"),
		errors.New("database table is locked"),
		fmt.Errorf("commit failed: %w", errors.New("deadlock detected")),
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("expected transient: %v", err)
		}
	}

	definitive := []error{
		nil,
		errors.New("record not found"),
		errors.New("UNIQUE constraint failed: webhook_logs.idempotency_key"),
		errors.New("not enough stock available. Available: 3"),
	}
	for _, err := range definitive {
		if IsTransient(err) {
			t.Errorf("expected definitive: %v", err)
		}
	}
}

func TestDo(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		attempts, err := Do(logger, func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if attempts != 1 || calls != 1 {
			t.Fatalf("expected a single attempt, got attempts=%d calls=%d", attempts, calls)
		}
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		attempts, err := Do(logger, func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected eventual success, got %v", err)
		}
		if attempts != 3 || calls != 3 {
			t.Fatalf("expected three attempts, got attempts=%d calls=%d", attempts, calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		locked := errors.New("deadlock detected")
		attempts, err := Do(logger, func() error {
			calls++
			return locked
		})
		if !errors.Is(err, locked) {
			t.Fatalf("expected the last error back, got %v", err)
		}
		if attempts != MaxAttempts || calls != MaxAttempts {
			t.Fatalf("expected %d attempts, got attempts=%d calls=%d", MaxAttempts, attempts, calls)
		}
	})

	t.Run("does not retry definitive errors", func(t *testing.T) {
		calls := 0
		definitive := errors.New("record not found")
		attempts, err := Do(logger, func() error {
			calls++
			return definitive
		})
		if !errors.Is(err, definitive) {
			t.Fatalf("expected the error back, got %v", err)
		}
		if attempts != 1 || calls != 1 {
			t.Fatalf("expected a single attempt, got attempts=%d calls=%d", attempts, calls)
		}
	})
}
