package shutdownqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// reset restores the package state between tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()

	tasks = nil
	closed = false
}

func TestShutdown_LIFOOrder(t *testing.T) {
	reset()

	var order []string

	for _, name := range []string{"db", "kafka", "server"} {
		name := name
		Add(func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	want := []string{"server", "kafka", "db"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdown_CollectsErrors(t *testing.T) {
	reset()

	errA := errors.New("a failed")
	errB := errors.New("b failed")

	Add(func(context.Context) error { return errA })
	Add(func(context.Context) error { return nil })
	Add(func(context.Context) error { return errB })

	err := Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("err = %v, want both errA and errB", err)
	}
}

func TestShutdown_RecoversPanics(t *testing.T) {
	reset()

	var ran bool

	Add(func(context.Context) error {
		ran = true
		return nil
	})
	Add(func(context.Context) error { panic("boom") })

	err := Shutdown(context.Background())
	if err == nil {
		t.Fatal("panic not reported as error")
	}
	if !ran {
		t.Fatal("panic aborted the drain; later tasks must still run")
	}
}

func TestShutdown_ContextAbort(t *testing.T) {
	reset()

	var skipped, ran bool

	Add(func(context.Context) error {
		skipped = true
		return nil
	})
	Add(func(ctx context.Context) error {
		ran = true
		// Simulate a task that outlives the deadline.
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	if !ran {
		t.Error("first task never ran")
	}
	if skipped {
		t.Error("remaining task ran after the deadline")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	reset()

	var count int

	Add(func(context.Context) error {
		count++
		return nil
	})

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if count != 1 {
		t.Fatalf("task ran %d times, want 1", count)
	}

	// Registrations after shutdown are ignored.
	Add(func(context.Context) error {
		count++
		return nil
	})

	_ = Shutdown(context.Background())

	if count != 1 {
		t.Fatalf("late registration executed; count = %d", count)
	}
}

func TestAdd_IgnoresNil(t *testing.T) {
	reset()

	Add(nil)

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown with nil task: %v", err)
	}
}
