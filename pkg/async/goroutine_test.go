package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSafeGo_Success(t *testing.T) {
	executed := atomic.Bool{}
	done := make(chan struct{})

	SafeGo(context.Background(), testLogger(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
	if !executed.Load() {
		t.Error("SafeGo did not execute function")
	}
}

func TestSafeGo_ErrorDoesNotPropagate(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), testLogger(), time.Second, "test task", func(ctx context.Context) error {
		defer close(done)
		return errors.New("test error")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function despite error")
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	canceled := make(chan struct{})

	SafeGo(context.Background(), testLogger(), 20*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			close(canceled)
			return ctx.Err()
		}
	})

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("task context was not canceled at timeout")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), testLogger(), time.Second, "test task", func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking task never ran")
	}
	// Recovery happens in the deferred handler; nothing to assert beyond the
	// test process surviving.
	time.Sleep(20 * time.Millisecond)
}

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 4, "test pool", time.Second, testLogger())

	var count atomic.Int64
	for i := 0; i < 20; i++ {
		if err := pool.Submit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if err := pool.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := count.Load(); got != 20 {
		t.Errorf("executed %d tasks, want 20", got)
	}
}

func TestWorkerPool_ErrorsDoNotStopWorkers(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, "test pool", time.Second, testLogger())

	var succeeded atomic.Int64
	for i := 0; i < 10; i++ {
		i := i
		err := pool.Submit(func(ctx context.Context) error {
			if i%2 == 0 {
				return errors.New("task failed")
			}
			succeeded.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if err := pool.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := succeeded.Load(); got != 5 {
		t.Errorf("succeeded = %d, want 5", got)
	}
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", time.Second, testLogger())

	if err := pool.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := pool.Submit(func(ctx context.Context) error { return nil }); err == nil {
		t.Error("Submit() after shutdown should fail")
	}
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "test pool", time.Second, testLogger())

	var after atomic.Bool
	if err := pool.Submit(func(ctx context.Context) error { panic("boom") }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := pool.Submit(func(ctx context.Context) error {
		after.Store(true)
		return nil
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := pool.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !after.Load() {
		t.Error("worker did not survive a panicking task")
	}
}
