package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestShutdownRunsFuncsInOrder(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, time.Second)

	var order []string
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "health")
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "telemetry")
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(order) != 2 || order[0] != "health" || order[1] != "telemetry" {
		t.Errorf("shutdown order = %v", order)
	}
}

func TestShutdownContinuesPastFailures(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, time.Second)

	var ran bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return errors.New("redis close failed")
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Shutdown() did not report the failed step")
	}
	if !ran {
		t.Error("a failing step prevented later steps from running")
	}
}

func TestShutdownStopsServer(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(logger, server, time.Second)

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("server accepted connections after shutdown: %v", err)
	}
}

func TestShutdownManagerDefaultTimeout(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 0)
	if sm.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s default", sm.timeout)
	}
}
