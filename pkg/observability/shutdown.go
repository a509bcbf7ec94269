package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager stops the HTTP server and registered resources when the
// process receives SIGINT or SIGTERM. The whole sequence shares one deadline.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager builds a manager for server. A zero timeout defaults to
// 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// RegisterShutdownFunc adds fn to the shutdown sequence. Functions run in
// registration order after the HTTP server has stopped accepting requests.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// shutdown sequence.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	sm.logger.Infof("received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()
	return sm.Shutdown(ctx)
}

// Shutdown stops the server and runs the registered functions under ctx.
// The first server error aborts the sequence; resource errors are collected
// so one failing backend does not keep the others open.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown failed")
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		sm.logger.Info("HTTP server stopped")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	var failed int
	for i, fn := range funcs {
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("shutdown step %d failed", i)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d failed steps", failed)
	}
	sm.logger.Info("shutdown complete")
	return nil
}
