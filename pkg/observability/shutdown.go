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

// ShutdownManager drains the API server and tears down attached resources
// when the process receives SIGINT or SIGTERM. The API server stops first
// so no new work arrives while the rest is released.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager creates a manager draining server within timeout.
// A zero timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc attaches a resource teardown. Registered functions
// run in registration order after the API server has drained.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// drain sequence. Teardown failures are logged individually; the returned
// error summarizes how many failed.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("API server drain failed")
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		sm.logger.Info("API server drained")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	failed := 0
	for i, fn := range funcs {
		if err := ctx.Err(); err != nil {
			sm.logger.Warn("shutdown timeout reached, abandoning remaining teardowns")
			return fmt.Errorf("shutdown timed out after %d of %d teardowns", i, len(funcs))
		}
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).WithField("teardown", i).Error("teardown failed")
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d failed teardowns", failed)
	}
	sm.logger.Info("shutdown complete")
	return nil
}
