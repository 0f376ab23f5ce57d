// Package async provides safe fire-and-forget goroutine helpers.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/opsgate/gatehouse/pkg/observability"
)

// SafeGo executes fn in a goroutine with a deadline, panic recovery, and
// error logging. The goroutine gets a detached context, so it outlives the
// request that spawned it; use it for best-effort side work like audit
// records, never for anything the caller must observe.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions that cannot fail.
func SafeGoNoError(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, logger, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}
