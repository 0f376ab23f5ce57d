package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack and swallows it. Meant
// for deferred use at the top of scheduled jobs, where one bad sweep must
// not take down the whole scheduler:
//
//	defer observability.RecoverPanic(logger, "orphan reap")
//
// Request handlers do not need this; the HTTP stack recovers per request.
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"task":  task,
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("panic recovered")
	}
}
