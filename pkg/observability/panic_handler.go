package observability

import "runtime/debug"

// RecoverPanic logs a recovered panic with its stack trace and the name of
// the task that was running. Call it in a defer; the panic is swallowed so
// a failing background task cannot take down the process.
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"task":  task,
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("panic recovered")
	}
}
