// Package panics provides goroutine-level panic recovery, so that a bug in
// the handling of one connection or one timer tick is logged rather than
// taking down the whole server.
package panics

import (
	"fmt"
	"runtime/debug"

	"github.com/VertebrateResequencing/beanstalkd/internal/logger"
)

// Recover should be deferred at the top of every long-running goroutine:
//
//	go func() {
//	    defer panics.Recover(log, "timer")
//	    ...
//	}()
//
// If the goroutine panics, the panic and a stack trace are logged instead of
// crashing the process.
func Recover(log logger.Logger, op string) {
	if r := recover(); r != nil {
		log.Error("recovered from panic", "op", op, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
	}
}
