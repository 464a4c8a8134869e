package async

import (
	"runtime/debug"

	"github.com/tryfix/log"
)

// LogPanicTrace recovers a panicking goroutine and logs the stack before exiting.
func LogPanicTrace(logger log.Logger) {
	if r := recover(); r != nil {
		logger.Fatal(r, string(debug.Stack()))
	}
}
