package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/prism-dag/prismd/infrastructure/logger"
)

const exitHandlerTimeout = 5 * time.Second

// HandlePanic recovers a panic, logs it together with the stack trace of
// the goroutine's creator and exits the process.
func HandlePanic(log *logger.Logger, goroutineName string, spawnStackTrace []byte) {
	err := recover()
	if err == nil {
		return
	}
	reason := fmt.Sprintf("Fatal error in goroutine `%s`: %+v", goroutineName, err)
	exit(log, reason, debug.Stack(), spawnStackTrace)
}

// GoroutineWrapperFunc returns a function that starts named goroutines
// whose panics are logged through log before the process exits.
func GoroutineWrapperFunc(log *logger.Logger) func(name string, f func()) {
	return func(name string, f func()) {
		stackTrace := debug.Stack()
		go func() {
			defer HandlePanic(log, name, stackTrace)
			f()
		}()
	}
}

func exit(log *logger.Logger, reason string, currentThreadStackTrace []byte, goroutineStackTrace []byte) {
	exitHandlerDone := make(chan struct{})
	go func() {
		log.Criticalf("Exiting: %s", reason)
		if goroutineStackTrace != nil {
			log.Criticalf("Goroutine stack trace: %s", goroutineStackTrace)
		}
		if currentThreadStackTrace != nil {
			log.Criticalf("Stack trace: %s", currentThreadStackTrace)
		}
		log.Backend().Close()
		close(exitHandlerDone)
	}()

	select {
	case <-time.After(exitHandlerTimeout):
		fmt.Fprintln(os.Stderr, "Couldn't exit gracefully.")
	case <-exitHandlerDone:
	}
	fmt.Fprintln(os.Stderr, "Exiting...")
	os.Exit(1)
}
