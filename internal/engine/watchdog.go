package engine

import (
	"context"
	"sync"
	"time"
)

// watchdogResult is the shared, synchronized outcome of one process run.
// The watchdog goroutine writes it; the engine reads it only after Join
// returns, so no field is ever observed mid-write.
type watchdogResult struct {
	ExitCode int
	TimedOut bool
	Err      error
}

// watchdog enforces the hard timeout on a capture process. It runs
// concurrently with the engine's stdout read loop: whichever side observes
// termination first wins, and the engine joins the watchdog before it
// inspects the result.
type watchdog struct {
	process Process
	timeout time.Duration

	mu     sync.Mutex
	result watchdogResult
	done   chan struct{}
}

func newWatchdog(process Process, timeout time.Duration) *watchdog {
	return &watchdog{
		process: process,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Start launches the watchdog goroutine.
func (w *watchdog) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		exitCode, err := w.process.Wait(waitCtx)
		if err == nil {
			w.setResult(watchdogResult{ExitCode: exitCode})
			return
		}
		if waitCtx.Err() == nil {
			w.setResult(watchdogResult{ExitCode: -1, Err: err})
			return
		}

		// Hard limit fired. Termination is non-cooperative: stop the
		// process outright and collect whatever exit code results.
		stopErr := w.process.Stop()
		exitCode, _ = w.process.Wait(ctx)
		w.setResult(watchdogResult{ExitCode: exitCode, TimedOut: true, Err: stopErr})
	}()
}

// Join blocks until the watchdog goroutine finishes and returns the result.
func (w *watchdog) Join() watchdogResult {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *watchdog) setResult(r watchdogResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.result = r
}
