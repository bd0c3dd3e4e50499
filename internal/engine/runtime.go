// Package engine drives a claimed capture job through validation, the
// external capture process, and finalization to a terminal status.
package engine

import (
	"context"
	"io"
)

// Process is a handle on one running capture tool invocation.
type Process interface {
	// Stdout streams the process's standard output. The stream ends when
	// the process exits or is stopped.
	Stdout() io.Reader
	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)
	// Stop forcibly terminates the process. Stopping an exited process is
	// not an error.
	Stop() error
	// Stderr returns collected standard error output, available after exit.
	Stderr() string
}

// Runtime launches capture tool processes in an isolated execution context.
type Runtime interface {
	Start(ctx context.Context, spec CommandSpec) (Process, error)
}

// CommandSpec describes one capture tool invocation.
type CommandSpec struct {
	// Command and Args form the full invocation, target URL included.
	Command string
	Args    []string

	// OutputDir is the isolated working directory for this job's artifacts.
	OutputDir string
	// ArchivePath is where the tool writes the finished WACZ.
	ArchivePath string
	// SummaryPath is where the tool writes its JSON run summary.
	SummaryPath string
}
