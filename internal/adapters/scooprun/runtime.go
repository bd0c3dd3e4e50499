// Package scooprun runs the Scoop capture tool as a local subprocess.
package scooprun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/capturelab/scoopd/internal/engine"
)

// Runtime implements engine.Runtime with os/exec subprocesses.
type Runtime struct{}

// New creates a subprocess-backed capture runtime.
func New() *Runtime {
	return &Runtime{}
}

// Start launches the capture command and returns a handle on the process.
func (r *Runtime) Start(ctx context.Context, spec engine.CommandSpec) (engine.Process, error) {
	// #nosec G204 -- the command and options are deployment-configured, not user input
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.OutputDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	p := &process{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		done:   make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// reap waits for the process so exactly one goroutine calls cmd.Wait.
func (p *process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	defer close(p.done)

	if err == nil {
		p.exitCode = 0
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		p.exitCode = exitErr.ExitCode()
		return
	}
	p.exitCode = -1
	p.waitErr = err
}

// Stdout streams the process's standard output.
func (p *process) Stdout() io.Reader {
	return p.stdout
}

// Wait blocks until the process exits or the context expires.
func (p *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.done:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.waitErr
}

// Stop kills the process. Stopping an already-exited process is not an error.
func (p *process) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill capture process: %w", err)
	}
	return nil
}

// Stderr returns collected standard error output.
func (p *process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr.String()
}
