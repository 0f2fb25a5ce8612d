package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/logging"
)

// ErrNotReaped is returned when output is read from a live process.
var ErrNotReaped = errors.New("process has not been reaped")

// Handle owns one spawned process for the lifetime of a run.
//
// A background waiter reaps the process as soon as it exits, so Reap and
// Exited never race the kernel for the exit status. Output is only
// available after the process has been reaped.
type Handle struct {
	variant Variant
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  *logging.OutputHandler

	startTime time.Time
	endTime   time.Time

	done     chan struct{}
	waitErr  error
	exitCode int
}

func newHandle(v Variant, cmd *exec.Cmd, stderr *logging.OutputHandler) *Handle {
	h := &Handle{
		variant: v,
		cmd:     cmd,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	cmd.Stdout = &h.stdout
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return h
}

// start starts the process and the background waiter.
func (h *Handle) start() error {
	h.startTime = time.Now()
	if err := h.cmd.Start(); err != nil {
		return err
	}
	go h.wait()
	return nil
}

func (h *Handle) wait() {
	h.waitErr = h.cmd.Wait()
	h.endTime = time.Now()
	h.exitCode = extractExitCode(h.waitErr)
	if h.stderr != nil {
		h.stderr.Flush()
	}
	close(h.done)
}

// Variant returns the variant this handle was spawned for.
func (h *Handle) Variant() Variant {
	return h.variant
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Exited reports whether the process has exited and been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Reap blocks until the process has exited and returns its wait error.
// Exit caused by a signal is reported by ExitCode, not as an error here:
// stopping a target is the expected way for it to end.
func (h *Handle) Reap() error {
	<-h.done
	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		return nil
	}
	return h.waitErr
}

// ReapWithin waits up to timeout for the process to be reaped.
// It returns false if the process is still running.
func (h *Handle) ReapWithin(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Signal delivers sig to the process. Signalling an exited process is not
// an error.
func (h *Handle) Signal(sig os.Signal) error {
	if h.Exited() {
		return nil
	}
	err := h.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Kill sends SIGKILL to the process.
func (h *Handle) Kill() error {
	return h.Signal(os.Kill)
}

// ExitCode returns the exit code after reaping, 128+n for signal n.
func (h *Handle) ExitCode() int {
	<-h.done
	return h.exitCode
}

// Uptime returns how long the process ran, or has been running so far.
func (h *Handle) Uptime() time.Duration {
	if h.Exited() {
		return h.endTime.Sub(h.startTime)
	}
	return time.Since(h.startTime)
}

// Output returns everything the process wrote to stdout.
func (h *Handle) Output() ([]byte, error) {
	if !h.Exited() {
		return nil, fmt.Errorf("%s: %w", h.variant.Name, ErrNotReaped)
	}
	return h.stdout.Bytes(), nil
}

// RecentStderr returns the last n stderr lines of the process.
func (h *Handle) RecentStderr(n int) []string {
	if h.stderr == nil {
		return nil
	}
	return h.stderr.RecentLines(n)
}

// StderrErrors returns the number of stderr lines that matched a known
// failure pattern, counting a line once per pattern.
func (h *Handle) StderrErrors() int {
	if h.stderr == nil {
		return 0
	}
	n := 0
	for _, c := range h.stderr.CountErrors() {
		n += c
	}
	return n
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
