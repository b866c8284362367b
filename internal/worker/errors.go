package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FocusRelay/internal/protocol"
)

var (
	// ErrWorkerNotRunning means the subprocess could not be started or exited
	// before the request was written to it.
	ErrWorkerNotRunning = errors.New("worker not running")

	// ErrWorkerExit means the subprocess exited while the request was in flight.
	ErrWorkerExit = errors.New("worker exit")

	// ErrTimeout means no response arrived before the deadline. The operation may
	// still have been executed by the worker.
	ErrTimeout = errors.New("worker timeout")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("worker manager closed")

	// ErrNoCommand is returned when no worker command is configured.
	ErrNoCommand = errors.New("no worker command configured")
)

// ExitError carries the diagnostics of a subprocess exit to every request it failed.
type ExitError struct {
	// Cause is ErrWorkerExit or ErrWorkerNotRunning.
	Cause      error
	ExitErr    error
	StderrTail string
}

func (e *ExitError) Error() string {
	var b strings.Builder
	b.WriteString(e.Cause.Error())
	if e.ExitErr != nil {
		fmt.Fprintf(&b, ": %v", e.ExitErr)
	}
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		fmt.Fprintf(&b, " (stderr: %s)", strings.ReplaceAll(tail, "\n", " | "))
	}
	return b.String()
}

func (e *ExitError) Unwrap() error { return e.Cause }

// RemoteError is a failure reported by the worker in a correlated response.
type RemoteError struct {
	Op      protocol.Op
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is lets errors.Is(err, protocol.ErrBadHandle) match a worker "bad hwnd" reply.
func (e *RemoteError) Is(target error) bool {
	return target == protocol.ErrBadHandle && e.Message == protocol.BadHandleMessage
}

// Kind classifies an invoke error for user-facing reports: "target_gone",
// "timeout", "worker" or "error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, protocol.ErrBadHandle):
		return "target_gone"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrWorkerExit), errors.Is(err, ErrWorkerNotRunning), errors.Is(err, ErrClosed):
		return "worker"
	default:
		return "error"
	}
}
