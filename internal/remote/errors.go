package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout is wrapped by errors caused by an expired deadline.
var ErrTimeout = errors.New("timed out")

// ConnectError means the host was unreachable or authentication failed.
type ConnectError struct {
	Host    string
	Timeout bool
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("failed to connect to %s: %v: %v", e.Host, ErrTimeout, e.Err)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Timeout {
		return []error{e.Err, ErrTimeout}
	}
	return []error{e.Err}
}

// ExecError means a command could not be started or its outcome is unknown.
// A command that ran and exited non-zero is reported through ExecResult.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("remote command %q failed: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// TransferError means a file could not be copied to or from the host.
type TransferError struct {
	Op   string // "upload", "mkdir", "readdir", "read"
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
