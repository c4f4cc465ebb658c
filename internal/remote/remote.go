// internal/remote/remote.go
package remote

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"
)

const (
	DefaultSSHPort        = 22
	DefaultConnectTimeout = 5 * time.Second
)

// Target identifies a remote host and the credentials used to reach it.
// Built per request, never persisted.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyFile  string // Optional private key; tried before password auth
	Timeout  time.Duration
}

// Addr returns host:port, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

func (t Target) connectTimeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultConnectTimeout
	}
	return t.Timeout
}

// Command is a remote invocation given as an explicit argument list.
type Command struct {
	Args []string
	Dir  string // Working directory on the remote host, optional
}

// String renders the command as a single POSIX shell line with every
// argument quoted.
func (c Command) String() string {
	line := shellquote.Join(c.Args...)
	if c.Dir != "" {
		line = "cd " + shellquote.Join(c.Dir) + " && " + line
	}
	return line
}

// StreamKind tags the origin of an output chunk.
type StreamKind string

const (
	Stdout StreamKind = "stdout"
	Stderr StreamKind = "stderr"
)

// Chunk is a piece of remote output as it was read.
type Chunk struct {
	Stream StreamKind
	Data   []byte
}

// Sink receives chunks while a command runs. Calls are serialized.
type Sink func(Chunk)

// ExecResult is the outcome of a command that ran to completion.
// A non-zero ExitCode is not an error at this layer.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status 0.
func (r ExecResult) Success() bool {
	return r.ExitCode == 0
}

// Session is an authenticated connection to one Target. It is owned by a
// single operation and must be closed on every exit path.
type Session interface {
	Run(ctx context.Context, cmd Command, sink Sink) (ExecResult, error)
	Upload(ctx context.Context, localPath, remotePath string) error
	MkdirAll(ctx context.Context, dir string) error
	ReadDir(ctx context.Context, dir string) ([]os.FileInfo, error)
	ReadFile(ctx context.Context, path string, maxBytes int64) ([]byte, error)
	// Close is idempotent.
	Close() error
}

// Dialer opens Sessions.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Session, error)
}
