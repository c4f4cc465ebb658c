package ssh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

var errClientClosed = errors.New("client closed")

// fakeClient is a WebSocket stand-in. Messages sent on in are returned by
// ReadMessage; closing in simulates the browser going away.
type fakeClient struct {
	in chan []byte

	mu     sync.Mutex
	out    [][]byte
	writes chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	closes    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		in:     make(chan []byte),
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeClient) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, m, nil
	case <-c.closed:
		return 0, nil, errClientClosed
	}
}

func (c *fakeClient) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}
	c.mu.Lock()
	c.out = append(c.out, append([]byte(nil), data...))
	c.mu.Unlock()
	select {
	case c.writes <- data:
	default:
	}
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeClient) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(bytes.Join(c.out, nil))
}

func (c *fakeClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeShell struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closes  int
}

func newFakeShell() *fakeShell {
	r, w := io.Pipe()
	return &fakeShell{outR: r, outW: w}
}

func (s *fakeShell) Read(p []byte) (int, error) { return s.outR.Read(p) }

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.Write(p)
}

func (s *fakeShell) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	_ = s.outR.Close()
	return nil
}

func (s *fakeShell) input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

func (s *fakeShell) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeShellDialer blocks each dial until release is closed, when set.
type fakeShellDialer struct {
	shell   *fakeShell
	err     error
	release chan struct{}
	started chan remote.Target
}

func newFakeShellDialer(shell *fakeShell) *fakeShellDialer {
	return &fakeShellDialer{shell: shell, started: make(chan remote.Target, 4)}
}

func (d *fakeShellDialer) DialShell(ctx context.Context, t remote.Target) (Shell, error) {
	d.started <- t
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.shell, nil
}
