package api

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/ssh"
)

type fakeFile struct {
	name string
	dir  bool
	data string
}

func (f fakeFile) Name() string       { return f.name }
func (f fakeFile) Size() int64        { return int64(len(f.data)) }
func (f fakeFile) ModTime() time.Time { return time.Time{} }
func (f fakeFile) IsDir() bool        { return f.dir }
func (f fakeFile) Sys() any           { return nil }
func (f fakeFile) Mode() os.FileMode {
	if f.dir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

// fakeSession answers every Run with result and serves files from dirs,
// keyed by absolute directory path.
type fakeSession struct {
	mu sync.Mutex

	output []remote.Chunk
	result remote.ExecResult
	dirs   map[string][]fakeFile

	commands []remote.Command
	uploads  map[string]string
	closes   int
}

func (s *fakeSession) Run(_ context.Context, cmd remote.Command, sink remote.Sink) (remote.ExecResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	for _, c := range s.output {
		if sink != nil {
			sink(c)
		}
	}
	return s.result, nil
}

func (s *fakeSession) Upload(_ context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return &remote.TransferError{Op: "upload", Path: localPath, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = make(map[string]string)
	}
	s.uploads[remotePath] = string(data)
	return nil
}

func (s *fakeSession) MkdirAll(context.Context, string) error { return nil }

func (s *fakeSession) ReadDir(_ context.Context, dir string) ([]os.FileInfo, error) {
	files, ok := s.dirs[dir]
	if !ok {
		return nil, &remote.TransferError{Op: "readdir", Path: dir, Err: os.ErrNotExist}
	}
	infos := make([]os.FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, f)
	}
	return infos, nil
}

func (s *fakeSession) ReadFile(_ context.Context, p string, maxBytes int64) ([]byte, error) {
	for dir, files := range s.dirs {
		for _, f := range files {
			if dir+"/"+f.name != p || f.dir {
				continue
			}
			if int64(len(f.data)) > maxBytes {
				return nil, &remote.TransferError{Op: "read", Path: p, Err: remote.ErrFileTooLarge}
			}
			return []byte(f.data), nil
		}
	}
	return nil, &remote.TransferError{Op: "read", Path: p, Err: os.ErrNotExist}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	sess    *fakeSession
	err     error
	targets []remote.Target
}

func (d *fakeDialer) Dial(_ context.Context, t remote.Target) (remote.Session, error) {
	d.mu.Lock()
	d.targets = append(d.targets, t)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

// echoShell writes back everything it receives. Writes never block, like
// a real stdin pipe with buffer space.
type echoShell struct {
	data      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newEchoShell() *echoShell {
	return &echoShell{data: make(chan []byte, 64), closed: make(chan struct{})}
}

func (s *echoShell) Read(p []byte) (int, error) {
	select {
	case d := <-s.data:
		return copy(p, d), nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *echoShell) Write(p []byte) (int, error) {
	select {
	case s.data <- append([]byte(nil), p...):
		return len(p), nil
	case <-s.closed:
		return 0, io.ErrClosedPipe
	}
}

func (s *echoShell) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeShellDialer struct {
	targets chan remote.Target
}

func (d *fakeShellDialer) DialShell(_ context.Context, t remote.Target) (ssh.Shell, error) {
	select {
	case d.targets <- t:
	default:
	}
	return newEchoShell(), nil
}
