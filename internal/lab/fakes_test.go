package lab

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

type fakeSession struct {
	mu sync.Mutex

	output    []remote.Chunk
	result    remote.ExecResult
	runErr    error
	uploadErr error
	mkdirErr  error

	commands []remote.Command
	uploads  map[string]string // remote path -> content
	closes   int
}

func (s *fakeSession) Run(_ context.Context, cmd remote.Command, sink remote.Sink) (remote.ExecResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	if s.runErr != nil {
		return remote.ExecResult{}, s.runErr
	}
	for _, c := range s.output {
		if sink != nil {
			sink(c)
		}
	}
	return s.result, nil
}

func (s *fakeSession) Upload(_ context.Context, localPath, remotePath string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
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

func (s *fakeSession) MkdirAll(context.Context, string) error { return s.mkdirErr }

func (s *fakeSession) ReadDir(context.Context, string) ([]os.FileInfo, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSession) ReadFile(context.Context, string, int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type fakeDialer struct {
	sess    *fakeSession
	err     error
	targets []remote.Target
}

func (d *fakeDialer) Dial(_ context.Context, t remote.Target) (remote.Session, error) {
	d.targets = append(d.targets, t)
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

type event struct {
	stream string
	line   string
	result *Outcome
}

type recordingEmitter struct {
	events []event
}

func (r *recordingEmitter) Log(stream, line string) {
	r.events = append(r.events, event{stream: stream, line: line})
}

func (r *recordingEmitter) Result(o Outcome) {
	r.events = append(r.events, event{result: &o})
}

func (r *recordingEmitter) results() []Outcome {
	var out []Outcome
	for _, e := range r.events {
		if e.result != nil {
			out = append(out, *e.result)
		}
	}
	return out
}

func (r *recordingEmitter) last() event {
	return r.events[len(r.events)-1]
}
