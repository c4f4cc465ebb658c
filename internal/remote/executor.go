// internal/remote/executor.go
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jpillora/sizestr"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrFileTooLarge is returned by ReadFile when the file exceeds the limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

const chunkSize = 32 * 1024

// SSHDialer opens Sessions over SSH, with SFTP for file transfer.
type SSHDialer struct {
	// KnownHostsFile enables host key verification. Empty accepts any key;
	// lab hosts are routinely rebuilt and re-keyed.
	KnownHostsFile string
}

// NewSSHDialer returns a dialer verifying host keys against knownHostsFile
// when it is non-empty.
func NewSSHDialer(knownHostsFile string) *SSHDialer {
	return &SSHDialer{KnownHostsFile: knownHostsFile}
}

func (d *SSHDialer) clientConfig(t Target, timeout time.Duration) (*ssh.ClientConfig, error) {
	hostKeyCallback, err := HostKeyCallback(d.KnownHostsFile)
	if err != nil {
		return nil, err
	}

	methods, err := authMethods(t)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            t.Username,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func authMethods(t Target) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if t.KeyFile != "" {
		key, err := os.ReadFile(t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if t.Password != "" {
		methods = append(methods,
			ssh.Password(t.Password),
			ssh.KeyboardInteractive(AnswerEveryPrompt(t.Password)),
		)
	}
	if len(methods) == 0 {
		return nil, errors.New("no credentials configured (password or key file required)")
	}
	return methods, nil
}

// HostKeyCallback verifies host keys against knownHostsFile, or accepts any
// key when it is empty.
func HostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts file '%s': %w", knownHostsFile, err)
	}
	return cb, nil
}

// AnswerEveryPrompt replies to each keyboard-interactive question with secret.
func AnswerEveryPrompt(secret string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = secret
		}
		return answers, nil
	}
}

// Dial connects and authenticates within the target timeout. Nothing is left
// open when it fails.
func (d *SSHDialer) Dial(ctx context.Context, t Target) (Session, error) {
	addr := t.Addr()
	timeout := t.connectTimeout()

	cfg, err := d.clientConfig(t, timeout)
	if err != nil {
		return nil, &ConnectError{Host: addr, Err: err}
	}

	client, err := DialClient(ctx, addr, timeout, cfg)
	if err != nil {
		return nil, err
	}
	return &sshSession{addr: addr, client: client}, nil
}

// DialClient opens an authenticated SSH client. TCP connect and handshake
// together are bounded by timeout and by ctx. On failure the TCP connection
// is closed and a *ConnectError is returned.
func DialClient(ctx context.Context, addr string, timeout time.Duration, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug("Connecting to remote host", "addr", addr, "user", cfg.User, "timeout", timeout)
	start := time.Now()

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Host: addr, Timeout: isTimeout(err), Err: err}
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	// Unblock the handshake if the caller gives up first
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if !stop() && err == nil {
		_ = c.Close()
		err = ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		timedOut := isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		log.Debug("Remote connect failed", "addr", addr, "duration", time.Since(start), "timeout", timedOut, "error", err)
		return nil, &ConnectError{Host: addr, Timeout: timedOut, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug("Connected to remote host", "addr", addr, "duration", time.Since(start))
	return ssh.NewClient(c, chans, reqs), nil
}

type sshSession struct {
	addr   string
	client *ssh.Client

	mu   sync.Mutex
	sftp *sftp.Client

	closeOnce sync.Once
	closeErr  error
}

func (s *sshSession) Run(ctx context.Context, cmd Command, sink Sink) (ExecResult, error) {
	line := cmd.String()
	result := ExecResult{ExitCode: -1}

	sess, err := s.client.NewSession()
	if err != nil {
		return result, &ExecError{Command: line, Err: err}
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return result, &ExecError{Command: line, Err: err}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return result, &ExecError{Command: line, Err: err}
	}

	log.Debug("Executing remote command", "addr", s.addr, "command", line)
	start := time.Now()
	if err := sess.Start(line); err != nil {
		return result, &ExecError{Command: line, Err: err}
	}

	var (
		mu             sync.Mutex
		outBuf, errBuf bytes.Buffer
		wg             sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(stdout, Stdout, &outBuf, &mu, sink)
	}()
	go func() {
		defer wg.Done()
		pump(stderr, Stderr, &errBuf, &mu, sink)
	}()

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- sess.Wait()
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		<-done
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		return result, &ExecError{Command: line, Err: cause}
	}

	result.Stdout = outBuf.String()
	result.Stderr = errBuf.String()

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		return result, &ExecError{Command: line, Err: err}
	}

	log.Debug("Remote command finished",
		"addr", s.addr,
		"exit_code", result.ExitCode,
		"duration", time.Since(start),
		"stdout_len", len(result.Stdout),
		"stderr_len", len(result.Stderr),
	)
	return result, nil
}

// pump forwards r to sink chunk by chunk until EOF or a read error.
func pump(r io.Reader, kind StreamKind, buf *bytes.Buffer, mu *sync.Mutex, sink Sink) {
	p := make([]byte, chunkSize)
	for {
		n, err := r.Read(p)
		if n > 0 {
			data := make([]byte, n)
			copy(data, p[:n])
			mu.Lock()
			buf.Write(data)
			if sink != nil {
				sink(Chunk{Stream: kind, Data: data})
			}
			mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *sshSession) sftpClient() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		return s.sftp, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}
	s.sftp = c
	return c, nil
}

func (s *sshSession) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	sc, err := s.sftpClient()
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}

	src, err := os.Open(localPath)
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	defer src.Close()

	dst, err := sc.Create(remotePath)
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	n, err := dst.ReadFrom(src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}

	log.Debug("Uploaded file", "addr", s.addr, "local_path", localPath, "remote_path", remotePath, "size", sizestr.ToString(n))
	return nil
}

func (s *sshSession) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return &TransferError{Op: "mkdir", Path: dir, Err: err}
	}
	sc, err := s.sftpClient()
	if err != nil {
		return &TransferError{Op: "mkdir", Path: dir, Err: err}
	}
	if err := sc.MkdirAll(dir); err != nil {
		return &TransferError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

func (s *sshSession) ReadDir(ctx context.Context, dir string) ([]os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransferError{Op: "readdir", Path: dir, Err: err}
	}
	sc, err := s.sftpClient()
	if err != nil {
		return nil, &TransferError{Op: "readdir", Path: dir, Err: err}
	}
	entries, err := sc.ReadDir(dir)
	if err != nil {
		return nil, &TransferError{Op: "readdir", Path: dir, Err: err}
	}
	return entries, nil
}

func (s *sshSession) ReadFile(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransferError{Op: "read", Path: path, Err: err}
	}
	sc, err := s.sftpClient()
	if err != nil {
		return nil, &TransferError{Op: "read", Path: path, Err: err}
	}
	f, err := sc.Open(path)
	if err != nil {
		return nil, &TransferError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, &TransferError{Op: "read", Path: path, Err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &TransferError{Op: "read", Path: path, Err: fmt.Errorf("%w (%s)", ErrFileTooLarge, sizestr.ToString(maxBytes))}
	}
	return data, nil
}

func (s *sshSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.sftp != nil {
			_ = s.sftp.Close()
		}
		s.mu.Unlock()
		s.closeErr = s.client.Close()
		log.Debug("Closed remote session", "addr", s.addr)
	})
	return s.closeErr
}
