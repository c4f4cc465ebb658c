// internal/ssh/shell.go
package ssh

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

// Terminal geometry requested for every shell.
const (
	DefaultTerm = "xterm-256color"
	DefaultRows = 24
	DefaultCols = 80

	DefaultNodeTimeout = 10 * time.Second
)

// Shell is an interactive shell on a node. Reads return the combined
// terminal output; writes are keystrokes.
type Shell interface {
	io.ReadWriteCloser
}

// ShellDialer opens a Shell on the node described by target.
type ShellDialer interface {
	DialShell(ctx context.Context, target remote.Target) (Shell, error)
}

// SSHShellDialer opens PTY-backed shells over SSH.
type SSHShellDialer struct {
	KnownHostsFile string
}

func NewSSHShellDialer(knownHostsFile string) *SSHShellDialer {
	return &SSHShellDialer{KnownHostsFile: knownHostsFile}
}

// DialShell authenticates with keyboard-interactive then password. Both
// connect attempts, if a fallback is needed, share target.Timeout.
func (d *SSHShellDialer) DialShell(ctx context.Context, target remote.Target) (Shell, error) {
	hostKeyCallback, err := remote.HostKeyCallback(d.KnownHostsFile)
	if err != nil {
		return nil, &remote.ConnectError{Host: target.Addr(), Err: err}
	}

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = DefaultNodeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	neg := &authNegotiator{password: target.Password}
	client, err := connectWithFallback(neg, func(methods []ssh.AuthMethod) (*ssh.Client, error) {
		cfg := &ssh.ClientConfig{
			User:            target.Username,
			Auth:            methods,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		}
		return remote.DialClient(ctx, target.Addr(), timeout, cfg)
	})
	if err != nil {
		return nil, err
	}

	shell, err := openShell(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return shell, nil
}

// connectWithFallback dials with the negotiator's first methods and retries
// only when the negotiator allows it.
func connectWithFallback(neg *authNegotiator, dial func([]ssh.AuthMethod) (*ssh.Client, error)) (*ssh.Client, error) {
	methods := neg.first()
	for {
		client, err := dial(methods)
		if err == nil {
			return client, nil
		}
		next, ok := neg.next(err)
		if !ok {
			return nil, err
		}
		log.Warn("Node offered no usable authentication methods, retrying with password", "error", err)
		methods = next
	}
}

// authNegotiator chooses auth methods per connect attempt. A peer that
// rejects the initial probe without listing any method we support gets
// exactly one more attempt using password only.
type authNegotiator struct {
	password        string
	passwordRetried bool
}

func (n *authNegotiator) first() []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.KeyboardInteractive(remote.AnswerEveryPrompt(n.password)),
		ssh.Password(n.password),
	}
}

func (n *authNegotiator) next(err error) ([]ssh.AuthMethod, bool) {
	if n.passwordRetried || !offeredNoMethods(err) {
		return nil, false
	}
	n.passwordRetried = true
	return []ssh.AuthMethod{ssh.Password(n.password)}, true
}

// offeredNoMethods matches the client error for a peer whose method list
// left nothing to try after the "none" probe.
func offeredNoMethods(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no supported methods remain") &&
		strings.Contains(msg, "attempted methods [none]")
}

type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	out     *io.PipeReader

	closeOnce sync.Once
}

func openShell(client *ssh.Client) (*sshShell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(DefaultTerm, DefaultRows, DefaultCols, modes); err != nil {
		_ = session.Close()
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, err
	}

	go func() {
		err := session.Wait()
		log.Debug("Remote shell exited", "error", err)
		_ = pw.Close()
	}()

	return &sshShell{client: client, session: session, stdin: stdin, out: pr}, nil
}

func (s *sshShell) Read(p []byte) (int, error) { return s.out.Read(p) }

func (s *sshShell) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *sshShell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.session.Close()
		err = s.client.Close()
		_ = s.out.Close()
	})
	return err
}
