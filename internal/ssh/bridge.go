// internal/ssh/bridge.go
package ssh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

// State of a Bridge. Transitions only move forward.
type State string

const (
	StateAwaitingInit   State = "awaiting_init"
	StateAuthenticating State = "authenticating"
	StateShellOpen      State = "shell_open"
	StateClosed         State = "closed"
)

const (
	outputBufferSize = 32 * 1024

	// DefaultMaxPending bounds client input queued before the shell opens.
	DefaultMaxPending = 64 * 1024
	// MaxClientMessage is the largest WebSocket frame a client may send.
	MaxClientMessage = 64 * 1024
)

var replacementChar = []byte("\uFFFD")

// ClientConn is the browser side of a bridge. *websocket.Conn satisfies it.
// Only one goroutine may write at a time; Close may be called concurrently.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// BridgeOptions configures one terminal bridge.
type BridgeOptions struct {
	Username   string        // Node login when the init message has none
	Password   string        // Answer to every keyboard-interactive prompt, and the password
	Port       int           // Node SSH port
	Timeout    time.Duration // Connect and handshake bound
	InitWait   time.Duration // How long the client has to send the init message
	MaxPending int           // Bytes of input queued before the shell opens
	RemoteAddr string        // Client address, informational
	Owner      string        // API user, informational
}

// Bridge relays one WebSocket client to one remote shell.
type Bridge struct {
	id      string
	client  ClientConn
	dialer  ShellDialer
	opts    BridgeOptions
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex // serializes client writes

	mu      sync.Mutex
	state   State
	init    models.TerminalInit
	shell   Shell
	pending      [][]byte // client input received before the shell opened
	pendingBytes int

	closeOnce sync.Once
	done      chan struct{}
}

func NewBridge(client ClientConn, dialer ShellDialer, opts BridgeOptions) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultNodeTimeout
	}
	if opts.InitWait <= 0 {
		opts.InitWait = opts.Timeout
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		id:      uuid.NewString(),
		client:  client,
		dialer:  dialer,
		opts:    opts,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateAwaitingInit,
		done:    make(chan struct{}),
	}
}

func (b *Bridge) ID() string { return b.id }

// Done is closed once the bridge has been torn down.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Info describes the bridge for session listings.
func (b *Bridge) Info() models.TerminalSessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.TerminalSessionInfo{
		ID:         b.id,
		NodeName:   b.init.NodeName,
		NodeIP:     b.init.NodeIP,
		Username:   b.init.Username,
		State:      string(b.state),
		RemoteAddr: b.opts.RemoteAddr,
		Owner:      b.opts.Owner,
		Created:    b.created,
	}
}

// Serve reads client messages until the client goes away or the bridge is
// closed. Cancelling ctx closes the bridge.
func (b *Bridge) Serve(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { _ = b.Close() })
	defer stop()
	defer b.Close()
	initTimer := time.AfterFunc(b.opts.InitWait, b.initExpired)
	defer initTimer.Stop()

	log.Debug("Terminal session started", "id", b.id, "remote_addr", b.opts.RemoteAddr)
	for {
		_, data, err := b.client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Terminal client read failed", "id", b.id, "error", err)
			}
			return
		}
		b.handleClientMessage(data)
	}
}

func (b *Bridge) handleClientMessage(data []byte) {
	b.mu.Lock()
	switch b.state {
	case StateClosed:
		b.mu.Unlock()

	case StateAwaitingInit:
		if !looksLikeInit(data) {
			b.queueLocked(data)
			return
		}
		init, err := parseInit(data, b.opts.Username)
		if err != nil {
			b.mu.Unlock()
			log.Warn("Invalid terminal init message", "id", b.id, "error", err)
			_ = b.writeClient([]byte(fmt.Sprintf("\r\nInvalid connection request: %v\r\n", err)))
			return
		}
		b.init = init
		b.state = StateAuthenticating
		b.mu.Unlock()
		go b.connect(init)

	case StateAuthenticating:
		b.queueLocked(data)

	case StateShellOpen:
		shell := b.shell
		b.mu.Unlock()
		if _, err := shell.Write(data); err != nil {
			log.Debug("Shell write failed", "id", b.id, "error", err)
			_ = b.Close()
		}

	default:
		b.mu.Unlock()
	}
}

// queueLocked holds input until the shell opens. It releases b.mu. A client
// that exceeds MaxPending is told so and disconnected.
func (b *Bridge) queueLocked(data []byte) {
	if b.pendingBytes+len(data) > b.opts.MaxPending {
		b.mu.Unlock()
		log.Warn("Terminal input queue full before shell opened", "id", b.id, "limit", b.opts.MaxPending)
		_ = b.writeClient([]byte(fmt.Sprintf("\r\nToo much input before the shell opened (limit %d bytes)\r\n", b.opts.MaxPending)))
		_ = b.Close()
		return
	}
	b.pending = append(b.pending, data)
	b.pendingBytes += len(data)
	b.mu.Unlock()
}

// initExpired closes a bridge whose client never sent a valid init message.
func (b *Bridge) initExpired() {
	if b.State() != StateAwaitingInit {
		return
	}
	log.Warn("Terminal init message not received in time", "id", b.id, "wait", b.opts.InitWait)
	_ = b.writeClient([]byte("\r\nTimed out waiting for the connection request\r\n"))
	_ = b.Close()
}

func (b *Bridge) connect(init models.TerminalInit) {
	target := remote.Target{
		Host:     init.NodeIP,
		Port:     b.opts.Port,
		Username: init.Username,
		Password: b.opts.Password,
		Timeout:  b.opts.Timeout,
	}
	log.Infof("Opening terminal to node '%s' (%s) as '%s'", init.NodeName, target.Addr(), init.Username)

	shell, err := b.dialer.DialShell(b.ctx, target)
	if err != nil {
		if b.State() == StateClosed {
			return
		}
		log.Warnf("Terminal connection to node '%s' failed: %v", init.NodeName, err)
		msg := fmt.Sprintf("SSH connection error: %v", err)
		if errors.Is(err, remote.ErrTimeout) {
			msg = fmt.Sprintf("SSH connection to %s timed out", init.NodeIP)
		}
		_ = b.writeClient([]byte("\r\n" + msg + "\r\n"))
		_ = b.Close()
		return
	}

	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		_ = shell.Close()
		return
	}
	for _, p := range b.pending {
		if _, err := shell.Write(p); err != nil {
			b.mu.Unlock()
			_ = shell.Close()
			_ = b.Close()
			return
		}
	}
	b.pending = nil
	b.pendingBytes = 0
	b.shell = shell
	b.state = StateShellOpen
	b.mu.Unlock()

	log.Debug("Terminal shell open", "id", b.id, "node", init.NodeName)
	b.pumpOutput(shell)
}

// pumpOutput relays shell output to the client as text frames, holding back
// a multi-byte character split across reads.
func (b *Bridge) pumpOutput(shell Shell) {
	defer b.Close()

	buf := make([]byte, outputBufferSize)
	var carry []byte
	for {
		n, err := shell.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			complete, rest := splitIncompleteRune(data)
			carry = append([]byte(nil), rest...)
			if len(complete) > 0 {
				if werr := b.writeClient(bytes.ToValidUTF8(complete, replacementChar)); werr != nil {
					return
				}
			}
		}
		if err != nil {
			if len(carry) > 0 {
				_ = b.writeClient(bytes.ToValidUTF8(carry, replacementChar))
			}
			log.Debug("Shell output ended", "id", b.id, "error", err)
			return
		}
	}
}

func (b *Bridge) writeClient(data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.client.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the shell and the client connection. Safe to call from
// any goroutine, any number of times.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.state = StateClosed
		shell := b.shell
		node := b.init.NodeName
		b.pending = nil
		b.pendingBytes = 0
		b.mu.Unlock()

		b.cancel()
		if shell != nil {
			_ = shell.Close()
		}
		_ = b.client.Close()
		close(b.done)
		log.Info("Terminal session closed", "id", b.id, "node", node, "duration", time.Since(b.created).Round(time.Second))
	})
	return nil
}

func looksLikeInit(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func parseInit(data []byte, defaultUsername string) (models.TerminalInit, error) {
	var init models.TerminalInit
	if err := json.Unmarshal(data, &init); err != nil {
		return init, fmt.Errorf("malformed init message: %w", err)
	}
	if init.NodeIP == "" {
		return init, errors.New("nodeIp is required")
	}
	if init.Username == "" {
		init.Username = defaultUsername
	}
	if init.NodeName == "" {
		init.NodeName = init.NodeIP
	}
	return init, nil
}

// splitIncompleteRune splits p before a trailing, incomplete UTF-8 sequence.
func splitIncompleteRune(p []byte) (complete, rest []byte) {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:]) {
				return p[:i], p[i:]
			}
			break
		}
	}
	return p, nil
}
