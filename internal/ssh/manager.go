// internal/ssh/manager.go
package ssh

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// Configuration constants for terminal sessions
const (
	DefaultCleanupTick = time.Minute    // Cleanup interval for expired sessions
	DefaultMaxDuration = 24 * time.Hour // Forced teardown after this long
)

var ErrSessionNotFound = errors.New("session not found")

// Manager tracks live terminal bridges. Its lock guards only the registry
// and is never held while a bridge reads, writes or closes.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Bridge
	cleanupTick time.Duration
	maxDuration time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewManager creates a new terminal manager and starts its cleanup routine
func NewManager(cleanupTick, maxDuration time.Duration) *Manager {
	if cleanupTick <= 0 {
		cleanupTick = DefaultCleanupTick
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}

	m := &Manager{
		sessions:    make(map[string]*Bridge),
		cleanupTick: cleanupTick,
		maxDuration: maxDuration,
		shutdownCh:  make(chan struct{}),
	}

	// Start background cleanup
	go m.cleanupRoutine()

	log.Info("Terminal manager initialized",
		"cleanupInterval", cleanupTick.String(),
		"maxDuration", maxDuration.String())

	return m
}

// Register adds a bridge and removes it again once the bridge is closed.
func (m *Manager) Register(b *Bridge) {
	m.mu.Lock()
	select {
	case <-m.shutdownCh:
		m.mu.Unlock()
		_ = b.Close()
		return
	default:
	}
	m.sessions[b.ID()] = b
	m.mu.Unlock()

	go func() {
		<-b.Done()
		m.remove(b.ID())
	}()
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns the sessions opened by owner, or all of them when all is set.
// Oldest first.
func (m *Manager) List(owner string, all bool) []models.TerminalSessionInfo {
	m.mu.Lock()
	bridges := make([]*Bridge, 0, len(m.sessions))
	for _, b := range m.sessions {
		bridges = append(bridges, b)
	}
	m.mu.Unlock()

	// Initialize as an empty slice so it encodes as []
	result := make([]models.TerminalSessionInfo, 0, len(bridges))
	for _, b := range bridges {
		info := b.Info()
		if !all && info.Owner != owner {
			continue
		}
		info.Expiration = info.Created.Add(m.maxDuration)
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created.Before(result[j].Created) })

	log.Debugf("Returning %d terminal sessions.", len(result))
	return result
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Bridge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.sessions[id]
	return b, ok
}

// Terminate closes a specific session
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	b, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	_ = b.Close()
	log.Info("Terminal session terminated", "id", id)
	return nil
}

// Shutdown closes all sessions and stops the manager
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		close(m.shutdownCh)
		bridges := make([]*Bridge, 0, len(m.sessions))
		for id, b := range m.sessions {
			bridges = append(bridges, b)
			delete(m.sessions, id)
		}
		m.mu.Unlock()

		for _, b := range bridges {
			_ = b.Close()
		}
		log.Info("Terminal manager shutdown complete", "closed", len(bridges))
	})
}

// cleanupRoutine periodically closes sessions older than maxDuration
func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpiredSessions(time.Now())
		case <-m.shutdownCh:
			return
		}
	}
}

func (m *Manager) cleanupExpiredSessions(now time.Time) {
	m.mu.Lock()
	var expired []*Bridge
	for id, b := range m.sessions {
		if now.Sub(b.created) > m.maxDuration {
			expired = append(expired, b)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, b := range expired {
		_ = b.Close()
		log.Info("Expired terminal session cleaned up", "id", b.ID())
	}
}
