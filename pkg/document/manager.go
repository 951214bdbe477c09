package document

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Manager owns the singleton session of an open workspace. It replaces
// ambient module-level session state with an explicit object whose
// lifetime belongs to the top-level workspace controller, injected into
// every dependent service.
type Manager struct {
	redisOpts *redis.Options
	log       zerolog.Logger

	mu        sync.Mutex
	current   *Session
	onCreate  []func(*Session)
	onDestroy []func()
}

// NewManager creates a session manager bound to one Redis endpoint.
func NewManager(redisOpts *redis.Options, log zerolog.Logger) *Manager {
	return &Manager{
		redisOpts: redisOpts,
		log:       log,
	}
}

// Init returns the session bound to roomID, creating and starting it if
// needed. Calling Init again with the same room is idempotent; calling
// it with a different room tears down the previous session first.
func (m *Manager) Init(ctx context.Context, roomID string) (*Session, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Room() == roomID {
			return m.current, nil
		}
		m.teardownLocked()
	}

	sess, err := NewSession(m.redisOpts, roomID, m.log)
	if err != nil {
		return nil, err
	}
	// Creation hooks run before Start so observers registered here see
	// the initial full sync.
	for _, fn := range m.onCreate {
		fn(sess)
	}
	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to start session for room %s: %w", roomID, err)
	}

	m.current = sess
	return sess, nil
}

// Get returns the active session, or nil when no workspace is open.
func (m *Manager) Get() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Destroy closes the active session's connection, releases the
// document, and runs the registered reset hooks so dependent local
// stores start clean for the next room. Safe to call when idle.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// OnCreate registers a hook run on every new session before it starts,
// so dependent stores can attach observers ahead of the initial sync.
func (m *Manager) OnCreate(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCreate = append(m.onCreate, fn)
}

// OnDestroy registers a hook run every time a session is torn down.
// Used by the read store and undo manager to reset local state.
func (m *Manager) OnDestroy(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDestroy = append(m.onDestroy, fn)
}

func (m *Manager) teardownLocked() {
	if m.current == nil {
		return
	}
	room := m.current.Room()
	if err := m.current.Close(); err != nil {
		m.log.Warn().Str("room", room).Err(err).Msg("error closing session")
	}
	m.current = nil
	for _, fn := range m.onDestroy {
		fn()
	}
}
