// Package undo implements local-origin undo/redo scoped to the node
// graph map. This boundary is deliberate: node positions and graph
// structure are undoable; edit sessions and AI-result maps are not.
// Remote changes are never undoable by a local user.
package undo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/pkg/document"
)

// DefaultCaptureWindow groups rapid-fire changes (a drag gesture
// producing many position updates) into one undo step.
const DefaultCaptureWindow = 300 * time.Millisecond

// entry records one key's register before and after a captured change.
type entry struct {
	key       string
	before    document.Register
	hadBefore bool
	after     document.Register
}

// step is one undoable unit: every entry captured within one window.
type step []entry

// Manager wraps the nodes map with grouped, local-only undo history.
type Manager struct {
	sess   *document.Session
	window time.Duration
	log    zerolog.Logger

	// now is injectable for deterministic grouping tests.
	now func() time.Time

	mu          sync.Mutex
	shadow      map[string]document.Register
	undoStack   []step
	redoStack   []step
	lastCapture time.Time
	applying    bool
}

// New creates an undo manager observing the session's node graph map.
// window controls grouping; DefaultCaptureWindow suits drag gestures.
func New(sess *document.Session, window time.Duration, log zerolog.Logger) *Manager {
	if window <= 0 {
		window = DefaultCaptureWindow
	}
	m := &Manager{
		sess:   sess,
		window: window,
		log:    log,
		now:    time.Now,
		shadow: make(map[string]document.Register),
	}
	sess.Observe(m.observe)
	return m
}

// observe tracks the nodes map. The shadow copy always follows the
// current state (local, remote, and replayed changes alike), but only
// local-origin changes outside an undo/redo replay are captured.
func (m *Manager) observe(changes []document.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range changes {
		if ch.Map != document.MapNodes {
			continue
		}

		prev, had := m.shadow[ch.Key]
		m.shadow[ch.Key] = ch.Register

		if m.applying || ch.Origin != document.OriginLocal {
			continue
		}

		e := entry{key: ch.Key, before: prev, hadBefore: had, after: ch.Register}
		now := m.now()
		if len(m.undoStack) > 0 && now.Sub(m.lastCapture) <= m.window {
			last := len(m.undoStack) - 1
			m.undoStack[last] = append(m.undoStack[last], e)
		} else {
			m.undoStack = append(m.undoStack, step{e})
		}
		m.lastCapture = now
		m.redoStack = nil
	}
}

// CanUndo reports whether an undo step is available.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undoStack) > 0
}

// CanRedo reports whether a redo step is available.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redoStack) > 0
}

// Undo reverts the most recent locally-captured step in one
// transaction. Returns false when there is nothing to undo.
func (m *Manager) Undo(ctx context.Context) bool {
	m.mu.Lock()
	if len(m.undoStack) == 0 {
		m.mu.Unlock()
		return false
	}
	top := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	m.applying = true
	m.mu.Unlock()

	err := m.sess.Transact(ctx, func(tx *document.Tx) error {
		// Reverse order so intra-step writes to the same key unwind.
		for i := len(top) - 1; i >= 0; i-- {
			e := top[i]
			if !e.hadBefore || e.before.Deleted {
				tx.Delete(document.MapNodes, e.key)
				continue
			}
			if err := tx.Set(document.MapNodes, e.key, e.before.Value); err != nil {
				return err
			}
		}
		return nil
	})

	m.mu.Lock()
	m.applying = false
	if err != nil {
		m.log.Warn().Err(err).Msg("undo transaction failed")
		m.undoStack = append(m.undoStack, top)
		m.mu.Unlock()
		return false
	}
	m.redoStack = append(m.redoStack, top)
	m.mu.Unlock()
	return true
}

// Redo re-applies the most recently undone step in one transaction.
// Returns false when there is nothing to redo.
func (m *Manager) Redo(ctx context.Context) bool {
	m.mu.Lock()
	if len(m.redoStack) == 0 {
		m.mu.Unlock()
		return false
	}
	top := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	m.applying = true
	m.mu.Unlock()

	err := m.sess.Transact(ctx, func(tx *document.Tx) error {
		for _, e := range top {
			if e.after.Deleted {
				tx.Delete(document.MapNodes, e.key)
				continue
			}
			if err := tx.Set(document.MapNodes, e.key, e.after.Value); err != nil {
				return err
			}
		}
		return nil
	})

	m.mu.Lock()
	m.applying = false
	if err != nil {
		m.log.Warn().Err(err).Msg("redo transaction failed")
		m.redoStack = append(m.redoStack, top)
		m.mu.Unlock()
		return false
	}
	m.undoStack = append(m.undoStack, top)
	m.mu.Unlock()
	return true
}

// Reset drops all history and the shadow copy. Run on session teardown.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadow = make(map[string]document.Register)
	m.undoStack = nil
	m.redoStack = nil
	m.applying = false
	m.lastCapture = time.Time{}
}

// SetClock overrides the grouping clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
