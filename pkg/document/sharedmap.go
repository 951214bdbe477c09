package document

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MapName identifies one of the named, independently mergeable maps
// that make up the workspace document.
type MapName string

const (
	MapNodes               MapName = "nodes"
	MapPreviewNodes        MapName = "preview_nodes"
	MapEditSessions        MapName = "edit_sessions"
	MapConfirmedCommits    MapName = "confirmed_commits"
	MapCandidates          MapName = "candidates"
	MapTechRecommendations MapName = "tech_recommendations"
	MapCandidatesPending   MapName = "candidates_pending"
	MapTechsPending        MapName = "techs_pending"
	MapNodeCreatingPending MapName = "node_creating_pending"
	MapSelectedTech        MapName = "selected_tech"
)

// AllMaps lists every named map of a workspace document, in the order
// they are synced on connect.
func AllMaps() []MapName {
	return []MapName{
		MapNodes,
		MapPreviewNodes,
		MapEditSessions,
		MapConfirmedCommits,
		MapCandidates,
		MapTechRecommendations,
		MapCandidatesPending,
		MapTechsPending,
		MapNodeCreatingPending,
		MapSelectedTech,
	}
}

// Origin distinguishes changes made by this replica from changes merged
// in from other replicas. Only local-origin changes are undoable.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change describes one key mutation in one shared map. All changes made
// inside a single Transact call are delivered to observers as one slice.
type Change struct {
	Map      MapName
	Key      string
	Register Register
	Origin   Origin
}

// SharedMap is one named key-value structure within the document.
// It stores Registers and merges remote writes under last-writer-wins.
// Safe for concurrent use.
type SharedMap struct {
	name MapName

	mu      sync.RWMutex
	entries map[string]Register
}

func newSharedMap(name MapName) *SharedMap {
	return &SharedMap{
		name:    name,
		entries: make(map[string]Register),
	}
}

// Name returns the map's document-wide name.
func (m *SharedMap) Name() MapName {
	return m.name
}

// Get returns the raw register for key. The second result is false when
// the key is absent or tombstoned.
func (m *SharedMap) Get(key string) (Register, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.entries[key]
	if !ok || reg.Deleted {
		return Register{}, false
	}
	return reg, true
}

// Len returns the number of live (non-tombstoned) entries.
func (m *SharedMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, reg := range m.entries {
		if !reg.Deleted {
			n++
		}
	}
	return n
}

// Keys returns the keys of all live entries.
func (m *SharedMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key, reg := range m.entries {
		if !reg.Deleted {
			keys = append(keys, key)
		}
	}
	return keys
}

// Snapshot returns a copy of all live registers keyed by entry key.
func (m *SharedMap) Snapshot() map[string]Register {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Register, len(m.entries))
	for key, reg := range m.entries {
		if !reg.Deleted {
			out[key] = reg
		}
	}
	return out
}

// merge applies an incoming register under last-writer-wins ordering.
// Returns true if the register won and the map changed.
func (m *SharedMap) merge(key string, incoming Register) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entries[key]
	if ok {
		if !incoming.Supersedes(current) {
			return false
		}
		// An identical register is a no-op, so a resync after a
		// reconnect does not renotify observers.
		if incoming.Equal(current) {
			return false
		}
	}
	m.entries[key] = incoming
	return true
}

// Decode unmarshals the live value at key into out.
// Returns false when the key is absent or tombstoned.
func (m *SharedMap) Decode(key string, out any) (bool, error) {
	reg, ok := m.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(reg.Value, out); err != nil {
		return false, fmt.Errorf("failed to decode %s[%s]: %w", m.name, key, err)
	}
	return true, nil
}

// GetAs decodes the live value at key into T. The bool result is false
// when the key is absent, tombstoned, or undecodable.
func GetAs[T any](m *SharedMap, key string) (T, bool) {
	var out T
	ok, err := m.Decode(key, &out)
	if err != nil || !ok {
		var zero T
		return zero, false
	}
	return out, true
}
