// Package readstore holds the reactive local cache that UI
// collaborators read from. It is populated exclusively by observers on
// the shared document maps: shared-map mutation -> change event ->
// store projection -> UI subscription. The projection step is pure with
// respect to the transport, so it is testable without Redis.
package readstore

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/pkg/document"
)

// Event tells subscribers which slice of the store changed.
// Kind is the shared map name, or one of the synthetic kinds below.
type Event struct {
	Kind string
	Key  string
}

// Synthetic event kinds for state that does not live in a shared map.
const (
	KindStream    = "stream"
	KindSaveError = "save_error"
	KindStatus    = "status"
)

// StreamKey addresses one streaming AI token buffer.
type StreamKey struct {
	Category string
	NodeID   string
}

// SaveError is a user-facing failure notice delivered over the side
// channel, mapped to a node/action pair.
type SaveError struct {
	NodeID string
	Action string
}

// Store is the reactive read cache. Consumers only read; the shared
// maps are never written through the store.
type Store struct {
	log zerolog.Logger

	mu     sync.RWMutex
	status document.Status

	nodes        map[string]document.Node
	previews     map[string]document.PreviewNode
	editSessions map[string]document.EditSession

	// appliedCommits records the last commit request applied per node,
	// making commit re-application a no-op.
	appliedCommits map[string]string

	candidates   map[string]document.CandidateList
	techs        map[string]document.TechList
	selectedTech map[string]string

	candidatesPending map[string]bool
	techsPending      map[string]bool
	nodeCreating      map[string]bool

	// restoredCreating marks previews whose "creating" UI state was
	// restored by reconnect-time reconciliation.
	restoredCreating map[string]bool

	streams       map[StreamKey]string
	lastSaveError *SaveError

	subs []chan Event
}

// New creates an empty store.
func New(log zerolog.Logger) *Store {
	s := &Store{log: log}
	s.resetLocked()
	return s
}

// Attach subscribes the store to a session's change and status feeds.
// Call once per session, after Reset.
func (s *Store) Attach(sess *document.Session) {
	sess.Observe(s.Apply)
	sess.OnStatus(s.setStatus)
}

// Reset clears all projections. Run when a session is destroyed so the
// next workspace starts clean.
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Store) resetLocked() {
	s.status = document.StatusDisconnected
	s.nodes = make(map[string]document.Node)
	s.previews = make(map[string]document.PreviewNode)
	s.editSessions = make(map[string]document.EditSession)
	s.appliedCommits = make(map[string]string)
	s.candidates = make(map[string]document.CandidateList)
	s.techs = make(map[string]document.TechList)
	s.selectedTech = make(map[string]string)
	s.candidatesPending = make(map[string]bool)
	s.techsPending = make(map[string]bool)
	s.nodeCreating = make(map[string]bool)
	s.restoredCreating = make(map[string]bool)
	s.streams = make(map[StreamKey]string)
	s.lastSaveError = nil
}

// Subscribe returns a channel of change events. Slow subscribers drop
// events rather than blocking the projection path.
func (s *Store) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify(ev Event) {
	s.mu.RLock()
	subs := make([]chan Event, len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Apply projects one transaction's changes into the store. It is wired
// as a session observer and receives local and remote changes alike.
func (s *Store) Apply(changes []document.Change) {
	events := make([]Event, 0, len(changes))

	s.mu.Lock()
	for _, ch := range changes {
		if s.applyOne(ch) {
			events = append(events, Event{Kind: string(ch.Map), Key: ch.Key})
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.notify(ev)
	}
}

// applyOne mutates the projection for one change. Caller holds the lock.
// Returns false when the change was a no-op (idempotent commit replay,
// undecodable value).
func (s *Store) applyOne(ch document.Change) bool {
	switch ch.Map {
	case document.MapNodes:
		if ch.Register.Deleted {
			delete(s.nodes, ch.Key)
			return true
		}
		var node document.Node
		if !s.decode(ch, &node) {
			return false
		}
		s.nodes[ch.Key] = node
		return true

	case document.MapPreviewNodes:
		if ch.Register.Deleted {
			delete(s.previews, ch.Key)
			delete(s.restoredCreating, ch.Key)
			return true
		}
		var preview document.PreviewNode
		if !s.decode(ch, &preview) {
			return false
		}
		s.previews[ch.Key] = preview
		return true

	case document.MapEditSessions:
		if ch.Register.Deleted {
			delete(s.editSessions, ch.Key)
			return true
		}
		var es document.EditSession
		if !s.decode(ch, &es) {
			return false
		}
		s.editSessions[ch.Key] = es
		return true

	case document.MapConfirmedCommits:
		if ch.Register.Deleted {
			return false
		}
		var commit document.ConfirmedCommit
		if !s.decode(ch, &commit) {
			return false
		}
		return s.applyCommit(commit)

	case document.MapCandidates:
		if ch.Register.Deleted {
			delete(s.candidates, ch.Key)
			return true
		}
		var list document.CandidateList
		if !s.decode(ch, &list) {
			return false
		}
		s.candidates[ch.Key] = list
		return true

	case document.MapTechRecommendations:
		if ch.Register.Deleted {
			delete(s.techs, ch.Key)
			return true
		}
		var list document.TechList
		if !s.decode(ch, &list) {
			return false
		}
		s.techs[ch.Key] = list
		return true

	case document.MapSelectedTech:
		if ch.Register.Deleted {
			delete(s.selectedTech, ch.Key)
			return true
		}
		var techID string
		if !s.decode(ch, &techID) {
			return false
		}
		s.selectedTech[ch.Key] = techID
		return true

	case document.MapCandidatesPending:
		return s.applyPending(s.candidatesPending, ch)
	case document.MapTechsPending:
		return s.applyPending(s.techsPending, ch)
	case document.MapNodeCreatingPending:
		if !s.applyPending(s.nodeCreating, ch) {
			return false
		}
		if !s.nodeCreating[ch.Key] {
			delete(s.restoredCreating, ch.Key)
		}
		return true

	default:
		return false
	}
}

// applyCommit folds finalized field values into the node projection.
// Re-applying a commit with a request ID already seen is a no-op.
func (s *Store) applyCommit(commit document.ConfirmedCommit) bool {
	if s.appliedCommits[commit.NodeID] == commit.RequestID {
		return false
	}
	s.appliedCommits[commit.NodeID] = commit.RequestID

	node, ok := s.nodes[commit.NodeID]
	if !ok {
		// Commit for a node this replica has not yet synced; the node
		// write carries the same values and will land on its own.
		return true
	}
	node.Data.Status = commit.Status
	node.Data.Priority = commit.Priority
	node.Data.Difficulty = commit.Difficulty
	node.Data.Assignee = commit.Assignee
	node.Data.Note = commit.Note
	if commit.NodeType != "" {
		node.Type = commit.NodeType
	}
	s.nodes[commit.NodeID] = node
	return true
}

func (s *Store) applyPending(target map[string]bool, ch document.Change) bool {
	if ch.Register.Deleted {
		delete(target, ch.Key)
		return true
	}
	var pending bool
	if !s.decode(ch, &pending) {
		return false
	}
	target[ch.Key] = pending
	return true
}

func (s *Store) decode(ch document.Change, out any) bool {
	if err := json.Unmarshal(ch.Register.Value, out); err != nil {
		s.log.Warn().Str("map", string(ch.Map)).Str("key", ch.Key).Err(err).
			Msg("skipping undecodable map value")
		return false
	}
	return true
}

func (s *Store) setStatus(status document.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.notify(Event{Kind: KindStatus})
}
