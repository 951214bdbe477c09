package readstore

import (
	"sort"

	"github.com/treeline-app/treeline/pkg/document"
)

// Read surface. Everything returns copies; callers never hold
// references into the store's own state.

// Status returns the session connection status as last observed.
func (s *Store) Status() document.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Node returns the authoritative node by ID.
func (s *Store) Node(id string) (document.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	return node, ok
}

// Nodes returns all authoritative nodes, ordered by ID for stable
// iteration.
func (s *Store) Nodes() []document.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]document.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Preview returns a draft node by preview ID.
func (s *Store) Preview(id string) (document.PreviewNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	preview, ok := s.previews[id]
	return preview, ok
}

// Previews returns all draft nodes, ordered by ID.
func (s *Store) Previews() []document.PreviewNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]document.PreviewNode, 0, len(s.previews))
	for _, preview := range s.previews {
		out = append(out, preview)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EditSession returns the transient edit snapshot for a node, if anyone
// is editing it.
func (s *Store) EditSession(nodeID string) (document.EditSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es, ok := s.editSessions[nodeID]
	return es, ok
}

// EditSessionCount returns the number of live edit sessions.
func (s *Store) EditSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.editSessions)
}

// CandidatesFor returns the AI candidate suggestions for a node.
func (s *Store) CandidatesFor(nodeID string) []document.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.candidates[nodeID]
	if !ok {
		return nil
	}
	out := make([]document.Candidate, len(list.Items))
	copy(out, list.Items)
	return out
}

// CandidateByID finds one candidate suggestion on a node.
func (s *Store) CandidateByID(nodeID, candidateID string) (document.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.candidates[nodeID]
	if !ok {
		return document.Candidate{}, false
	}
	for _, c := range list.Items {
		if c.ID == candidateID {
			return c, true
		}
	}
	return document.Candidate{}, false
}

// TechsFor returns the AI tech recommendations for a node.
func (s *Store) TechsFor(nodeID string) []document.TechRecommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.techs[nodeID]
	if !ok {
		return nil
	}
	out := make([]document.TechRecommendation, len(list.Items))
	copy(out, list.Items)
	return out
}

// SelectedTech returns the confirmed tech selection for a node.
func (s *Store) SelectedTech(nodeID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	techID, ok := s.selectedTech[nodeID]
	return techID, ok
}

// CandidatesPending reports whether candidate generation is in flight
// for a node, regardless of which replica triggered it.
func (s *Store) CandidatesPending(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidatesPending[nodeID]
}

// TechsPending reports whether tech generation is in flight for a node.
func (s *Store) TechsPending(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.techsPending[nodeID]
}

// NodeCreating reports whether node creation is in flight for a preview.
func (s *Store) NodeCreating(previewID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeCreating[previewID]
}

// MarkCreatingRestored records that reconnect reconciliation restored
// the "creating" UI state for a still-pending preview.
func (s *Store) MarkCreatingRestored(previewID string) {
	s.mu.Lock()
	s.restoredCreating[previewID] = true
	s.mu.Unlock()
	s.notify(Event{Kind: string(document.MapNodeCreatingPending), Key: previewID})
}

// CreatingRestored reports whether a preview's "creating" UI state was
// restored after a reconnect.
func (s *Store) CreatingRestored(previewID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restoredCreating[previewID]
}

// AppendStream adds streamed AI tokens to the buffer for one
// category+node. Called by the change router only.
func (s *Store) AppendStream(category, nodeID, tokens string) {
	key := StreamKey{Category: category, NodeID: nodeID}
	s.mu.Lock()
	s.streams[key] += tokens
	s.mu.Unlock()
	s.notify(Event{Kind: KindStream, Key: nodeID})
}

// CompleteStream clears the buffer for one category+node once the
// streamed message is complete.
func (s *Store) CompleteStream(category, nodeID string) {
	key := StreamKey{Category: category, NodeID: nodeID}
	s.mu.Lock()
	delete(s.streams, key)
	s.mu.Unlock()
	s.notify(Event{Kind: KindStream, Key: nodeID})
}

// Stream returns the accumulated streamed tokens for one category+node.
func (s *Store) Stream(category, nodeID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams[StreamKey{Category: category, NodeID: nodeID}]
}

// RecordSaveError stores the latest save failure notice for display.
func (s *Store) RecordSaveError(nodeID, action string) {
	s.mu.Lock()
	s.lastSaveError = &SaveError{NodeID: nodeID, Action: action}
	s.mu.Unlock()
	s.notify(Event{Kind: KindSaveError, Key: nodeID})
}

// LastSaveError returns the most recent save failure notice, if any.
func (s *Store) LastSaveError() (SaveError, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSaveError == nil {
		return SaveError{}, false
	}
	return *s.lastSaveError, true
}
