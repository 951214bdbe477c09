// Package preview manages draft ("preview") nodes through their
// lifecycle: Absent -> Locked(by=user) -> {Pending -> Confirmed |
// Pending -> Failed | Cancelled}. Previews are visible to every
// collaborator but only their locking user may confirm or cancel them.
package preview

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/pkg/document"
)

// Manager drives the preview-node lifecycle for one user's session.
type Manager struct {
	sess  *document.Session
	store *readstore.Store
	user  string
	log   zerolog.Logger
}

// New creates a preview manager acting as the given user.
func New(sess *document.Session, store *readstore.Store, user string, log zerolog.Logger) *Manager {
	return &Manager{
		sess:  sess,
		store: store,
		user:  user,
		log:   log,
	}
}

// AddCustom drafts a user-authored preview node. Custom drafts never
// set a pending flag: their create request is synchronous enough from
// the UI's perspective.
func (m *Manager) AddCustom(ctx context.Context, previewID, parentID string, pos document.Position, data document.NodeData) error {
	p := document.PreviewNode{
		ID:       previewID,
		Type:     document.NodeTypePreview,
		ParentID: parentID,
		Position: pos,
		Data:     data,
		LockedBy: m.user,
		Source:   document.PreviewSourceCustom,
	}
	return m.add(ctx, p)
}

// AddFromCandidate drafts a preview node from an AI candidate
// suggestion on parent node nodeID. The preview ID is derived from the
// candidate ID so confirmation and reconciliation can find it again.
func (m *Manager) AddFromCandidate(ctx context.Context, nodeID string, candidateID string, pos document.Position) (string, error) {
	candidate, ok := m.store.CandidateByID(nodeID, candidateID)
	if !ok {
		return "", fmt.Errorf("candidate %s not found on node %s", candidateID, nodeID)
	}

	p := document.PreviewNode{
		ID:          document.PreviewIDForCandidate(candidateID),
		Type:        document.NodeTypePreview,
		ParentID:    nodeID,
		Position:    pos,
		Data:        document.NodeData{Title: candidate.Title, Note: candidate.Summary},
		LockedBy:    m.user,
		Source:      document.PreviewSourceCandidate,
		CandidateID: candidateID,
	}
	if err := m.add(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (m *Manager) add(ctx context.Context, p document.PreviewNode) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid preview node: %w", err)
	}
	return m.sess.Transact(ctx, func(tx *document.Tx) error {
		return tx.Set(document.MapPreviewNodes, p.ID, p)
	})
}

// Remove deletes one preview node. Used for cancel and manual cleanup.
func (m *Manager) Remove(ctx context.Context, previewID string) error {
	return m.sess.Delete(ctx, document.MapPreviewNodes, previewID)
}

// Clear deletes every preview node owned by this user, in one
// transaction.
func (m *Manager) Clear(ctx context.Context) error {
	previews := m.store.Previews()
	return m.sess.Transact(ctx, func(tx *document.Tx) error {
		for _, p := range previews {
			if p.LockedBy == m.user {
				tx.Delete(document.MapPreviewNodes, p.ID)
			}
		}
		return nil
	})
}

// ClearNonPending is the reconnect-time reconciliation pass. For every
// preview owned by ownerID:
//
//   - custom drafts are removed unconditionally - their request was
//     already in flight before the disconnect, so the outcome is the
//     server's responsibility;
//   - candidate previews whose candidate is already marked selected are
//     stale leftovers and removed;
//   - anything else is removed only if not currently pending.
//
// Previews still pending and still owned by the reconnecting user are
// left untouched and restore is invoked for each so the "creating" UI
// state comes back. A hard refresh must neither lose track of an
// in-flight creation nor accumulate orphaned drafts.
func (m *Manager) ClearNonPending(ctx context.Context, ownerID string, restore func(previewID string)) error {
	var removed []string
	var restored []string

	for _, p := range m.store.Previews() {
		if p.LockedBy != ownerID {
			continue
		}

		switch {
		case p.Source == document.PreviewSourceCustom:
			removed = append(removed, p.ID)
		case m.candidateSelected(p):
			removed = append(removed, p.ID)
		case !m.store.NodeCreating(p.ID):
			removed = append(removed, p.ID)
		default:
			restored = append(restored, p.ID)
		}
	}

	if len(removed) > 0 {
		err := m.sess.Transact(ctx, func(tx *document.Tx) error {
			for _, id := range removed {
				tx.Delete(document.MapPreviewNodes, id)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to clear stale previews: %w", err)
		}
		m.log.Debug().Int("count", len(removed)).Msg("cleared stale preview nodes")
	}

	for _, id := range restored {
		if restore != nil {
			restore(id)
		}
	}
	return nil
}

func (m *Manager) candidateSelected(p document.PreviewNode) bool {
	if p.Source != document.PreviewSourceCandidate {
		return false
	}
	candidate, ok := m.store.CandidateByID(p.ParentID, p.CandidateID)
	return ok && candidate.Selected
}
