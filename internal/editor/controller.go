// Package editor manages the transient "currently editing" record per
// node: the edit session state machine
// NoSession -> Editing -> {Committed | Cancelled} -> NoSession.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/pkg/document"
)

// ErrAlreadyEditing is returned when StartEdit finds another user's
// live session on the node. A second concurrent editor is rejected
// instead of silently overwriting the first's session.
var ErrAlreadyEditing = errors.New("node is already being edited by another user")

// Field names one editable value inside an edit session.
type Field string

const (
	FieldStatus     Field = "status"
	FieldPriority   Field = "priority"
	FieldDifficulty Field = "difficulty"
	FieldAssignee   Field = "assignee"
	FieldNote       Field = "note"
	FieldNodeType   Field = "node_type"
)

// SaveRequest carries the finalized values of a finished edit to the
// external persistence system. RequestID exists for correlation only;
// the save is fire-and-forget with no retry.
type SaveRequest struct {
	RequestID string
	NodeID    string
	Commit    document.ConfirmedCommit
}

// Saver issues the best-effort save request when an edit finishes.
// Implementations must not block the caller for long; failures surface
// asynchronously via the side channel's save-error path.
type Saver interface {
	SaveEdit(ctx context.Context, req SaveRequest) error
}

// Controller drives the edit-session lifecycle against the shared
// document. One controller per open workspace, owned by the workspace
// controller.
type Controller struct {
	sess  *document.Session
	store *readstore.Store
	saver Saver
	user  string
	log   zerolog.Logger

	mu        sync.RWMutex
	selected  string
	localEdit *document.EditSession
}

// New creates an edit controller for the given user identity.
func New(sess *document.Session, store *readstore.Store, saver Saver, user string, log zerolog.Logger) *Controller {
	c := &Controller{
		sess:  sess,
		store: store,
		saver: saver,
		user:  user,
		log:   log,
	}
	sess.Observe(c.observe)
	return c
}

// StartEdit opens an edit session for a node, seeding it with the
// current authoritative values from the read store. If authoritative
// data is missing the operation aborts with a logged warning and no
// partial state is written. A live session held by another user is
// rejected with ErrAlreadyEditing.
func (c *Controller) StartEdit(ctx context.Context, nodeID string) error {
	node, ok := c.store.Node(nodeID)
	if !ok {
		c.log.Warn().Str("node", nodeID).Msg("start edit aborted: no authoritative data")
		return nil
	}

	if existing, ok := c.store.EditSession(nodeID); ok && existing.Editor != c.user {
		return fmt.Errorf("%w: %s", ErrAlreadyEditing, existing.Editor)
	}

	es := document.EditSession{
		NodeID:      nodeID,
		Editor:      c.user,
		Status:      node.Data.Status,
		Priority:    node.Data.Priority,
		Difficulty:  node.Data.Difficulty,
		Assignee:    node.Data.Assignee,
		Note:        node.Data.Note,
		NodeType:    node.Type,
		StartedAtMs: time.Now().UnixMilli(),
	}

	return c.sess.Transact(ctx, func(tx *document.Tx) error {
		return tx.Set(document.MapEditSessions, nodeID, es)
	})
}

// UpdateField writes one field value into the node's live edit session.
// Every replica observing the map mirrors the same value: last full
// value wins, giving live-preview semantics rather than text merging.
// No-op when no session exists.
func (c *Controller) UpdateField(ctx context.Context, nodeID string, field Field, value string) error {
	es, ok := c.store.EditSession(nodeID)
	if !ok {
		return nil
	}

	switch field {
	case FieldStatus:
		es.Status = value
	case FieldPriority:
		es.Priority = value
	case FieldDifficulty:
		es.Difficulty = value
	case FieldAssignee:
		es.Assignee = value
	case FieldNote:
		es.Note = value
	case FieldNodeType:
		es.NodeType = document.NodeType(value)
	default:
		return fmt.Errorf("unknown edit field: %q", field)
	}

	return c.sess.Set(ctx, document.MapEditSessions, nodeID, es)
}

// FinishEdit ends an edit session successfully: it fires the
// best-effort save request, broadcasts the confirmed commit, and only
// then deletes the session entry. The commit-then-delete ordering is
// mandatory so observers never see a gap between session end and the
// finalized values landing.
func (c *Controller) FinishEdit(ctx context.Context, nodeID string) error {
	es, ok := c.store.EditSession(nodeID)
	if !ok {
		return nil
	}

	commit := document.ConfirmedCommit{
		NodeID:        nodeID,
		RequestID:     uuid.New().String(),
		Status:        es.Status,
		Priority:      es.Priority,
		Difficulty:    es.Difficulty,
		Assignee:      es.Assignee,
		Note:          es.Note,
		NodeType:      es.NodeType,
		CommittedAtMs: time.Now().UnixMilli(),
	}

	// Fire-and-forget: no retry, failures arrive via the side channel.
	go func() {
		req := SaveRequest{RequestID: commit.RequestID, NodeID: nodeID, Commit: commit}
		if err := c.saver.SaveEdit(context.WithoutCancel(ctx), req); err != nil {
			c.log.Warn().Str("node", nodeID).Str("request", commit.RequestID).Err(err).
				Msg("save request failed")
		}
	}()

	if err := c.sess.Set(ctx, document.MapConfirmedCommits, nodeID, commit); err != nil {
		return fmt.Errorf("failed to write commit: %w", err)
	}
	return c.sess.Delete(ctx, document.MapEditSessions, nodeID)
}

// CancelEdit discards a node's edit session without writing a commit.
func (c *Controller) CancelEdit(ctx context.Context, nodeID string) error {
	if _, ok := c.store.EditSession(nodeID); !ok {
		return nil
	}
	return c.sess.Delete(ctx, document.MapEditSessions, nodeID)
}

// SetSelectedNode tells the controller which node the local UI has
// focused, so edit-session changes for it are mirrored into LocalEdit.
func (c *Controller) SetSelectedNode(nodeID string) {
	c.mu.Lock()
	c.selected = nodeID
	c.localEdit = nil
	c.mu.Unlock()

	if es, ok := c.store.EditSession(nodeID); ok {
		c.mu.Lock()
		c.localEdit = &es
		c.mu.Unlock()
	}
}

// LocalEdit returns the edit state currently mirrored for the selected
// node. This is what restores the editing UI after a reconnect, and
// what reflects someone else's concurrent edit of the focused node.
func (c *Controller) LocalEdit() (document.EditSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.localEdit == nil {
		return document.EditSession{}, false
	}
	return *c.localEdit, true
}

// observe mirrors edit-session changes affecting the locally selected
// node into the local edit state.
func (c *Controller) observe(changes []document.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range changes {
		if ch.Map != document.MapEditSessions || ch.Key != c.selected || c.selected == "" {
			continue
		}
		if ch.Register.Deleted {
			c.localEdit = nil
			continue
		}
		if es, ok := document.GetAs[document.EditSession](c.sess.Map(document.MapEditSessions), ch.Key); ok {
			c.localEdit = &es
		}
	}
}
