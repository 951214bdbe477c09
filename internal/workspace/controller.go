// Package workspace wires the collaboration engine together: the
// session manager, the read store, and the controllers for edits,
// previews, pending operations, presence, and undo. It owns their
// lifetimes and exposes the command surface the UI calls.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/editor"
	"github.com/treeline-app/treeline/internal/pending"
	"github.com/treeline-app/treeline/internal/presence"
	"github.com/treeline-app/treeline/internal/preview"
	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/internal/router"
	"github.com/treeline-app/treeline/internal/undo"
	"github.com/treeline-app/treeline/pkg/document"
)

// ErrNoWorkspace is returned by commands issued while no workspace is
// open.
var ErrNoWorkspace = errors.New("no workspace is open")

// Controller is the top-level owner of one user's collaboration state.
// Enter and Leave manage the per-room lifecycle; every other method is
// a command or read operation against the open workspace.
type Controller struct {
	cfg   *config.Config
	log   zerolog.Logger
	saver editor.Saver

	manager *document.Manager
	store   *readstore.Store

	mu           sync.RWMutex
	sess         *document.Session
	edits        *editor.Controller
	previews     *preview.Manager
	pendingOps   *pending.Coordinator
	tracker      *presence.Tracker
	history      *undo.Manager
	routerCancel context.CancelFunc
}

// New creates a workspace controller. saver issues the best-effort
// persistence request when an edit finishes.
func New(cfg *config.Config, saver editor.Saver, log zerolog.Logger) *Controller {
	c := &Controller{
		cfg:   cfg,
		log:   log,
		saver: saver,
		store: readstore.New(log),
	}

	c.manager = document.NewManager(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	c.manager.OnCreate(c.store.Attach)
	c.manager.OnDestroy(c.store.Reset)

	return c
}

// Store exposes the reactive read surface consumed by UI collaborators.
// Consumers only read; they never write the shared maps directly.
func (c *Controller) Store() *readstore.Store {
	return c.store
}

// Session returns the active document session, or nil.
func (c *Controller) Session() *document.Session {
	return c.manager.Get()
}

// Status returns the connection status of the open workspace.
func (c *Controller) Status() document.Status {
	return c.store.Status()
}

// Enter opens (or switches to) a workspace room. Re-entering the
// current room is a no-op; entering a different room tears the previous
// one down first. After the first successful sync, preview nodes left
// over from a previous connection are reconciled: stale drafts are
// cleared and still-pending owned previews have their "creating" UI
// state restored.
func (c *Controller) Enter(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && c.sess.Room() == roomID {
		return nil
	}
	if c.sess != nil {
		c.leaveLocked()
	}

	sess, err := c.manager.Init(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to enter workspace %s: %w", roomID, err)
	}
	c.sess = sess

	user := c.cfg.User.Name
	c.edits = editor.New(sess, c.store, c.saver, user, c.log)
	c.previews = preview.New(sess, c.store, user, c.log)
	c.pendingOps = pending.New(sess)
	c.history = undo.New(sess, c.cfg.UndoCaptureWindow(), c.log)

	c.tracker = presence.New(sess, user, c.cfg.User.Color, c.cfg.PresenceTTL(), c.cfg.PresenceHeartbeat(), c.log)
	if err := c.tracker.Start(ctx); err != nil {
		c.log.Warn().Err(err).Msg("presence tracking unavailable")
		c.tracker = nil
	}

	routerCtx, cancel := context.WithCancel(context.Background())
	c.routerCancel = cancel
	r := router.New(c.store, c.log, nil)
	go r.Run(routerCtx, sess.ControlFrames())

	sess.OnFirstSync(func() {
		if err := c.previews.ClearNonPending(ctx, user, c.store.MarkCreatingRestored); err != nil {
			c.log.Warn().Err(err).Msg("preview reconciliation failed")
		}
	})

	c.log.Info().Str("room", roomID).Msg("entered workspace")
	return nil
}

// Leave closes the open workspace. Already-issued async create and
// generate requests are not cancelled; their completions simply go
// unobserved by this now-destroyed session.
func (c *Controller) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked()
}

func (c *Controller) leaveLocked() {
	if c.sess == nil {
		return
	}
	if c.tracker != nil {
		c.tracker.Stop()
		c.tracker = nil
	}
	if c.routerCancel != nil {
		c.routerCancel()
		c.routerCancel = nil
	}
	c.manager.Destroy()
	c.sess = nil
	c.edits = nil
	c.previews = nil
	c.pendingOps = nil
	c.history = nil
}

// --- Edit commands ---

// StartEdit opens an edit session on a node.
func (c *Controller) StartEdit(ctx context.Context, nodeID string) error {
	edits, err := c.editsRef()
	if err != nil {
		return err
	}
	return edits.StartEdit(ctx, nodeID)
}

// UpdateField writes one live field value into a node's edit session.
func (c *Controller) UpdateField(ctx context.Context, nodeID string, field editor.Field, value string) error {
	edits, err := c.editsRef()
	if err != nil {
		return err
	}
	return edits.UpdateField(ctx, nodeID, field, value)
}

// FinishEdit commits a node's edit session.
func (c *Controller) FinishEdit(ctx context.Context, nodeID string) error {
	edits, err := c.editsRef()
	if err != nil {
		return err
	}
	return edits.FinishEdit(ctx, nodeID)
}

// CancelEdit discards a node's edit session.
func (c *Controller) CancelEdit(ctx context.Context, nodeID string) error {
	edits, err := c.editsRef()
	if err != nil {
		return err
	}
	return edits.CancelEdit(ctx, nodeID)
}

// SelectNode focuses a node locally: presence broadcasts it and edit
// mirroring follows it.
func (c *Controller) SelectNode(ctx context.Context, nodeID string) {
	c.mu.RLock()
	edits, tracker := c.edits, c.tracker
	c.mu.RUnlock()

	if edits != nil {
		edits.SetSelectedNode(nodeID)
	}
	if tracker != nil {
		tracker.SetActiveNode(ctx, nodeID)
	}
}

// --- Preview commands ---

// AddPreviewNode drafts a custom preview node.
func (c *Controller) AddPreviewNode(ctx context.Context, previewID, parentID string, pos document.Position, data document.NodeData) error {
	previews, err := c.previewsRef()
	if err != nil {
		return err
	}
	return previews.AddCustom(ctx, previewID, parentID, pos, data)
}

// AddPreviewFromCandidate drafts a preview node from an AI candidate
// and marks its creation pending, returning the preview ID.
func (c *Controller) AddPreviewFromCandidate(ctx context.Context, nodeID, candidateID string, pos document.Position) (string, error) {
	c.mu.RLock()
	previews, pendingOps := c.previews, c.pendingOps
	c.mu.RUnlock()
	if previews == nil {
		return "", ErrNoWorkspace
	}

	previewID, err := previews.AddFromCandidate(ctx, nodeID, candidateID, pos)
	if err != nil {
		return "", err
	}
	if err := pendingOps.Begin(ctx, pending.KindNodeCreating, previewID); err != nil {
		return "", err
	}
	return previewID, nil
}

// RemovePreviewNode cancels one draft node.
func (c *Controller) RemovePreviewNode(ctx context.Context, previewID string) error {
	previews, err := c.previewsRef()
	if err != nil {
		return err
	}
	return previews.Remove(ctx, previewID)
}

// ClearPreviewNodes removes every draft owned by the local user.
func (c *Controller) ClearPreviewNodes(ctx context.Context) error {
	previews, err := c.previewsRef()
	if err != nil {
		return err
	}
	return previews.Clear(ctx)
}

// --- Pending operations ---

// BeginPending marks an async operation in flight before its request is
// issued.
func (c *Controller) BeginPending(ctx context.Context, kind pending.Kind, id string) error {
	ops, err := c.pendingRef()
	if err != nil {
		return err
	}
	return ops.Begin(ctx, kind, id)
}

// FailPending rolls back an async operation's flag after a local
// request failure.
func (c *Controller) FailPending(ctx context.Context, kind pending.Kind, id string) error {
	ops, err := c.pendingRef()
	if err != nil {
		return err
	}
	return ops.Fail(ctx, kind, id)
}

// SetPending writes a pending flag directly.
func (c *Controller) SetPending(ctx context.Context, kind pending.Kind, id string, value bool) error {
	ops, err := c.pendingRef()
	if err != nil {
		return err
	}
	return ops.Set(ctx, kind, id, value)
}

// --- Graph commands ---

// CreateNode writes a new authoritative node. Used for nodes authored
// locally without going through the preview flow.
func (c *Controller) CreateNode(ctx context.Context, node document.Node) error {
	sess, err := c.sessRef()
	if err != nil {
		return err
	}
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}
	return sess.Set(ctx, document.MapNodes, node.ID, node)
}

// MoveNode updates a node's canvas position.
func (c *Controller) MoveNode(ctx context.Context, nodeID string, pos document.Position) error {
	sess, err := c.sessRef()
	if err != nil {
		return err
	}
	node, ok := c.store.Node(nodeID)
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	node.Position = pos
	return sess.Set(ctx, document.MapNodes, nodeID, node)
}

// DeleteNode tombstones a node in the graph.
func (c *Controller) DeleteNode(ctx context.Context, nodeID string) error {
	sess, err := c.sessRef()
	if err != nil {
		return err
	}
	return sess.Delete(ctx, document.MapNodes, nodeID)
}

// DeleteCandidate removes one AI candidate suggestion from a node.
func (c *Controller) DeleteCandidate(ctx context.Context, nodeID, candidateID string) error {
	sess, err := c.sessRef()
	if err != nil {
		return err
	}

	items := c.store.CandidatesFor(nodeID)
	kept := items[:0]
	for _, item := range items {
		if item.ID != candidateID {
			kept = append(kept, item)
		}
	}
	list := document.CandidateList{NodeID: nodeID, Items: kept}
	return sess.Set(ctx, document.MapCandidates, nodeID, list)
}

// SelectTech records the user's confirmed tech selection for a node.
func (c *Controller) SelectTech(ctx context.Context, nodeID, techID string) error {
	sess, err := c.sessRef()
	if err != nil {
		return err
	}
	return sess.Set(ctx, document.MapSelectedTech, nodeID, techID)
}

// --- Presence ---

// SetCursor broadcasts the local cursor position.
func (c *Controller) SetCursor(ctx context.Context, x, y float64) {
	c.mu.RLock()
	tracker := c.tracker
	c.mu.RUnlock()
	if tracker != nil {
		tracker.SetCursor(ctx, x, y)
	}
}

// PresenceOnNode returns the other connections focused on a node.
func (c *Controller) PresenceOnNode(nodeID string) []document.Presence {
	c.mu.RLock()
	tracker := c.tracker
	c.mu.RUnlock()
	if tracker == nil {
		return nil
	}
	return tracker.OnNode(nodeID)
}

// --- Undo/redo ---

// Undo reverts the latest local node-graph step.
func (c *Controller) Undo(ctx context.Context) bool {
	c.mu.RLock()
	history := c.history
	c.mu.RUnlock()
	return history != nil && history.Undo(ctx)
}

// Redo re-applies the latest undone step.
func (c *Controller) Redo(ctx context.Context) bool {
	c.mu.RLock()
	history := c.history
	c.mu.RUnlock()
	return history != nil && history.Redo(ctx)
}

// CanUndo reports whether undo history is available.
func (c *Controller) CanUndo() bool {
	c.mu.RLock()
	history := c.history
	c.mu.RUnlock()
	return history != nil && history.CanUndo()
}

// CanRedo reports whether redo history is available.
func (c *Controller) CanRedo() bool {
	c.mu.RLock()
	history := c.history
	c.mu.RUnlock()
	return history != nil && history.CanRedo()
}

// LocalEdit returns the edit state mirrored for the selected node.
func (c *Controller) LocalEdit() (document.EditSession, bool) {
	c.mu.RLock()
	edits := c.edits
	c.mu.RUnlock()
	if edits == nil {
		return document.EditSession{}, false
	}
	return edits.LocalEdit()
}

func (c *Controller) sessRef() (*document.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return nil, ErrNoWorkspace
	}
	return c.sess, nil
}

func (c *Controller) editsRef() (*editor.Controller, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.edits == nil {
		return nil, ErrNoWorkspace
	}
	return c.edits, nil
}

func (c *Controller) previewsRef() (*preview.Manager, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.previews == nil {
		return nil, ErrNoWorkspace
	}
	return c.previews, nil
}

func (c *Controller) pendingRef() (*pending.Coordinator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pendingOps == nil {
		return nil, ErrNoWorkspace
	}
	return c.pendingOps, nil
}
