package preview

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/pkg/document"
)

func setup(t *testing.T, user string) (*document.Session, *readstore.Store, *Manager) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	sess, err := document.NewSession(&redis.Options{Addr: mr.Addr()}, "room-1", zerolog.Nop())
	require.NoError(t, err)
	store := readstore.New(zerolog.Nop())
	store.Attach(sess)
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Close() })

	return sess, store, New(sess, store, user, zerolog.Nop())
}

func TestAddCustom(t *testing.T) {
	ctx := context.Background()
	_, store, mgr := setup(t, "alice")

	err := mgr.AddCustom(ctx, "preview-x", "42", document.Position{X: 10, Y: 20}, document.NodeData{Title: "Draft"})
	require.NoError(t, err)

	p, ok := store.Preview("preview-x")
	require.True(t, ok)
	assert.Equal(t, "alice", p.LockedBy)
	assert.Equal(t, document.PreviewSourceCustom, p.Source)
	assert.Equal(t, document.NodeTypePreview, p.Type)

	t.Run("rejects invalid draft", func(t *testing.T) {
		err := mgr.AddCustom(ctx, "", "42", document.Position{}, document.NodeData{Title: "x"})
		assert.Error(t, err)
	})
}

func TestAddFromCandidate(t *testing.T) {
	ctx := context.Background()
	sess, store, mgr := setup(t, "alice")

	list := document.CandidateList{NodeID: "42", Items: []document.Candidate{
		{ID: "7", Title: "Add caching", Summary: "cache hot paths"},
	}}
	require.NoError(t, sess.Set(ctx, document.MapCandidates, "42", list))

	previewID, err := mgr.AddFromCandidate(ctx, "42", "7", document.Position{X: 1})
	require.NoError(t, err)
	assert.Equal(t, "preview-7", previewID)

	p, ok := store.Preview("preview-7")
	require.True(t, ok)
	assert.Equal(t, document.PreviewSourceCandidate, p.Source)
	assert.Equal(t, "7", p.CandidateID)
	assert.Equal(t, "42", p.ParentID)
	assert.Equal(t, "Add caching", p.Data.Title)
	assert.Equal(t, "cache hot paths", p.Data.Note)

	t.Run("unknown candidate errors", func(t *testing.T) {
		_, err := mgr.AddFromCandidate(ctx, "42", "99", document.Position{})
		assert.Error(t, err)
	})
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	sess, store, mgr := setup(t, "alice")

	require.NoError(t, mgr.AddCustom(ctx, "p1", "42", document.Position{}, document.NodeData{Title: "a"}))
	require.NoError(t, mgr.AddCustom(ctx, "p2", "42", document.Position{}, document.NodeData{Title: "b"}))

	// A draft owned by someone else must survive Clear.
	theirs := document.PreviewNode{
		ID: "p3", Type: document.NodeTypePreview, ParentID: "42",
		Data: document.NodeData{Title: "c"}, LockedBy: "bob", Source: document.PreviewSourceCustom,
	}
	require.NoError(t, sess.Set(ctx, document.MapPreviewNodes, "p3", theirs))

	require.NoError(t, mgr.Remove(ctx, "p1"))
	_, ok := store.Preview("p1")
	assert.False(t, ok)

	require.NoError(t, mgr.Clear(ctx))
	_, ok = store.Preview("p2")
	assert.False(t, ok)
	_, ok = store.Preview("p3")
	assert.True(t, ok)
}

func TestClearNonPending(t *testing.T) {
	ctx := context.Background()
	sess, store, mgr := setup(t, "alice")

	candidates := document.CandidateList{NodeID: "42", Items: []document.Candidate{
		{ID: "1", Title: "kept pending"},
		{ID: "2", Title: "already selected", Selected: true},
		{ID: "3", Title: "not pending"},
	}}
	require.NoError(t, sess.Set(ctx, document.MapCandidates, "42", candidates))

	// Stale custom draft from before the refresh.
	require.NoError(t, mgr.AddCustom(ctx, "custom-1", "42", document.Position{}, document.NodeData{Title: "stale"}))

	// Candidate previews in each reconciliation state.
	for _, id := range []string{"1", "2", "3"} {
		_, err := mgr.AddFromCandidate(ctx, "42", id, document.Position{})
		require.NoError(t, err)
	}
	require.NoError(t, sess.Set(ctx, document.MapNodeCreatingPending, "preview-1", true))

	// Someone else's pending draft is out of scope entirely.
	other := document.PreviewNode{
		ID: "theirs", Type: document.NodeTypePreview, ParentID: "42",
		Data: document.NodeData{Title: "bob's"}, LockedBy: "bob", Source: document.PreviewSourceCustom,
	}
	require.NoError(t, sess.Set(ctx, document.MapPreviewNodes, "theirs", other))

	var restored []string
	require.NoError(t, mgr.ClearNonPending(ctx, "alice", func(id string) { restored = append(restored, id) }))

	_, ok := store.Preview("custom-1")
	assert.False(t, ok, "custom drafts are always removed")
	_, ok = store.Preview("preview-2")
	assert.False(t, ok, "selected candidates are stale leftovers")
	_, ok = store.Preview("preview-3")
	assert.False(t, ok, "non-pending candidate drafts are removed")
	_, ok = store.Preview("preview-1")
	assert.True(t, ok, "pending creation survives the refresh")
	_, ok = store.Preview("theirs")
	assert.True(t, ok, "other users' drafts are untouched")

	assert.Equal(t, []string{"preview-1"}, restored)
}
