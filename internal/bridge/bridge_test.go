package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/pkg/document"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Bridge) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr, newBridge(t, mr)
}

func newBridge(t *testing.T, mr *miniredis.Miniredis) *Bridge {
	t.Helper()
	sess, err := document.NewSession(&redis.Options{Addr: mr.Addr()}, "room-1", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Close() })
	return New(sess, zerolog.Nop())
}

// newClient simulates a collaborator replica with its own read store.
func newClient(t *testing.T, mr *miniredis.Miniredis) (*document.Session, *readstore.Store) {
	t.Helper()
	sess, err := document.NewSession(&redis.Options{Addr: mr.Addr()}, "room-1", zerolog.Nop())
	require.NoError(t, err)
	store := readstore.New(zerolog.Nop())
	store.Attach(sess)
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Close() })
	return sess, store
}

func TestApplyCandidates(t *testing.T) {
	mr, b := setup(t)
	sess, store := newClient(t, mr)
	ctx := context.Background()

	// The requester raised the flag before asking for suggestions.
	require.NoError(t, sess.Set(ctx, document.MapCandidatesPending, "42", true))

	items := []document.Candidate{{ID: "7", Title: "Add caching"}}
	require.NoError(t, b.ApplyCandidates(ctx, "42", items))

	// Result and flag clear land together on every replica.
	require.Eventually(t, func() bool {
		return len(store.CandidatesFor("42")) == 1 && !store.CandidatesPending("42")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApplyTechRecommendations(t *testing.T) {
	mr, b := setup(t)
	sess, store := newClient(t, mr)
	ctx := context.Background()

	require.NoError(t, sess.Set(ctx, document.MapTechsPending, "42", true))

	items := []document.TechRecommendation{{ID: "go", Name: "Go", Reason: "fits the team"}}
	require.NoError(t, b.ApplyTechRecommendations(ctx, "42", items))

	require.Eventually(t, func() bool {
		return len(store.TechsFor("42")) == 1 && !store.TechsPending("42")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfirmTechSelection(t *testing.T) {
	mr, b := setup(t)
	_, store := newClient(t, mr)
	ctx := context.Background()

	require.NoError(t, b.ConfirmTechSelection(ctx, "42", "go"))

	require.Eventually(t, func() bool {
		techID, ok := store.SelectedTech("42")
		return ok && techID == "go" && !store.TechsPending("42")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfirmNodeCreation(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects invalid node", func(t *testing.T) {
		_, b := setup(t)
		err := b.ConfirmNodeCreation(ctx, "preview-7", document.Node{ID: ""})
		assert.Error(t, err)
	})

	t.Run("candidate-sourced preview becomes a node on every replica", func(t *testing.T) {
		mr, b := setup(t)
		requester, reqStore := newClient(t, mr)
		_, observerStore := newClient(t, mr)

		// Node 42 holds candidate 7; the requester drafts it and raises
		// the creating flag.
		parent := document.Node{ID: "42", Type: document.NodeTypeTask, Data: document.NodeData{Title: "Parent"}}
		require.NoError(t, requester.Set(ctx, document.MapNodes, "42", parent))

		list := document.CandidateList{NodeID: "42", Items: []document.Candidate{{ID: "7", Title: "Add caching"}}}
		require.NoError(t, requester.Set(ctx, document.MapCandidates, "42", list))

		preview := document.PreviewNode{
			ID:          document.PreviewIDForCandidate("7"),
			Type:        document.NodeTypePreview,
			ParentID:    "42",
			Data:        document.NodeData{Title: "Add caching"},
			LockedBy:    "alice",
			Source:      document.PreviewSourceCandidate,
			CandidateID: "7",
		}
		require.NoError(t, requester.Transact(ctx, func(tx *document.Tx) error {
			if err := tx.Set(document.MapPreviewNodes, preview.ID, preview); err != nil {
				return err
			}
			return tx.Set(document.MapNodeCreatingPending, preview.ID, true)
		}))

		// A second collaborator sees the draft and its pending state.
		require.Eventually(t, func() bool {
			_, ok := observerStore.Preview("preview-7")
			return ok && observerStore.NodeCreating("preview-7")
		}, 2*time.Second, 10*time.Millisecond)

		// The bridge needs the preview synced before it can confirm it.
		require.Eventually(t, func() bool {
			_, ok := document.GetAs[document.PreviewNode](b.sess.Map(document.MapPreviewNodes), "preview-7")
			return ok
		}, 2*time.Second, 10*time.Millisecond)

		created := document.Node{ID: "99", Type: document.NodeTypeTask, ParentID: "42", Data: document.NodeData{Title: "Add caching"}}
		require.NoError(t, b.ConfirmNodeCreation(ctx, "preview-7", created))

		for _, store := range []*readstore.Store{reqStore, observerStore} {
			require.Eventually(t, func() bool {
				_, hasNode := store.Node("99")
				_, hasPreview := store.Preview("preview-7")
				return hasNode && !hasPreview && !store.NodeCreating("preview-7")
			}, 2*time.Second, 10*time.Millisecond)

			c, ok := store.CandidateByID("42", "7")
			require.True(t, ok)
			assert.True(t, c.Selected, "confirmed candidate is marked selected")
		}
	})

	t.Run("custom preview leaves candidates alone", func(t *testing.T) {
		mr, b := setup(t)
		requester, store := newClient(t, mr)

		preview := document.PreviewNode{
			ID: "custom-1", Type: document.NodeTypePreview, ParentID: "42",
			Data: document.NodeData{Title: "Draft"}, LockedBy: "alice", Source: document.PreviewSourceCustom,
		}
		require.NoError(t, requester.Set(ctx, document.MapPreviewNodes, "custom-1", preview))

		require.Eventually(t, func() bool {
			_, ok := document.GetAs[document.PreviewNode](b.sess.Map(document.MapPreviewNodes), "custom-1")
			return ok
		}, 2*time.Second, 10*time.Millisecond)

		created := document.Node{ID: "100", Type: document.NodeTypeTask, ParentID: "42", Data: document.NodeData{Title: "Draft"}}
		require.NoError(t, b.ConfirmNodeCreation(ctx, "custom-1", created))

		require.Eventually(t, func() bool {
			_, hasNode := store.Node("100")
			_, hasPreview := store.Preview("custom-1")
			return hasNode && !hasPreview
		}, 2*time.Second, 10*time.Millisecond)
		assert.Empty(t, store.CandidatesFor("42"))
	})
}
