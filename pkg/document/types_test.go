package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeValidate(t *testing.T) {
	t.Run("accepts valid node", func(t *testing.T) {
		node := &Node{
			ID:   "42",
			Type: NodeTypeTask,
			Data: NodeData{Title: "Implement sync"},
		}
		assert.NoError(t, node.Validate())
	})

	t.Run("rejects empty ID", func(t *testing.T) {
		node := &Node{Type: NodeTypeTask, Data: NodeData{Title: "x"}}
		assert.Error(t, node.Validate())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		node := &Node{ID: "42", Type: "sticky-note", Data: NodeData{Title: "x"}}
		assert.Error(t, node.Validate())
	})

	t.Run("rejects preview type in node graph", func(t *testing.T) {
		node := &Node{ID: "42", Type: NodeTypePreview, Data: NodeData{Title: "x"}}
		err := node.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "preview")
	})

	t.Run("rejects empty title", func(t *testing.T) {
		node := &Node{ID: "42", Type: NodeTypeTask}
		assert.Error(t, node.Validate())
	})
}

func TestPreviewNodeValidate(t *testing.T) {
	valid := func() PreviewNode {
		return PreviewNode{
			ID:       "preview-7",
			Type:     NodeTypePreview,
			ParentID: "42",
			Data:     NodeData{Title: "Draft"},
			LockedBy: "alice",
			Source:   PreviewSourceCustom,
		}
	}

	t.Run("accepts valid custom preview", func(t *testing.T) {
		p := valid()
		assert.NoError(t, p.Validate())
	})

	t.Run("accepts candidate preview with candidate ID", func(t *testing.T) {
		p := valid()
		p.Source = PreviewSourceCandidate
		p.CandidateID = "7"
		assert.NoError(t, p.Validate())
	})

	t.Run("rejects candidate preview without candidate ID", func(t *testing.T) {
		p := valid()
		p.Source = PreviewSourceCandidate
		assert.Error(t, p.Validate())
	})

	t.Run("rejects wrong type", func(t *testing.T) {
		p := valid()
		p.Type = NodeTypeTask
		assert.Error(t, p.Validate())
	})

	t.Run("rejects missing owner", func(t *testing.T) {
		p := valid()
		p.LockedBy = ""
		assert.Error(t, p.Validate())
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		p := valid()
		p.Source = "telepathy"
		assert.Error(t, p.Validate())
	})
}

func TestEditSessionValidate(t *testing.T) {
	t.Run("accepts valid session", func(t *testing.T) {
		es := &EditSession{NodeID: "42", Editor: "alice"}
		assert.NoError(t, es.Validate())
	})

	t.Run("rejects missing editor", func(t *testing.T) {
		es := &EditSession{NodeID: "42"}
		assert.Error(t, es.Validate())
	})
}

func TestPreviewIDForCandidate(t *testing.T) {
	assert.Equal(t, "preview-7", PreviewIDForCandidate("7"))
}

func TestRegisterNewerThan(t *testing.T) {
	t.Run("higher timestamp wins", func(t *testing.T) {
		a := Register{UpdatedAtMs: 200, ReplicaID: "a"}
		b := Register{UpdatedAtMs: 100, ReplicaID: "z"}
		assert.True(t, a.NewerThan(b))
		assert.False(t, b.NewerThan(a))
	})

	t.Run("equal timestamps break by replica ID", func(t *testing.T) {
		a := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		b := Register{UpdatedAtMs: 100, ReplicaID: "b"}
		assert.True(t, b.NewerThan(a))
		assert.False(t, a.NewerThan(b))
	})

	t.Run("ordering is total", func(t *testing.T) {
		a := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		assert.False(t, a.NewerThan(a))
	})
}

func TestRegisterSupersedes(t *testing.T) {
	t.Run("same replica ties go to the incoming write", func(t *testing.T) {
		current := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		incoming := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		assert.True(t, incoming.Supersedes(current))
	})

	t.Run("same replica older write loses", func(t *testing.T) {
		current := Register{UpdatedAtMs: 200, ReplicaID: "a"}
		incoming := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		assert.False(t, incoming.Supersedes(current))
	})

	t.Run("different replicas fall back to timestamp and tiebreak", func(t *testing.T) {
		a := Register{UpdatedAtMs: 100, ReplicaID: "a"}
		b := Register{UpdatedAtMs: 100, ReplicaID: "b"}
		assert.True(t, b.Supersedes(a))
		assert.False(t, a.Supersedes(b))
	})
}
