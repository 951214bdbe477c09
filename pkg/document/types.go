package document

import (
	"fmt"
)

// NodeType classifies an entry in the workspace node graph.
type NodeType string

const (
	// NodeTypeProject is the root of a workspace tree.
	NodeTypeProject NodeType = "project"

	// NodeTypeTask is a regular work item within the tree.
	NodeTypeTask NodeType = "task"

	// NodeTypeMilestone groups tasks under a delivery checkpoint.
	NodeTypeMilestone NodeType = "milestone"

	// NodeTypePreview is a draft node awaiting server confirmation.
	// Preview nodes live in the preview_nodes map, never in nodes.
	NodeTypePreview NodeType = "preview"
)

// Position is a node's placement on the workspace canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the editable field values of a node.
// Every field is a plain string; the last full value written wins on
// concurrent edits (no operation merging).
type NodeData struct {
	Title      string `json:"title"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Assignee   string `json:"assignee,omitempty"`
	Note       string `json:"note,omitempty"`
}

// Node is an authoritative entry in the workspace node graph.
// Node identity is immutable: position and data fields are the only
// mutable leaf values. Restructuring never deletes and recreates an ID.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	ParentID string   `json:"parent_id,omitempty"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// PreviewSource records how a preview node came to exist, which decides
// how it is reconciled after a reconnect.
type PreviewSource string

const (
	// PreviewSourceCustom marks a preview drafted directly by a user.
	PreviewSourceCustom PreviewSource = "custom"

	// PreviewSourceCandidate marks a preview created from an AI candidate.
	PreviewSourceCandidate PreviewSource = "candidate"
)

// PreviewNode is a draft node visible to all collaborators before its
// creation is confirmed or cancelled. LockedBy identifies the sole user
// entitled to confirm or cancel it.
type PreviewNode struct {
	ID          string        `json:"id"`
	Type        NodeType      `json:"type"` // always NodeTypePreview
	ParentID    string        `json:"parent_id"`
	Position    Position      `json:"position"`
	Data        NodeData      `json:"data"`
	LockedBy    string        `json:"locked_by"`
	Source      PreviewSource `json:"source"`
	CandidateID string        `json:"candidate_id,omitempty"` // set when Source is candidate
}

// EditSession is the transient "someone is editing" snapshot for a node.
// At most one session exists per node ID at any time.
type EditSession struct {
	NodeID      string   `json:"node_id"`
	Editor      string   `json:"editor"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Difficulty  string   `json:"difficulty"`
	Assignee    string   `json:"assignee"`
	Note        string   `json:"note"`
	NodeType    NodeType `json:"node_type"`
	StartedAtMs int64    `json:"started_at_ms"`
}

// ConfirmedCommit carries the finalized field values broadcast once per
// finished edit. RequestID correlates the commit with the best-effort
// save request; re-applying a commit with the same RequestID is a no-op
// for the read store.
type ConfirmedCommit struct {
	NodeID        string   `json:"node_id"`
	RequestID     string   `json:"request_id"`
	Status        string   `json:"status"`
	Priority      string   `json:"priority"`
	Difficulty    string   `json:"difficulty"`
	Assignee      string   `json:"assignee"`
	Note          string   `json:"note"`
	NodeType      NodeType `json:"node_type"`
	CommittedAtMs int64    `json:"committed_at_ms"`
}

// Candidate is one AI-generated next-node suggestion for a node.
type Candidate struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary,omitempty"`
	Selected bool   `json:"selected"`
}

// CandidateList is the candidates map value: all current suggestions
// for one node, replaced wholesale by the server bridge.
type CandidateList struct {
	NodeID string      `json:"node_id"`
	Items  []Candidate `json:"items"`
}

// TechRecommendation is one AI-generated technology suggestion.
type TechRecommendation struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// TechList is the tech_recommendations map value for one node.
type TechList struct {
	NodeID string               `json:"node_id"`
	Items  []TechRecommendation `json:"items"`
}

// Presence is the ephemeral per-connection state layered on a session.
// It is never written into the document; it lives in TTL keys and
// expires implicitly when the owning connection drops.
type Presence struct {
	ConnID       string    `json:"conn_id"`
	User         string    `json:"user"`
	Color        string    `json:"color,omitempty"`
	Cursor       *Position `json:"cursor,omitempty"`
	ActiveNodeID string    `json:"active_node_id,omitempty"`
	UpdatedAtMs  int64     `json:"updated_at_ms"`
}

// Validate checks that the NodeType is a known enum value.
func (nt NodeType) Validate() error {
	switch nt {
	case NodeTypeProject, NodeTypeTask, NodeTypeMilestone, NodeTypePreview:
		return nil
	default:
		return fmt.Errorf("unknown node type: %q", nt)
	}
}

// Validate checks if the Node has valid field values.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if err := n.Type.Validate(); err != nil {
		return fmt.Errorf("invalid node type: %w", err)
	}
	if n.Type == NodeTypePreview {
		return fmt.Errorf("preview nodes belong in the preview_nodes map, not nodes")
	}
	if n.Data.Title == "" {
		return fmt.Errorf("node title cannot be empty")
	}
	return nil
}

// Validate checks if the PreviewNode has valid field values.
func (p *PreviewNode) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("preview ID cannot be empty")
	}
	if p.Type != NodeTypePreview {
		return fmt.Errorf("preview node must have type %q, got %q", NodeTypePreview, p.Type)
	}
	if p.LockedBy == "" {
		return fmt.Errorf("preview locked_by cannot be empty")
	}
	switch p.Source {
	case PreviewSourceCustom:
	case PreviewSourceCandidate:
		if p.CandidateID == "" {
			return fmt.Errorf("candidate-sourced preview requires a candidate ID")
		}
	default:
		return fmt.Errorf("unknown preview source: %q", p.Source)
	}
	return nil
}

// Validate checks if the EditSession has valid field values.
func (e *EditSession) Validate() error {
	if e.NodeID == "" {
		return fmt.Errorf("edit session node ID cannot be empty")
	}
	if e.Editor == "" {
		return fmt.Errorf("edit session editor cannot be empty")
	}
	return nil
}

// Validate checks if the ConfirmedCommit has valid field values.
func (c *ConfirmedCommit) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("commit node ID cannot be empty")
	}
	if c.RequestID == "" {
		return fmt.Errorf("commit request ID cannot be empty")
	}
	return nil
}

// PreviewIDForCandidate returns the deterministic preview ID used when a
// candidate suggestion is turned into a draft node.
func PreviewIDForCandidate(candidateID string) string {
	return "preview-" + candidateID
}
