// Package bridge is the server-originated writer: when the external
// AI/persistence system completes an operation, the bridge lands the
// result in the shared maps and clears the matching pending flag inside
// ONE transaction. This is the only path that marks true success, and
// every replica observes it identically.
package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/pkg/document"
)

// Bridge applies server-confirmed results to a workspace document.
// It runs with its own session (replica) on the server side.
type Bridge struct {
	sess *document.Session
	log  zerolog.Logger
}

// New creates a bridge over the given session.
func New(sess *document.Session, log zerolog.Logger) *Bridge {
	return &Bridge{sess: sess, log: log}
}

// ApplyCandidates lands a generated candidate list for a node and
// clears its candidates-pending flag in one transaction.
func (b *Bridge) ApplyCandidates(ctx context.Context, nodeID string, items []document.Candidate) error {
	list := document.CandidateList{NodeID: nodeID, Items: items}
	err := b.sess.Transact(ctx, func(tx *document.Tx) error {
		if err := tx.Set(document.MapCandidates, nodeID, list); err != nil {
			return err
		}
		return tx.Set(document.MapCandidatesPending, nodeID, false)
	})
	if err != nil {
		return fmt.Errorf("failed to apply candidates for node %s: %w", nodeID, err)
	}
	b.log.Debug().Str("node", nodeID).Int("count", len(items)).Msg("applied candidates")
	return nil
}

// ApplyTechRecommendations lands generated tech suggestions for a node
// and clears its techs-pending flag in one transaction.
func (b *Bridge) ApplyTechRecommendations(ctx context.Context, nodeID string, items []document.TechRecommendation) error {
	list := document.TechList{NodeID: nodeID, Items: items}
	err := b.sess.Transact(ctx, func(tx *document.Tx) error {
		if err := tx.Set(document.MapTechRecommendations, nodeID, list); err != nil {
			return err
		}
		return tx.Set(document.MapTechsPending, nodeID, false)
	})
	if err != nil {
		return fmt.Errorf("failed to apply tech recommendations for node %s: %w", nodeID, err)
	}
	return nil
}

// ConfirmTechSelection records the server-confirmed tech choice for a
// node, clearing any in-flight techs flag alongside it.
func (b *Bridge) ConfirmTechSelection(ctx context.Context, nodeID, techID string) error {
	err := b.sess.Transact(ctx, func(tx *document.Tx) error {
		if err := tx.Set(document.MapSelectedTech, nodeID, techID); err != nil {
			return err
		}
		return tx.Set(document.MapTechsPending, nodeID, false)
	})
	if err != nil {
		return fmt.Errorf("failed to confirm tech selection for node %s: %w", nodeID, err)
	}
	return nil
}

// ConfirmNodeCreation turns a confirmed preview into an authoritative
// node: the node write, the preview deletion, the pending-flag clear,
// and (for candidate-sourced previews) the candidate's selected mark
// all land in one transaction, so no replica ever sees the node and the
// preview coexist.
func (b *Bridge) ConfirmNodeCreation(ctx context.Context, previewID string, node document.Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("invalid node: %w", err)
	}

	preview, _ := document.GetAs[document.PreviewNode](b.sess.Map(document.MapPreviewNodes), previewID)

	err := b.sess.Transact(ctx, func(tx *document.Tx) error {
		if err := tx.Set(document.MapNodes, node.ID, node); err != nil {
			return err
		}
		tx.Delete(document.MapPreviewNodes, previewID)
		if err := tx.Set(document.MapNodeCreatingPending, previewID, false); err != nil {
			return err
		}

		if preview.Source == document.PreviewSourceCandidate && preview.CandidateID != "" {
			if list, ok := document.GetAs[document.CandidateList](b.sess.Map(document.MapCandidates), preview.ParentID); ok {
				for i := range list.Items {
					if list.Items[i].ID == preview.CandidateID {
						list.Items[i].Selected = true
					}
				}
				if err := tx.Set(document.MapCandidates, preview.ParentID, list); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to confirm node creation for preview %s: %w", previewID, err)
	}
	b.log.Debug().Str("preview", previewID).Str("node", node.ID).Msg("confirmed node creation")
	return nil
}
