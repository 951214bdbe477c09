// Package pending tracks in-flight asynchronous server operations via
// shared boolean flags, so every connected replica derives "is
// generating" state identically regardless of who triggered the work.
package pending

import (
	"context"
	"fmt"

	"github.com/treeline-app/treeline/pkg/document"
)

// Kind identifies one class of async operation.
type Kind string

const (
	// KindCandidates marks candidate-suggestion generation for a node.
	KindCandidates Kind = "candidates"

	// KindTechs marks tech-recommendation generation for a node.
	KindTechs Kind = "techs"

	// KindNodeCreating marks server-side node creation for a preview.
	KindNodeCreating Kind = "node_creating"
)

// MapFor returns the shared map backing a pending kind.
func MapFor(kind Kind) (document.MapName, error) {
	switch kind {
	case KindCandidates:
		return document.MapCandidatesPending, nil
	case KindTechs:
		return document.MapTechsPending, nil
	case KindNodeCreating:
		return document.MapNodeCreatingPending, nil
	default:
		return "", fmt.Errorf("unknown pending kind: %q", kind)
	}
}

// Coordinator owns the requester side of the pending protocol:
//
//  1. Begin sets the flag true before the request is issued.
//  2. The request goes to the external system (out of scope here).
//  3. On local failure, Fail clears the flag (requester-owned rollback).
//  4. On success, the server bridge writes the result and clears the
//     flag inside one transaction - the only path marking true success.
//
// Flags are last-writer-wins registers, so a stale failure clear
// arriving after the bridge's success clear is harmless: both leave the
// flag false.
type Coordinator struct {
	sess *document.Session
}

// New creates a coordinator over the given session.
func New(sess *document.Session) *Coordinator {
	return &Coordinator{sess: sess}
}

// Begin marks an operation in flight. Call before issuing the request.
func (c *Coordinator) Begin(ctx context.Context, kind Kind, id string) error {
	return c.Set(ctx, kind, id, true)
}

// Fail clears an operation's flag after a local request failure.
func (c *Coordinator) Fail(ctx context.Context, kind Kind, id string) error {
	return c.Set(ctx, kind, id, false)
}

// Set writes a pending flag directly. Begin and Fail are the usual
// entry points; Set exists for the raw command surface.
func (c *Coordinator) Set(ctx context.Context, kind Kind, id string, pending bool) error {
	name, err := MapFor(kind)
	if err != nil {
		return err
	}
	return c.sess.Set(ctx, name, id, pending)
}
