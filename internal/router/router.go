// Package router demultiplexes side-channel control frames that arrive
// over the same transport as document sync traffic. Frames are textual
// JSON envelopes; binary sync frames and other non-JSON payloads share
// the channel and are silently ignored. Each envelope carries a type
// and either flat fields or a nested payload object; the router
// normalizes both shapes at the boundary so field aliasing never leaks
// into the rest of the engine.
package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/internal/readstore"
)

// envelope is the raw wire shape of a control frame. Payload, when
// present, holds the same fields nested one level down.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	aiFields
	saveErrorFields
}

// aiFields are the flat-form fields of a streaming AI message.
// Content and Text are aliases for the same concept.
type aiFields struct {
	NodeID     string `json:"nodeId"`
	Category   string `json:"category"`
	Content    string `json:"content"`
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
}

// saveErrorFields are the flat-form fields of a failure notice.
type saveErrorFields struct {
	Action string `json:"action"`
}

// body returns the normalized field source: the nested payload when it
// is a JSON object, the flat envelope otherwise.
func (e *envelope) body() ([]byte, bool) {
	trimmed := strings.TrimSpace(string(e.Payload))
	if strings.HasPrefix(trimmed, "{") {
		return e.Payload, true
	}
	return nil, false
}

// Router consumes control frames and applies their effects to the read
// store. Parsing failures are swallowed: the channel is shared with
// binary traffic, so non-JSON frames are expected, not errors.
type Router struct {
	store       *readstore.Store
	log         zerolog.Logger
	onSaveError func(nodeID, action string)
}

// New creates a router writing into store. onSaveError, when non-nil,
// is invoked for user-facing failure toasts; it runs on the routing
// goroutine and must not block.
func New(store *readstore.Store, log zerolog.Logger, onSaveError func(nodeID, action string)) *Router {
	return &Router{
		store:       store,
		log:         log,
		onSaveError: onSaveError,
	}
}

// Run consumes frames until the feed closes or ctx is cancelled.
func (r *Router) Run(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.HandleFrame(frame)
		}
	}
}

// HandleFrame routes one raw frame. Unknown types are dropped without
// error; undecodable frames are ignored silently.
func (r *Router) HandleFrame(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return // binary or non-JSON sync traffic
	}

	switch env.Type {
	case "AI_MESSAGE":
		r.handleAIMessage(&env)
	case "save_error", "SAVE_ERROR":
		r.handleSaveError(&env)
	default:
		// Unknown control type: drop.
	}
}

func (r *Router) handleAIMessage(env *envelope) {
	fields := env.aiFields
	if nested, ok := env.body(); ok {
		var payload aiFields
		if err := json.Unmarshal(nested, &payload); err != nil {
			return
		}
		fields = payload
	}
	if fields.NodeID == "" || fields.Category == "" {
		return
	}

	if fields.IsComplete {
		r.store.CompleteStream(fields.Category, fields.NodeID)
		return
	}

	tokens := fields.Content
	if tokens == "" {
		tokens = fields.Text
	}
	if tokens == "" {
		return
	}
	r.store.AppendStream(fields.Category, fields.NodeID, tokens)
}

func (r *Router) handleSaveError(env *envelope) {
	nodeID := env.NodeID
	action := env.Action
	if nested, ok := env.body(); ok {
		var payload struct {
			saveErrorFields
			NodeID string `json:"nodeId"`
		}
		if err := json.Unmarshal(nested, &payload); err != nil {
			return
		}
		nodeID = payload.NodeID
		action = payload.Action
	}
	if action == "" {
		return
	}

	r.log.Warn().Str("node", nodeID).Str("action", action).Msg("save failed")
	r.store.RecordSaveError(nodeID, action)
	if r.onSaveError != nil {
		r.onSaveError(nodeID, action)
	}
}
