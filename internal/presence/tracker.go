// Package presence tracks ephemeral per-connection state (cursor, user
// label and color, active node) layered on the document session. It is
// never persisted in the document: each connection's presence lives in
// a TTL key refreshed by heartbeat and is garbage-collected implicitly
// when the connection drops.
package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/treeline-app/treeline/pkg/document"
)

// message is the wire form of one presence update.
type message struct {
	Presence document.Presence `json:"presence"`
	Left     bool              `json:"left,omitempty"`
}

// Tracker maintains the local connection's presence and aggregates all
// other connections' presence for UI badges.
type Tracker struct {
	sess      *document.Session
	connID    string
	ttl       time.Duration
	heartbeat time.Duration
	log       zerolog.Logger

	mu     sync.RWMutex
	self   document.Presence
	roster map[string]document.Presence

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a tracker for one connection. ttl bounds how long a
// silent connection stays visible; heartbeat must be comfortably
// shorter than ttl.
func New(sess *document.Session, user, color string, ttl, heartbeat time.Duration, log zerolog.Logger) *Tracker {
	connID := uuid.New().String()
	return &Tracker{
		sess:      sess,
		connID:    connID,
		ttl:       ttl,
		heartbeat: heartbeat,
		log:       log,
		self: document.Presence{
			ConnID: connID,
			User:   user,
			Color:  color,
		},
		roster: make(map[string]document.Presence),
	}
}

// ConnID returns this connection's presence identity.
func (t *Tracker) ConnID() string { return t.connID }

// Start announces the connection, loads the current room roster, and
// launches the heartbeat and subscription loops.
func (t *Tracker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	pubsub := t.sess.Client().Subscribe(ctx, document.PresenceChannel(t.sess.Room()))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		cancel()
		return err
	}

	t.loadRoster(ctx)
	t.publish(ctx)

	t.wg.Add(2)
	go t.consume(runCtx, pubsub)
	go t.heartbeatLoop(runCtx)
	return nil
}

// Stop withdraws the connection's presence and stops the loops.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	t.mu.RLock()
	self := t.self
	t.mu.RUnlock()

	payload, err := json.Marshal(message{Presence: self, Left: true})
	if err == nil {
		t.sess.Client().Publish(ctx, document.PresenceChannel(t.sess.Room()), payload)
	}
	t.sess.Client().Del(ctx, document.PresenceKey(t.sess.Room(), t.connID))

	t.cancel()
	t.wg.Wait()
}

// SetCursor records the local cursor position and broadcasts it.
func (t *Tracker) SetCursor(ctx context.Context, x, y float64) {
	t.mu.Lock()
	t.self.Cursor = &document.Position{X: x, Y: y}
	t.mu.Unlock()
	t.publish(ctx)
}

// SetActiveNode records which node the local user is focused on and
// broadcasts it.
func (t *Tracker) SetActiveNode(ctx context.Context, nodeID string) {
	t.mu.Lock()
	t.self.ActiveNodeID = nodeID
	t.mu.Unlock()
	t.publish(ctx)
}

// Others returns every other connection's presence, freshest first
// filtering out entries past their TTL.
func (t *Tracker) Others() []document.Presence {
	cutoff := time.Now().Add(-t.ttl).UnixMilli()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]document.Presence, 0, len(t.roster))
	for _, p := range t.roster {
		if p.UpdatedAtMs >= cutoff {
			out = append(out, p)
		}
	}
	return out
}

// OnNode returns the other connections currently focused on nodeID,
// for per-node "who is here" badges.
func (t *Tracker) OnNode(nodeID string) []document.Presence {
	var out []document.Presence
	for _, p := range t.Others() {
		if p.ActiveNodeID == nodeID {
			out = append(out, p)
		}
	}
	return out
}

// publish refreshes the TTL key and broadcasts the current presence.
func (t *Tracker) publish(ctx context.Context) {
	t.mu.Lock()
	t.self.UpdatedAtMs = time.Now().UnixMilli()
	self := t.self
	t.mu.Unlock()

	payload, err := json.Marshal(message{Presence: self})
	if err != nil {
		t.log.Warn().Err(err).Msg("failed to encode presence")
		return
	}

	rdb := t.sess.Client()
	room := t.sess.Room()
	if err := rdb.Set(ctx, document.PresenceKey(room, t.connID), payload, t.ttl).Err(); err != nil {
		t.log.Warn().Err(err).Msg("failed to refresh presence key")
	}
	if err := rdb.Publish(ctx, document.PresenceChannel(room), payload).Err(); err != nil {
		t.log.Warn().Err(err).Msg("failed to publish presence")
	}
}

// loadRoster seeds the roster from the room's live presence keys so a
// late joiner sees existing connections before their next heartbeat.
func (t *Tracker) loadRoster(ctx context.Context) {
	rdb := t.sess.Client()
	keys, err := rdb.Keys(ctx, document.PresenceKeyPattern(t.sess.Room())).Result()
	if err != nil {
		t.log.Warn().Err(err).Msg("failed to scan presence keys")
		return
	}

	for _, key := range keys {
		payload, err := rdb.Get(ctx, key).Result()
		if err != nil {
			continue // expired between scan and read
		}
		var msg message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			continue
		}
		if msg.Presence.ConnID == t.connID {
			continue
		}
		t.mu.Lock()
		t.roster[msg.Presence.ConnID] = msg.Presence
		t.mu.Unlock()
	}
}

// consume applies other connections' presence updates to the roster.
func (t *Tracker) consume(ctx context.Context, pubsub *redis.PubSub) {
	defer t.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var update message
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				continue
			}
			if update.Presence.ConnID == t.connID {
				continue
			}

			t.mu.Lock()
			if update.Left {
				delete(t.roster, update.Presence.ConnID)
			} else {
				t.roster[update.Presence.ConnID] = update.Presence
			}
			t.mu.Unlock()
		}
	}
}

// heartbeatLoop refreshes the TTL key so presence survives as long as
// the connection does, and prunes roster entries whose connections have
// gone silent past the TTL.
func (t *Tracker) heartbeatLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.publish(ctx)
			t.prune()
		}
	}
}

func (t *Tracker) prune() {
	cutoff := time.Now().Add(-t.ttl).UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()
	for connID, p := range t.roster {
		if p.UpdatedAtMs < cutoff {
			delete(t.roster, connID)
		}
	}
}
