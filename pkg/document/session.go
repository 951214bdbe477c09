package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Status is the session's connection state, readable by any UI
// collaborator. Transitions: connecting -> connected -> disconnected
// (and back to connecting on automatic reconnect).
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// reconnectDelay paces reconnect attempts after the transport drops.
const reconnectDelay = 500 * time.Millisecond

// Session is one replica of a workspace document. It owns the Redis
// connection, the named shared maps, and the run loop that merges
// remote deltas. Exactly one session exists per open workspace room;
// lifetime is managed by Manager.
//
// All mutations go through Transact (or the Set/Delete shorthands),
// which batch writes into one locally-applied, stored, and published
// delta so observers on every replica see a transaction as a single
// change notification.
type Session struct {
	rdb       *redis.Client
	room      string
	replicaID string
	log       zerolog.Logger

	mu         sync.RWMutex
	maps       map[MapName]*SharedMap
	observers  []func([]Change)
	statusSubs []func(Status)
	status     Status
	synced     bool
	syncFns    []func()

	control chan []byte

	nowMs func() int64

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewSession creates a replica for the given workspace room.
// Returns an error if room is empty. The session does not touch the
// network until Start is called.
func NewSession(redisOpts *redis.Options, room string, log zerolog.Logger) (*Session, error) {
	if room == "" {
		return nil, fmt.Errorf("room ID cannot be empty")
	}

	maps := make(map[MapName]*SharedMap, len(AllMaps()))
	for _, name := range AllMaps() {
		maps[name] = newSharedMap(name)
	}

	replicaID := uuid.New().String()
	return &Session{
		rdb:       redis.NewClient(redisOpts),
		room:      room,
		replicaID: replicaID,
		log:       log.With().Str("room", room).Str("replica", replicaID).Logger(),
		maps:      maps,
		status:    StatusConnecting,
		control:   make(chan []byte, 64),
		nowMs:     func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Room returns the workspace room ID this session is bound to.
func (s *Session) Room() string { return s.room }

// ReplicaID returns this replica's unique identity, used to skip
// self-published deltas and to break last-writer-wins ties.
func (s *Session) ReplicaID() string { return s.replicaID }

// Client exposes the underlying Redis client for collaborators that
// share the session's transport (presence tracking, server bridge).
func (s *Session) Client() *redis.Client { return s.rdb }

// Map returns the stable reference to a named shared map.
func (s *Session) Map(name MapName) *SharedMap {
	return s.maps[name]
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Session) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// OnStatus registers a callback invoked on every connection-status
// transition. The callback also fires immediately with the current
// status so late subscribers never miss the initial state.
func (s *Session) OnStatus(fn func(Status)) {
	s.mu.Lock()
	s.statusSubs = append(s.statusSubs, fn)
	current := s.status
	s.mu.Unlock()
	fn(current)
}

// Observe registers a callback invoked with the batched changes of
// every transaction, local or remote. Observers live for the session's
// lifetime; Manager.Destroy drops them with the session.
func (s *Session) Observe(fn func([]Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// OnFirstSync registers a callback for the one-time reconciliation hook
// fired after the first successful full sync. If the session has
// already synced, fn runs immediately.
func (s *Session) OnFirstSync(fn func()) {
	s.mu.Lock()
	if s.synced {
		s.mu.Unlock()
		fn()
		return
	}
	s.syncFns = append(s.syncFns, fn)
	s.mu.Unlock()
}

// ControlFrames returns the feed of raw side-channel frames arriving
// over the shared transport. Frames may be binary sync traffic;
// consumers (the change router) must tolerate non-JSON payloads.
func (s *Session) ControlFrames() <-chan []byte {
	return s.control
}

// Start connects to Redis, performs the initial full sync, and launches
// the run loop that merges remote deltas until ctx is cancelled or
// Close is called. Start may only be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session already started or closed")
	}
	s.started = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if err := s.Ping(ctx); err != nil {
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("cannot reach Redis: %w", err)
	}

	pubsub, err := s.subscribe(ctx)
	if err != nil {
		s.setStatus(StatusDisconnected)
		return err
	}

	if err := s.fullSync(ctx); err != nil {
		pubsub.Close()
		s.setStatus(StatusDisconnected)
		return fmt.Errorf("initial sync failed: %w", err)
	}

	s.setStatus(StatusConnected)
	s.fireFirstSync()

	s.wg.Add(1)
	go s.run(pubsub)
	return nil
}

// Close stops the run loop and closes the Redis connection.
// After Close the session must not be used. Implements io.Closer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return s.rdb.Close()
}

// subscribe opens the Pub/Sub subscription for document deltas and
// control frames, confirming it is active before returning.
func (s *Session) subscribe(ctx context.Context) (*redis.PubSub, error) {
	pubsub := s.rdb.Subscribe(ctx, DocEventsChannel(s.room), ControlChannel(s.room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to document events: %w", err)
	}
	return pubsub, nil
}

// fullSync loads every named map's backing hash and merges it into the
// local replica. Merge is idempotent, so resyncing after a reconnect
// never corrupts or duplicates state.
func (s *Session) fullSync(ctx context.Context) error {
	var changes []Change
	for _, name := range AllMaps() {
		hash, err := s.rdb.HGetAll(ctx, MapKey(s.room, name)).Result()
		if err != nil {
			return fmt.Errorf("failed to read map %s: %w", name, err)
		}

		m := s.maps[name]
		for key, payload := range hash {
			reg, err := DecodeRegister(payload)
			if err != nil {
				s.log.Warn().Str("map", string(name)).Str("key", key).Err(err).
					Msg("skipping undecodable register during sync")
				continue
			}
			if m.merge(key, reg) {
				changes = append(changes, Change{Map: name, Key: key, Register: reg, Origin: OriginRemote})
			}
		}
	}

	if len(changes) > 0 {
		s.notify(changes)
	}
	return nil
}

// run consumes Pub/Sub messages until the session is closed. On
// transport loss it flips to disconnected and retries: resubscribe,
// resync, reconnect. Document state survives because the maps merge.
func (s *Session) run(pubsub *redis.PubSub) {
	defer s.wg.Done()
	defer close(s.control)

	for {
		ch := pubsub.Channel()
	recv:
		for {
			select {
			case <-s.runCtx.Done():
				pubsub.Close()
				s.setStatus(StatusDisconnected)
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				s.dispatch(msg)
			}
		}

		// Transport dropped. Reconnect until closed.
		pubsub.Close()
		s.setStatus(StatusDisconnected)
		for {
			select {
			case <-s.runCtx.Done():
				return
			case <-time.After(reconnectDelay):
			}

			s.setStatus(StatusConnecting)
			next, err := s.subscribe(s.runCtx)
			if err != nil {
				s.setStatus(StatusDisconnected)
				continue
			}
			if err := s.fullSync(s.runCtx); err != nil {
				s.log.Warn().Err(err).Msg("resync after reconnect failed")
				next.Close()
				s.setStatus(StatusDisconnected)
				continue
			}
			pubsub = next
			s.setStatus(StatusConnected)
			break
		}
	}
}

// dispatch routes one Pub/Sub message: document deltas are merged,
// control frames are handed to the router feed. A slow control consumer
// drops frames rather than blocking the sync stream.
func (s *Session) dispatch(msg *redis.Message) {
	switch msg.Channel {
	case DocEventsChannel(s.room):
		delta, err := UnmarshalDelta([]byte(msg.Payload))
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed delta")
			return
		}
		s.applyRemote(delta)
	case ControlChannel(s.room):
		select {
		case s.control <- []byte(msg.Payload):
		default:
			s.log.Warn().Msg("control feed full, dropping frame")
		}
	}
}

// applyRemote merges a delta published by another replica and notifies
// observers with the changes that won the merge.
func (s *Session) applyRemote(delta *Delta) {
	if delta.ReplicaID == s.replicaID {
		return // own write, already applied locally
	}

	var applied []Change
	for _, wc := range delta.Changes {
		m, ok := s.maps[wc.Map]
		if !ok {
			continue
		}
		if m.merge(wc.Key, wc.Register) {
			applied = append(applied, Change{Map: wc.Map, Key: wc.Key, Register: wc.Register, Origin: OriginRemote})
		}
	}

	if len(applied) > 0 {
		s.notify(applied)
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	subs := make([]func(Status), len(s.statusSubs))
	copy(subs, s.statusSubs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (s *Session) fireFirstSync() {
	s.mu.Lock()
	if s.synced {
		s.mu.Unlock()
		return
	}
	s.synced = true
	fns := s.syncFns
	s.syncFns = nil
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Session) notify(changes []Change) {
	s.mu.RLock()
	observers := make([]func([]Change), len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(changes)
	}
}

// Tx collects the writes of one transaction. Writes are stamped with a
// single timestamp so the whole batch orders as a unit under
// last-writer-wins merging.
type Tx struct {
	session *Session
	stamp   int64
	changes []WireChange
}

// Set writes value (JSON-encoded) into the named map at key.
func (tx *Tx) Set(name MapName, key string, value any) error {
	reg, err := encodeValue(value, tx.stamp, tx.session.replicaID)
	if err != nil {
		return err
	}
	tx.changes = append(tx.changes, WireChange{Map: name, Key: key, Register: reg})
	return nil
}

// Delete tombstones the named map's entry at key.
func (tx *Tx) Delete(name MapName, key string) {
	tx.changes = append(tx.changes, WireChange{
		Map:      name,
		Key:      key,
		Register: Register{UpdatedAtMs: tx.stamp, ReplicaID: tx.session.replicaID, Deleted: true},
	})
}

// Transact batches multiple map writes into one observable change: the
// batch is applied locally, persisted to the backing hashes, and
// published as a single delta inside one Redis MULTI/EXEC pipeline.
// Code that must keep two maps consistent (preview removal + pending
// flag clear, result write + pending flag clear) must use one Transact
// call; there is no cross-map guarantee beyond it.
func (s *Session) Transact(ctx context.Context, fn func(tx *Tx) error) error {
	tx := &Tx{session: s, stamp: s.nowMs()}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.changes) == 0 {
		return nil
	}

	// Apply locally first: the replica is the source of truth for its
	// own UI, even if the store write below fails transiently.
	applied := make([]Change, 0, len(tx.changes))
	for _, wc := range tx.changes {
		m, ok := s.maps[wc.Map]
		if !ok {
			return fmt.Errorf("unknown map: %s", wc.Map)
		}
		if m.merge(wc.Key, wc.Register) {
			applied = append(applied, Change{Map: wc.Map, Key: wc.Key, Register: wc.Register, Origin: OriginLocal})
		}
	}
	if len(applied) > 0 {
		s.notify(applied)
	}

	delta := &Delta{ReplicaID: s.replicaID, Changes: tx.changes}
	payload, err := MarshalDelta(delta)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, wc := range tx.changes {
			encoded, err := EncodeRegister(wc.Register)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, MapKey(s.room, wc.Map), wc.Key, encoded)
		}
		pipe.Publish(ctx, DocEventsChannel(s.room), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Set is the single-write shorthand for Transact.
func (s *Session) Set(ctx context.Context, name MapName, key string, value any) error {
	return s.Transact(ctx, func(tx *Tx) error {
		return tx.Set(name, key, value)
	})
}

// Delete is the single-tombstone shorthand for Transact.
func (s *Session) Delete(ctx context.Context, name MapName, key string) error {
	return s.Transact(ctx, func(tx *Tx) error {
		tx.Delete(name, key)
		return nil
	})
}

// encodeValue builds a register around a JSON-encoded value.
func encodeValue(value any, stamp int64, replicaID string) (Register, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return Register{}, fmt.Errorf("failed to encode value: %w", err)
	}
	return Register{Value: payload, UpdatedAtMs: stamp, ReplicaID: replicaID}, nil
}
