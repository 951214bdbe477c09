// Package document implements the replicated workspace document that
// the Treeline collaboration engine is built on.
//
// # Overview
//
// Each connected client holds one Session per open workspace room: a
// replica of the document made up of named shared maps (nodes, preview
// nodes, edit sessions, confirmed commits, AI suggestion lists, pending
// flags, tech selections). Redis backs the document twice over: one
// hash per map is the merge substrate late joiners sync from, and
// Pub/Sub channels carry the deltas that keep live replicas current.
//
// # Convergence
//
// Every map entry is a last-writer-wins Register stamped with a
// millisecond timestamp and the writing replica's ID. Merging is
// commutative and convergent: whatever order deltas arrive in, all
// replicas settle on the same value, with timestamp ties broken
// deterministically by replica ID. Deletes are tombstones so a delete
// and a concurrent update resolve identically everywhere.
//
// # Transactions
//
// Transact batches multiple map writes into one delta, applied locally,
// persisted, and published as a unit, so observers on every replica see
// the batch as a single change notification. There is no consistency
// guarantee across maps beyond a single Transact call.
//
// # Redis Schema
//
// Keys follow the pattern treeline:{room}:{entity}:
//
//	Map hashes:       treeline:{room}:map:{map_name}
//	Document deltas:  treeline:{room}:doc_events
//	Control frames:   treeline:{room}:control
//	Presence:         treeline:{room}:presence:{conn_id} (TTL keys)
//	Presence events:  treeline:{room}:presence_events
//
// Rooms are fully isolated from each other; many rooms share one Redis
// server safely.
package document
