package document

import (
	"bytes"
	"encoding/json"
)

// Register is one last-writer-wins cell in a shared map. Every key in
// every named map holds a Register; concurrent writes from different
// replicas are resolved by NewerThan, which is commutative and
// convergent: all replicas reach the same value once messages settle.
//
// Deletes are tombstones (Deleted=true with the deleting write's
// timestamp) so that a delete and a concurrent update resolve the same
// way everywhere.
type Register struct {
	Value       json.RawMessage `json:"value,omitempty"`
	UpdatedAtMs int64           `json:"updated_at_ms"`
	ReplicaID   string          `json:"replica_id"`
	Deleted     bool            `json:"deleted,omitempty"`
}

// NewerThan reports whether r wins over other under last-writer-wins
// ordering: higher timestamp wins, and equal timestamps are broken
// deterministically by replica ID so every replica picks the same winner.
func (r Register) NewerThan(other Register) bool {
	if r.UpdatedAtMs != other.UpdatedAtMs {
		return r.UpdatedAtMs > other.UpdatedAtMs
	}
	return r.ReplicaID > other.ReplicaID
}

// Supersedes reports whether r replaces current when merged into a map.
// A replica's own writes are delivered in the order they were made
// (locally, over Pub/Sub, and in the backing hash), so a tie between
// two writes from the same replica goes to the incoming one; writes
// from different replicas order by NewerThan.
func (r Register) Supersedes(current Register) bool {
	if r.ReplicaID == current.ReplicaID {
		return r.UpdatedAtMs >= current.UpdatedAtMs
	}
	return r.NewerThan(current)
}

// Equal reports whether two registers are identical, byte for byte.
func (r Register) Equal(other Register) bool {
	return r.UpdatedAtMs == other.UpdatedAtMs &&
		r.ReplicaID == other.ReplicaID &&
		r.Deleted == other.Deleted &&
		bytes.Equal(r.Value, other.Value)
}
