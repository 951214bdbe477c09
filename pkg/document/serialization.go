package document

import (
	"encoding/json"
	"fmt"
)

// Serialization helpers for the document wire format
//
// Registers are stored as JSON strings inside one Redis hash per map
// (field = entry key). Deltas carry batches of register writes over
// Pub/Sub: one delta per Transact call, so observers on every replica
// see a transaction as a single change notification.

// WireChange is one register write inside a delta.
type WireChange struct {
	Map      MapName  `json:"map"`
	Key      string   `json:"key"`
	Register Register `json:"register"`
}

// Delta is the published form of one transaction.
type Delta struct {
	ReplicaID string       `json:"replica_id"`
	Changes   []WireChange `json:"changes"`
}

// MarshalDelta encodes a delta for publishing.
func MarshalDelta(d *Delta) ([]byte, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delta: %w", err)
	}
	return payload, nil
}

// UnmarshalDelta decodes a published delta.
func UnmarshalDelta(payload []byte) (*Delta, error) {
	var d Delta
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delta: %w", err)
	}
	if d.ReplicaID == "" {
		return nil, fmt.Errorf("delta missing replica ID")
	}
	return &d, nil
}

// EncodeRegister encodes a register for storage in a map's Redis hash.
func EncodeRegister(reg Register) (string, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal register: %w", err)
	}
	return string(payload), nil
}

// DecodeRegister decodes a register read back from a map's Redis hash.
func DecodeRegister(payload string) (Register, error) {
	var reg Register
	if err := json.Unmarshal([]byte(payload), &reg); err != nil {
		return Register{}, fmt.Errorf("failed to unmarshal register: %w", err)
	}
	return reg, nil
}
