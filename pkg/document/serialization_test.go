package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaRoundTrip(t *testing.T) {
	d := &Delta{
		ReplicaID: "replica-a",
		Changes: []WireChange{
			{Map: MapNodes, Key: "42", Register: Register{Value: json.RawMessage(`{"id":"42"}`), UpdatedAtMs: 100, ReplicaID: "replica-a"}},
			{Map: MapEditSessions, Key: "42", Register: Register{UpdatedAtMs: 100, ReplicaID: "replica-a", Deleted: true}},
		},
	}

	payload, err := MarshalDelta(d)
	require.NoError(t, err)

	got, err := UnmarshalDelta(payload)
	require.NoError(t, err)
	assert.Equal(t, d.ReplicaID, got.ReplicaID)
	require.Len(t, got.Changes, 2)
	assert.Equal(t, MapNodes, got.Changes[0].Map)
	assert.True(t, got.Changes[1].Register.Deleted)
}

func TestUnmarshalDeltaErrors(t *testing.T) {
	t.Run("rejects invalid JSON", func(t *testing.T) {
		_, err := UnmarshalDelta([]byte("not json"))
		assert.Error(t, err)
	})

	t.Run("rejects missing replica ID", func(t *testing.T) {
		_, err := UnmarshalDelta([]byte(`{"changes":[]}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "replica ID")
	})
}

func TestRegisterRoundTrip(t *testing.T) {
	reg := Register{Value: json.RawMessage(`"hello"`), UpdatedAtMs: 123, ReplicaID: "r", Deleted: false}

	encoded, err := EncodeRegister(reg)
	require.NoError(t, err)

	got, err := DecodeRegister(encoded)
	require.NoError(t, err)
	assert.Equal(t, reg.UpdatedAtMs, got.UpdatedAtMs)
	assert.Equal(t, reg.ReplicaID, got.ReplicaID)
	assert.JSONEq(t, `"hello"`, string(got.Value))

	_, err = DecodeRegister("{{")
	assert.Error(t, err)
}

func TestKeySchema(t *testing.T) {
	assert.Equal(t, "treeline:sprint-42:map:nodes", MapKey("sprint-42", MapNodes))
	assert.Equal(t, "treeline:sprint-42:doc_events", DocEventsChannel("sprint-42"))
	assert.Equal(t, "treeline:sprint-42:control", ControlChannel("sprint-42"))
	assert.Equal(t, "treeline:sprint-42:presence_events", PresenceChannel("sprint-42"))
	assert.Equal(t, "treeline:sprint-42:presence:conn-1", PresenceKey("sprint-42", "conn-1"))
	assert.Equal(t, "treeline:sprint-42:presence:*", PresenceKeyPattern("sprint-42"))
}
