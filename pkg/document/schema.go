package document

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by workspace room ID
// so that many rooms can safely coexist on a single Redis server.
//
// Key pattern: treeline:{room}:{entity}[:{id}]
// Channel pattern: treeline:{room}:{event_type}

// MapKey returns the Redis hash key backing a named shared map.
// Pattern: treeline:{room}:map:{map_name}
func MapKey(room string, name MapName) string {
	return fmt.Sprintf("treeline:%s:map:%s", room, name)
}

// DocEventsChannel returns the Pub/Sub channel carrying document deltas.
// Pattern: treeline:{room}:doc_events
func DocEventsChannel(room string) string {
	return fmt.Sprintf("treeline:%s:doc_events", room)
}

// ControlChannel returns the Pub/Sub channel carrying side-channel
// control frames. The channel is shared with binary sync traffic, so
// consumers must tolerate non-JSON frames.
// Pattern: treeline:{room}:control
func ControlChannel(room string) string {
	return fmt.Sprintf("treeline:%s:control", room)
}

// PresenceChannel returns the Pub/Sub channel carrying presence updates.
// Pattern: treeline:{room}:presence_events
func PresenceChannel(room string) string {
	return fmt.Sprintf("treeline:%s:presence_events", room)
}

// PresenceKey returns the TTL key holding one connection's presence.
// Pattern: treeline:{room}:presence:{conn_id}
func PresenceKey(room, connID string) string {
	return fmt.Sprintf("treeline:%s:presence:%s", room, connID)
}

// PresenceKeyPattern returns the scan pattern matching every presence
// key in a room.
func PresenceKeyPattern(room string) string {
	return fmt.Sprintf("treeline:%s:presence:*", room)
}
