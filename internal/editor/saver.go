package editor

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSaver is a Saver that only records the request. The actual
// persistence endpoint lives in the external server system; clients
// that run without one (the watch CLI, tests) use this.
type LogSaver struct {
	Log zerolog.Logger
}

// SaveEdit implements Saver.
func (s LogSaver) SaveEdit(_ context.Context, req SaveRequest) error {
	s.Log.Debug().Str("node", req.NodeID).Str("request", req.RequestID).Msg("save request issued")
	return nil
}
