package document

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerInit(t *testing.T) {
	mr := setupRedis(t)
	mgr := NewManager(&redis.Options{Addr: mr.Addr()}, zerolog.Nop())
	t.Cleanup(mgr.Destroy)
	ctx := context.Background()

	t.Run("rejects empty room", func(t *testing.T) {
		_, err := mgr.Init(ctx, "")
		assert.Error(t, err)
	})

	t.Run("creates a session for the room", func(t *testing.T) {
		sess, err := mgr.Init(ctx, "room-1")
		require.NoError(t, err)
		assert.Equal(t, "room-1", sess.Room())
		assert.Same(t, sess, mgr.Get())
	})

	t.Run("same room is idempotent", func(t *testing.T) {
		first, err := mgr.Init(ctx, "room-1")
		require.NoError(t, err)
		second, err := mgr.Init(ctx, "room-1")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("different room replaces the session", func(t *testing.T) {
		first, err := mgr.Init(ctx, "room-1")
		require.NoError(t, err)
		second, err := mgr.Init(ctx, "room-2")
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, "room-2", second.Room())
		assert.Equal(t, StatusDisconnected, first.Status())
	})
}

func TestManagerHooks(t *testing.T) {
	mr := setupRedis(t)
	mgr := NewManager(&redis.Options{Addr: mr.Addr()}, zerolog.Nop())
	t.Cleanup(mgr.Destroy)
	ctx := context.Background()

	var created []*Session
	destroyed := 0
	mgr.OnCreate(func(s *Session) { created = append(created, s) })
	mgr.OnDestroy(func() { destroyed++ })

	sess, err := mgr.Init(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Same(t, sess, created[0])

	// OnCreate runs before Start, so observers registered in the hook
	// see the initial full sync.
	seed := setupSession(t, mr, "room-2")
	require.NoError(t, seed.Set(ctx, MapNodes, "42", Node{ID: "42", Type: NodeTypeTask, Data: NodeData{Title: "seeded"}}))

	sawInitial := false
	mgr.OnCreate(func(s *Session) {
		s.Observe(func(changes []Change) {
			for _, ch := range changes {
				if ch.Map == MapNodes && ch.Key == "42" {
					sawInitial = true
				}
			}
		})
	})
	_, err = mgr.Init(ctx, "room-2")
	require.NoError(t, err)
	assert.True(t, sawInitial, "hook observers must see the full sync")
	assert.Equal(t, 1, destroyed, "room switch tears down the old session")

	mgr.Destroy()
	assert.Equal(t, 2, destroyed)
	assert.Nil(t, mgr.Get())

	mgr.Destroy()
	assert.Equal(t, 2, destroyed, "destroy when idle is a no-op")
}
