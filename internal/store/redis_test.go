package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kagenti/mcp-gateway/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := store.NewRedisStore(context.Background(), "redis://"+mr.Addr(), "events", time.Minute, 0, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_RegisterSendReceive(t *testing.T) {
	ctx := context.Background()
	s := newMiniredisStore(t)

	conn, err := s.Register(ctx, store.Meta{ID: "s1", Prefix: "t1", Type: store.SessionTypeSSE, CreatedAt: time.Now()})
	require.NoError(t, err)

	ch, err := conn.Receive(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, got.Send(ctx, store.Message{Event: "message", Data: []byte("hello")}))

	select {
	case msg := <-ch:
		assert.Equal(t, "message", msg.Event)
		assert.Equal(t, "hello", string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cross-publish delivery")
	}
}

func TestRedisStore_GetUnknownSession(t *testing.T) {
	s := newMiniredisStore(t)
	_, err := s.Get(context.Background(), "nope")
	require.Error(t, err)
	var nf *store.ErrSessionNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestRedisStore_UnregisterClosesLocalChannel(t *testing.T) {
	ctx := context.Background()
	s := newMiniredisStore(t)

	conn, err := s.Register(ctx, store.Meta{ID: "s1", Prefix: "t1"})
	require.NoError(t, err)
	ch, err := conn.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Unregister(ctx, "s1"))

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close sentinel")
	}
}

func TestRedisStore_UnregisterUnknownIsNoop(t *testing.T) {
	s := newMiniredisStore(t)
	require.NoError(t, s.Unregister(context.Background(), "nope"))
}

// TestRedisStore_CrossReplicaDelivery simulates two gateway replicas sharing
// Redis, where a POST landing on replica 2 must
// reach a session whose SSE stream is held open on replica 1.
func TestRedisStore_CrossReplicaDelivery(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	replica1, err := store.NewRedisStore(ctx, "redis://"+mr.Addr(), "events", time.Minute, 0, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = replica1.Close() })

	replica2, err := store.NewRedisStore(ctx, "redis://"+mr.Addr(), "events", time.Minute, 0, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = replica2.Close() })

	conn, err := replica1.Register(ctx, store.Meta{ID: "s1", Prefix: "t1"})
	require.NoError(t, err)
	ch, err := conn.Receive(ctx)
	require.NoError(t, err)

	remote, err := replica2.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, remote.Send(ctx, store.Message{Event: "message", Data: []byte("from replica 2")}))

	select {
	case msg := <-ch:
		assert.Equal(t, "from replica 2", string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cross-replica delivery")
	}
}
