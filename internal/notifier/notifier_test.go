package notifier_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kagenti/mcp-gateway/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignalNotifier_PublishFansOutToAllSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := notifier.NewSignalNotifier()
	ch1, err := n.Subscribe(ctx)
	require.NoError(t, err)
	ch2, err := n.Subscribe(ctx)
	require.NoError(t, err)

	ev := notifier.Event{Tenant: "acme", Name: "demo", Op: notifier.OpUpdate}
	require.NoError(t, n.Publish(ctx, ev))

	for _, ch := range []<-chan notifier.Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, ev, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestSignalNotifier_SubscribeClosesOnContextDone(t *testing.T) {
	n := notifier.NewSignalNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber channel close")
	}
}

func TestRedisNotifier_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	n, err := notifier.NewRedisNotifier(ctx, "redis://"+mr.Addr(), "", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := n.Subscribe(subCtx)
	require.NoError(t, err)

	ev := notifier.Event{Tenant: "acme", Name: "demo", Op: notifier.OpActivate}
	require.NoError(t, n.Publish(ctx, ev))

	select {
	case got := <-ch:
		assert.Equal(t, ev, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis-delivered event")
	}
}

func TestAPINotifier_HandlerPublishesToSubscribers(t *testing.T) {
	n := notifier.NewAPINotifier("secret", discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"tenant":"acme","name":"demo","op":"create"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case got := <-ch:
		assert.Equal(t, notifier.Event{Tenant: "acme", Name: "demo", Op: notifier.OpCreate}, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event delivered via handler")
	}
}

func TestAPINotifier_HandlerRejectsBadToken(t *testing.T) {
	n := notifier.NewAPINotifier("secret", discardLogger())
	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

