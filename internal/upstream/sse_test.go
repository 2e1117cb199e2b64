package upstream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/tests/server2"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

// TestSSETransport_ConnectFetchToolsCallTool exercises SSETransport against
// the existing in-process test MCP server (internal/tests/server2), the
// same fixture broker_test.go uses for the streamable transport.
func TestSSETransport_ConnectFetchToolsCallTool(t *testing.T) {
	const port = "8098"
	start, stop, err := server2.RunServer("sse", port)
	require.NoError(t, err)
	go func() { _ = start() }()
	defer func() { _ = stop() }()
	time.Sleep(200 * time.Millisecond)

	srv := &model.McpServer{Name: "demo", Type: model.ServerTypeSSE, URL: "http://localhost:" + port}
	transport := upstream.NewSSETransport(srv, nil, testLogger)
	defer transport.Close(t.Context())

	require.NoError(t, transport.Connect(t.Context()))
	assert.Equal(t, upstream.StateReady, transport.State())

	tools, err := transport.FetchTools(t.Context())
	require.NoError(t, err)
	assert.NotEmpty(t, tools)

	res, err := transport.CallTool(t.Context(), "hello_world", map[string]any{"name": "bob"}, upstream.RequestInfo{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestSSETransport_CallToolUnknownNameIsToolNotFound(t *testing.T) {
	const port = "8097"
	start, stop, err := server2.RunServer("sse", port)
	require.NoError(t, err)
	go func() { _ = start() }()
	defer func() { _ = stop() }()
	time.Sleep(200 * time.Millisecond)

	srv := &model.McpServer{Name: "demo", Type: model.ServerTypeSSE, URL: "http://localhost:" + port}
	transport := upstream.NewSSETransport(srv, nil, testLogger)
	defer transport.Close(t.Context())

	require.NoError(t, transport.Connect(t.Context()))
	_, err = transport.FetchTools(t.Context())
	require.NoError(t, err)

	_, err = transport.CallTool(t.Context(), "does-not-exist", nil, upstream.RequestInfo{})
	assert.Error(t, err)
}
