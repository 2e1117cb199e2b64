package upstream_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

func TestStdioTransport_ConnectFetchToolsCallTool(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	srv := &model.McpServer{
		Name:         "demo",
		Type:         model.ServerTypeStdio,
		Command:      self,
		Preinstalled: true,
	}
	env := []string{stdioServerEnvVar + "=1"}
	transport, err := upstream.NewStdioTransport(srv, env, testLogger)
	require.NoError(t, err)
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

func TestStdioTransport_NotPreinstalledReturnsInstallUnsupported(t *testing.T) {
	srv := &model.McpServer{Name: "demo", Type: model.ServerTypeStdio, Command: "irrelevant", Preinstalled: false}
	_, err := upstream.NewStdioTransport(srv, nil, testLogger)
	assert.Error(t, err)
}

func TestStdioTransport_MissingCommandIsConfigError(t *testing.T) {
	srv := &model.McpServer{Name: "demo", Type: model.ServerTypeStdio, Preinstalled: true}
	_, err := upstream.NewStdioTransport(srv, nil, testLogger)
	assert.Error(t, err)
}
