package runtime_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/metrics"
	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/runtime"
	"github.com/kagenti/mcp-gateway/internal/transportmgr"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func buildManagerFor(cfg *model.McpConfig) (*transportmgr.Manager, error) {
	transports := map[string]upstream.Transport{}
	for _, s := range cfg.Servers {
		transports[s.Name] = &noopTransport{}
	}
	for _, hs := range cfg.HTTPServers {
		transports[hs.Name] = &noopTransport{}
	}
	return transportmgr.NewManager(cfg, transports, testLogger)
}

func newTestRuntime() *runtime.Runtime {
	return runtime.NewRuntime(func(_ context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error) {
		return buildManagerFor(cfg)
	}, testLogger, nil)
}

func configWithPrefix(tenant, name, prefix, server string) *model.McpConfig {
	return &model.McpConfig{
		Name:       name,
		TenantName: tenant,
		Servers:    []*model.McpServer{{Name: server, Type: model.ServerTypeSSE, Policy: model.PolicyOnDemand}},
		Routers:    []*model.Router{{Prefix: prefix, Server: server}},
	}
}

func TestRuntime_ActivateThenResolve(t *testing.T) {
	r := newTestRuntime()
	cfg := configWithPrefix("t1", "demo", "demo-prefix", "A")

	require.NoError(t, r.Activate(t.Context(), cfg))

	entry, router, ok := r.Resolve("demo-prefix")
	require.True(t, ok)
	assert.Equal(t, "demo-prefix", router.Prefix)
	assert.Equal(t, "demo", entry.Config.Name)
}

func TestRuntime_ResolveUnknownPrefixFails(t *testing.T) {
	r := newTestRuntime()
	_, _, ok := r.Resolve("nope")
	assert.False(t, ok)
}

func TestRuntime_ActivateConflictingPrefixIsRejected(t *testing.T) {
	r := newTestRuntime()
	cfg1 := configWithPrefix("t1", "demo1", "shared-prefix", "A")
	cfg2 := configWithPrefix("t1", "demo2", "shared-prefix", "A")

	require.NoError(t, r.Activate(t.Context(), cfg1))
	err := r.Activate(t.Context(), cfg2)
	assert.Error(t, err)

	// cfg1's binding must be untouched by the rejected activation.
	entry, _, ok := r.Resolve("shared-prefix")
	require.True(t, ok)
	assert.Equal(t, "demo1", entry.Config.Name)
}

func TestRuntime_ActivateUnknownRouterServerIsRejected(t *testing.T) {
	r := newTestRuntime()
	cfg := &model.McpConfig{
		Name: "demo", TenantName: "t1",
		Routers: []*model.Router{{Prefix: "p", Server: "missing"}},
	}
	err := r.Activate(t.Context(), cfg)
	assert.Error(t, err)
}

func TestRuntime_ReactivatingSameConfigReplacesPrefixBinding(t *testing.T) {
	r := newTestRuntime()
	cfg := configWithPrefix("t1", "demo", "demo-prefix", "A")
	require.NoError(t, r.Activate(t.Context(), cfg))

	cfg2 := configWithPrefix("t1", "demo", "demo-prefix", "A")
	cfg2.Tools = []*model.Tool{{Name: "new-tool"}}
	require.NoError(t, r.Activate(t.Context(), cfg2))

	entry, _, ok := r.Resolve("demo-prefix")
	require.True(t, ok)
	assert.Len(t, entry.Config.Tools, 1)
}

func TestRuntime_DeactivateRemovesPrefix(t *testing.T) {
	r := newTestRuntime()
	cfg := configWithPrefix("t1", "demo", "demo-prefix", "A")
	require.NoError(t, r.Activate(t.Context(), cfg))

	require.NoError(t, r.Deactivate(t.Context(), "t1", "demo"))

	_, _, ok := r.Resolve("demo-prefix")
	assert.False(t, ok)
}

func TestRuntime_DeactivateUnknownConfigIsConfigError(t *testing.T) {
	r := newTestRuntime()
	err := r.Deactivate(t.Context(), "t1", "nope")
	assert.Error(t, err)
}

func TestRuntime_ActivateRecordsMetrics(t *testing.T) {
	m := metrics.New()
	r := runtime.NewRuntime(func(_ context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error) {
		return buildManagerFor(cfg)
	}, testLogger, m)
	cfg := configWithPrefix("t1", "demo", "demo-prefix", "A")

	require.NoError(t, r.Activate(t.Context(), cfg))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `mcp_gateway_runtime_activations_total{config="demo",op="activate",result="ok",tenant="t1"} 1`)
}

// noopTransport is the minimal upstream.Transport stand-in runtime tests
// need; it never errors and never produces tools.
type noopTransport struct{ state upstream.ConnState }

func (n *noopTransport) Connect(context.Context) error {
	n.state = upstream.StateReady
	return nil
}
func (n *noopTransport) FetchTools(context.Context) ([]mcp.Tool, error) { return nil, nil }
func (n *noopTransport) CallTool(context.Context, string, map[string]any, upstream.RequestInfo) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (n *noopTransport) CallToolStreaming(context.Context, string, map[string]any, upstream.RequestInfo) (<-chan upstream.StreamChunk, error) {
	ch := make(chan upstream.StreamChunk)
	close(ch)
	return ch, nil
}
func (n *noopTransport) Close(context.Context) error { n.state = upstream.StateClosed; return nil }
func (n *noopTransport) State() upstream.ConnState    { return n.state }

var _ upstream.Transport = (*noopTransport)(nil)
