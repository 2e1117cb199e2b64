package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
)

// mcpClientTransport is the shared plumbing behind the sse and stdio
// Transport implementations: both are ultimately a *client.Client performing
// the same initialize handshake, tool cache, and call/close idiom.
// Grounded on the existing upstream.MCPServer (embeds *client.Client,
// stores the init response, default headers including a gateway-server-id),
// generalized to hold any client.Client constructor rather than only the
// streamable one.
type mcpClientTransport struct {
	name   string
	logger *slog.Logger

	newClient func() (*client.Client, error)

	mu     sync.Mutex
	client *client.Client
	init   *mcp.InitializeResult
	state  ConnState

	toolsMu sync.RWMutex
	tools   []mcp.Tool
}

func newMCPClientTransport(name string, logger *slog.Logger, newClient func() (*client.Client, error)) *mcpClientTransport {
	return &mcpClientTransport{
		name:      name,
		logger:    logger.With("upstream", name),
		newClient: newClient,
		state:     StateNew,
	}
}

func (t *mcpClientTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect is idempotent: a second call while already ready is a no-op,
// matching the existing MCPServer.Connect.
func (t *mcpClientTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.state == StateReady {
		return nil
	}

	t.state = StateConnecting
	c, err := t.newClient()
	if err != nil {
		t.state = StateFailed
		return gwerrors.NewUpstreamError(t.name, "failed to construct upstream client", err)
	}
	if err := c.Start(ctx); err != nil {
		t.state = StateFailed
		return gwerrors.NewUpstreamError(t.name, "failed to start upstream transport", err)
	}

	initResp, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities: mcp.ClientCapabilities{
				Roots: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{ListChanged: true},
			},
			ClientInfo: mcp.Implementation{Name: "mcp-gateway", Version: "0.0.1"},
		},
	})
	if err != nil {
		t.state = StateFailed
		return gwerrors.NewUpstreamError(t.name, "failed to initialize upstream client", err)
	}

	c.OnConnectionLost(func(err error) {
		t.logger.Error("connection lost to upstream", "error", err)
		t.mu.Lock()
		t.state = StateFailed
		t.mu.Unlock()
	})
	c.OnNotification(func(n mcp.JSONRPCNotification) {
		if n.Method == "notifications/tools/list_changed" {
			go func() { _, _ = t.FetchTools(context.Background()) }()
		}
	})

	t.client = c
	t.init = initResp
	t.state = StateReady
	return nil
}

func (t *mcpClientTransport) FetchTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := t.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, gwerrors.NewUpstreamError(t.name, "failed to list tools", err)
	}
	t.toolsMu.Lock()
	t.tools = res.Tools
	t.toolsMu.Unlock()
	return res.Tools, nil
}

func (t *mcpClientTransport) cachedTool(name string) (mcp.Tool, bool) {
	t.toolsMu.RLock()
	defer t.toolsMu.RUnlock()
	for _, tool := range t.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return mcp.Tool{}, false
}

func (t *mcpClientTransport) CallTool(ctx context.Context, name string, args map[string]any, _ RequestInfo) (*mcp.CallToolResult, error) {
	c, err := t.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := t.cachedTool(name); !ok {
		return nil, fmt.Errorf("%w: %s", gwerrors.ErrToolNotFound, name)
	}
	res, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, gwerrors.NewUpstreamError(t.name, fmt.Sprintf("tool call %q failed", name), err)
	}
	return res, nil
}

// CallToolStreaming on a plain (non-wrapped) mcp client transport has no
// chunked result channel of its own; it is only meaningful once wrapped by
// StreamableTransport, ("Streamable transport ... takes
// an already-connected lower transport"). Called directly, it degrades to a
// single-chunk stream wrapping CallTool's result.
func (t *mcpClientTransport) CallToolStreaming(ctx context.Context, name string, args map[string]any, req RequestInfo) (<-chan StreamChunk, error) {
	res, err := t.CallTool(ctx, name, args, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: res, ChunkID: 0, IsFinal: true}
	close(ch)
	return ch, nil
}

func (t *mcpClientTransport) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	t.state = StateClosing
	err := t.client.Close()
	t.state = StateClosed
	t.client = nil
	return err
}

// ensureConnected implements the on_demand reconnect rule of :
// a single reconnect attempt is made per request when not currently ready.
func (t *mcpClientTransport) ensureConnected(ctx context.Context) (*client.Client, error) {
	t.mu.Lock()
	ready := t.client != nil && t.state == StateReady
	t.mu.Unlock()
	if ready {
		t.mu.Lock()
		c := t.client
		t.mu.Unlock()
		return c, nil
	}
	if err := t.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", gwerrors.ErrNotConnected, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, nil
}
