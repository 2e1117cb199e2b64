// Package upstream implements the per-upstream-server transports: one
// Transport per McpServer (sse, stdio) or HTTPServer (httptool), and the
// streamable wrapper above them. Grounded on internal/broker/upstream
// (MCPServer/MCPManager), generalized from a single long-lived upstream per
// broker to one Transport implementation selectable per McpServer.Type,
// using mark3labs/mcp-go for wire-level MCP client behavior exactly as
// before.
package upstream

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ConnState is a transport's connection state machine:
// new -> connecting -> ready -> closing -> closed (or failed).
type ConnState string

// Recognized connection states.
const (
	StateNew        ConnState = "new"
	StateConnecting ConnState = "connecting"
	StateReady      ConnState = "ready"
	StateClosing    ConnState = "closing"
	StateClosed     ConnState = "closed"
	StateFailed     ConnState = "failed"
)

// RequestInfo is the per-call request context (the DSL's `request` field
// and the captured session request) threaded through to HTTP-tool
// templating.
type RequestInfo struct {
	Headers map[string]string
	Queries map[string]string
	Cookies map[string]string
}

// StreamChunk is one piece of a streamed tool result.
type StreamChunk struct {
	Content  any
	ChunkID  int
	Time     time.Time
	IsFinal  bool
	Metadata map[string]any
}

// Transport is the per-upstream adapter every server/http_server entry
// builds one of. CallTool never panics; upstream failures are reported as
// gwerrors.ErrNotConnected, ErrToolNotFound or an UpstreamError, and
// HTTPToolTransport additionally returns a dsl_error ClientError for a
// failed template and an InternalError when the request cannot be built.
// No transport returns ErrTimeout itself.
type Transport interface {
	// Connect establishes the upstream connection. A no-op if already
	// connected.
	Connect(ctx context.Context) error

	// FetchTools issues tools/list (or the HTTP-tool equivalent) and caches
	// the result.
	FetchTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes a single tool by its unprefixed name.
	CallTool(ctx context.Context, name string, args map[string]any, req RequestInfo) (*mcp.CallToolResult, error)

	// CallToolStreaming invokes a tool whose result is a chunk sequence.
	// Transports that never produce chunked results return a single
	// element closed channel carrying one IsFinal chunk wrapping the same
	// result CallTool would have returned.
	CallToolStreaming(ctx context.Context, name string, args map[string]any, req RequestInfo) (<-chan StreamChunk, error)

	// Close tears the transport down. Safe to call more than once.
	Close(ctx context.Context) error

	// State reports the current connection state.
	State() ConnState
}
