package upstream

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/kagenti/mcp-gateway/internal/model"
)

// SSETransport is the Transport for an McpServer of type "sse", grounded on
// the existing streamable client construction in
// internal/broker/upstream/mcp.go, adapted to client.NewSSEMCPClient's
// parallel constructor in the same mcp-go client package.
type SSETransport struct {
	*mcpClientTransport
}

// NewSSETransport builds an SSE transport for the given server. headers are
// sent on every SSE/event-stream request, typically an Authorization header
// populated from the server's credential (pkg/credentials).
func NewSSETransport(srv *model.McpServer, headers map[string]string, logger *slog.Logger) *SSETransport {
	t := &SSETransport{}
	t.mcpClientTransport = newMCPClientTransport(srv.Name, logger, func() (*client.Client, error) {
		opts := []transport.ClientOption{}
		if len(headers) > 0 {
			opts = append(opts, transport.WithHeaders(headers))
		}
		return client.NewSSEMCPClient(srv.URL, opts...)
	})
	return t
}
