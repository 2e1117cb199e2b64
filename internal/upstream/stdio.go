package upstream

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
	"github.com/kagenti/mcp-gateway/internal/model"
)

// StdioTransport is the Transport for an McpServer of type "stdio": a
// child process speaking MCP over its stdin/stdout, grounded on the same
// connect/initialize idiom as the streamable client in
// internal/broker/upstream/mcp.go but constructed via
// client.NewStdioMCPClient.
type StdioTransport struct {
	*mcpClientTransport
}

// NewStdioTransport builds a stdio transport for the given server. env holds
// additional "KEY=VALUE" environment entries (e.g. a credential) appended to
// the spawned process's environment, matching model.McpServer.Command/Args.
func NewStdioTransport(srv *model.McpServer, env []string, logger *slog.Logger) (*StdioTransport, error) {
	if !srv.Preinstalled {
		return nil, fmt.Errorf("%w: stdio server %q is not preinstalled", gwerrors.ErrInstallUnsupported, srv.Name)
	}
	if srv.Command == "" {
		return nil, gwerrors.NewConfigError(fmt.Sprintf("stdio server %q has no command configured", srv.Name), nil)
	}

	t := &StdioTransport{}
	t.mcpClientTransport = newMCPClientTransport(srv.Name, logger, func() (*client.Client, error) {
		return client.NewStdioMCPClient(srv.Command, env, srv.Args...)
	})
	return t, nil
}
