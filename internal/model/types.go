// Package model holds the tenant-scoped configuration types the gateway
// activates: McpConfig and everything it references (servers, routers,
// HTTP-backed tools). These mirror the shape persisted by the external
// management API; the core only ever receives them fully formed.
package model

import "time"

// ServerType identifies the wire protocol an McpServer speaks.
type ServerType string

// Recognized McpServer types. HTTP-backed tools live under HttpServer, not
// here - they never get a standalone McpServer entry.
const (
	ServerTypeSSE   ServerType = "sse"
	ServerTypeStdio ServerType = "stdio"
)

// ConnectPolicy controls when a transport is connected relative to config
// activation.
type ConnectPolicy string

// Recognized connect policies.
const (
	PolicyOnStart  ConnectPolicy = "on_start"
	PolicyOnDemand ConnectPolicy = "on_demand"
)

// ArgPosition is where a Tool argument is placed on the outgoing HTTP
// request.
type ArgPosition string

// Recognized argument positions.
const (
	ArgPositionPath   ArgPosition = "path"
	ArgPositionQuery  ArgPosition = "query"
	ArgPositionHeader ArgPosition = "header"
	ArgPositionBody   ArgPosition = "body"
)

// McpConfig is the unit of tenant-scoped configuration the gateway
// activates. (tenant_name, name) uniquely identifies it.
type McpConfig struct {
	Name       string
	TenantName string

	Servers     []*McpServer
	Routers     []*Router
	Tools       []*Tool
	HTTPServers []*HTTPServer

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Key returns the (tenant_name, name) composite identity as a single
// comparable string, suitable for map keys.
func (c *McpConfig) Key() string {
	return c.TenantName + "/" + c.Name
}

// Deleted reports whether the config has been soft-deleted.
func (c *McpConfig) Deleted() bool {
	return c.DeletedAt != nil
}

// McpServer describes one upstream SSE or STDIO MCP server.
type McpServer struct {
	Name        string
	Description string
	Type        ServerType

	// STDIO only.
	Command string
	Args    []string

	// SSE only.
	URL string

	// Credential, when set, names a secret mounted under
	// pkg/credentials.MountPath. An SSE server gets it as a bearer
	// Authorization header; a stdio server gets it as an environment entry.
	Credential string

	Policy       ConnectPolicy
	Preinstalled bool
}

// Router exposes one McpServer or HttpServer at a URL prefix.
type Router struct {
	Prefix    string
	Server    string // name of an McpServer or HttpServer in the same config
	SSEPrefix string // optional; defaults to Prefix
	CORS      *CORSPolicy
}

// EffectiveSSEPrefix returns SSEPrefix, defaulting to Prefix when unset.
func (r *Router) EffectiveSSEPrefix() string {
	if r.SSEPrefix != "" {
		return r.SSEPrefix
	}
	return r.Prefix
}

// CORSPolicy is the per-router CORS configuration applied to all three
// client-facing gateway endpoints of that router.
type CORSPolicy struct {
	AllowOrigins     []string
	AllowCredentials bool
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
}

// ToolArg describes one argument a Tool accepts, and where it's placed on
// the outgoing HTTP request.
type ToolArg struct {
	Name        string
	Position    ArgPosition
	Type        string
	Required    bool
	Description string
}

// Tool is an HTTP-backed tool, either authored directly or synthesized from
// an imported OpenAPI document.
type Tool struct {
	Name        string
	Description string
	Method      string
	Path        string // absolute, or relative to the parent HttpServer's URL

	Headers map[string]string // header name -> DSL expression string
	Args    []ToolArg

	InputSchema map[string]any // JSON-Schema fragment for tools/list

	RequestBody  string // DSL expression string
	ResponseBody string // DSL expression string
}

// HTTPServer groups Tools under a shared base URL.
type HTTPServer struct {
	Name        string
	Description string
	URL         string
	Tools       []string // tool names
}

// FindServer returns the McpServer with the given name, or nil.
func (c *McpConfig) FindServer(name string) *McpServer {
	for _, s := range c.Servers {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FindHTTPServer returns the HttpServer with the given name, or nil.
func (c *McpConfig) FindHTTPServer(name string) *HTTPServer {
	for _, s := range c.HTTPServers {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// FindTool returns the Tool with the given name, or nil.
func (c *McpConfig) FindTool(name string) *Tool {
	for _, t := range c.Tools {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// ToolsForHTTPServer returns the Tool definitions referenced by an
// HttpServer's Tools list, in order, skipping any names the config doesn't
// define.
func (c *McpConfig) ToolsForHTTPServer(hs *HTTPServer) []*Tool {
	out := make([]*Tool, 0, len(hs.Tools))
	for _, name := range hs.Tools {
		if t := c.FindTool(name); t != nil {
			out = append(out, t)
		}
	}
	return out
}
