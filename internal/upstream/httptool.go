package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-gateway/internal/dsl"
	"github.com/kagenti/mcp-gateway/internal/gwerrors"
	"github.com/kagenti/mcp-gateway/internal/model"
)

// HTTPToolTransport is the Transport for an HTTPServer: a set of Tool
// definitions templated with internal/dsl against args/config/request and
// issued as plain net/http requests, for tools synthesized from an OpenAPI
// import rather than proxied to an upstream MCP server. Grounded on the
// net/http client-construction idiom in internal/clients, generalized to
// the DSL-driven request building these tools require.
type HTTPToolTransport struct {
	server *model.HTTPServer
	tools  []*model.Tool
	config map[string]any
	client *http.Client
	engine *dsl.Engine
	logger *slog.Logger

	mu    sync.Mutex
	state ConnState
}

// NewHTTPToolTransport builds a transport for one HttpServer. config is the
// `config` DSL scope (tenant-level settings, e.g. baseUrl overrides);
// httpClient defaults to http.DefaultClient when nil.
func NewHTTPToolTransport(server *model.HTTPServer, tools []*model.Tool, config map[string]any, httpClient *http.Client, logger *slog.Logger) *HTTPToolTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPToolTransport{
		server: server,
		tools:  tools,
		config: config,
		client: httpClient,
		engine: dsl.NewEngine(),
		logger: logger.With("http_server", server.Name),
		state:  StateNew,
	}
}

// Connect has no handshake to perform; an HTTP-tool server is reachable on
// demand, so Connect only flips the state so callers can treat all Transport
// implementations uniformly.
func (h *HTTPToolTransport) Connect(_ context.Context) error {
	h.mu.Lock()
	h.state = StateReady
	h.mu.Unlock()
	return nil
}

func (h *HTTPToolTransport) State() ConnState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *HTTPToolTransport) Close(_ context.Context) error {
	h.mu.Lock()
	h.state = StateClosed
	h.mu.Unlock()
	return nil
}

// FetchTools returns the wire-level mcp.Tool list synthesized from the
// configured model.Tool definitions' InputSchema; there is no discovery
// round-trip since the tools are already fully described in config.
func (h *HTTPToolTransport) FetchTools(_ context.Context) ([]mcp.Tool, error) {
	out := make([]mcp.Tool, 0, len(h.tools))
	for _, t := range h.tools {
		out = append(out, mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toRawInputSchema(t.InputSchema),
		})
	}
	return out, nil
}

func toRawInputSchema(schema map[string]any) mcp.ToolInputSchema {
	if schema == nil {
		return mcp.ToolInputSchema{Type: "object"}
	}
	s := mcp.ToolInputSchema{Type: "object"}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = props
	}
	if req, ok := schema["required"].([]string); ok {
		s.Required = req
	}
	return s
}

func (h *HTTPToolTransport) findTool(name string) (*model.Tool, error) {
	for _, t := range h.tools {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", gwerrors.ErrToolNotFound, name)
}

// CallTool templates the tool's Path/Headers/RequestBody/ResponseBody
// against args, config, and the inbound RequestInfo, issues the HTTP call,
// and templates ResponseBody against the decoded JSON response.
func (h *HTTPToolTransport) CallTool(ctx context.Context, name string, args map[string]any, reqInfo RequestInfo) (*mcp.CallToolResult, error) {
	tool, err := h.findTool(name)
	if err != nil {
		return nil, err
	}

	scope := dsl.EvalContext{
		Args:   args,
		Config: h.config,
		Request: map[string]any{
			"headers": stringMapToAny(reqInfo.Headers),
			"queries": stringMapToAny(reqInfo.Queries),
			"cookies": stringMapToAny(reqInfo.Cookies),
		},
	}

	path, err := h.engine.EvaluateString(tool.Path, scope)
	if err != nil {
		return nil, err
	}
	url := joinURL(h.server.URL, path)

	var bodyReader io.Reader
	if tool.RequestBody != "" {
		v, err := h.engine.Evaluate(tool.RequestBody, scope)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v.ToAny())
		if err != nil {
			return nil, gwerrors.NewInternalError("failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	method := tool.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, gwerrors.NewInternalError("failed to build upstream request", err)
	}
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for name, expr := range tool.Headers {
		val, err := h.engine.EvaluateString(expr, scope)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set(name, val)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.NewUpstreamError(h.server.Name, fmt.Sprintf("http tool %q request failed", name), err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerrors.NewUpstreamError(h.server.Name, fmt.Sprintf("http tool %q: failed reading response body", name), err)
	}

	var decoded any
	if len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, &decoded); err != nil {
			decoded = string(respBytes)
		}
	}

	text := string(respBytes)
	if tool.ResponseBody != "" {
		respScope := scope
		respScope.Response = map[string]any{
			"status": float64(resp.StatusCode),
			"body":   decoded,
			"headers": stringMapToAny(flattenHeader(resp.Header)),
		}
		v, err := h.engine.Evaluate(tool.ResponseBody, respScope)
		if err != nil {
			return nil, err
		}
		text = v.AsString()
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: resp.StatusCode >= 400,
	}, nil
}

// CallToolStreaming has no native chunking of its own; wrap with
// StreamableTransport for a chunked view onto the same result.
func (h *HTTPToolTransport) CallToolStreaming(ctx context.Context, name string, args map[string]any, req RequestInfo) (<-chan StreamChunk, error) {
	res, err := h.CallTool(ctx, name, args, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Content: res, ChunkID: 0, IsFinal: true}
	close(ch)
	return ch, nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

var _ Transport = (*HTTPToolTransport)(nil)
