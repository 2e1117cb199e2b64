// Package gateway implements the gateway's client-facing HTTP surface: the
// SSE, message, and streamable-HTTP endpoints published per router prefix.
// Grounded on internal/mcp-router/request_handlers.go for the JSON-RPC
// request shape (Validate, isNotificationRequest, ToolName), adapted from an
// Envoy ext-proc request/response pair to a plain net/http request/response
// pair, and on cmd/mcp-broker-router/main.go for the http.ServeMux/http.Server
// construction and graceful-shutdown idiom.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Request is one JSON-RPC 2.0 request body, as posted to /{prefix}/message
// or /{prefix}/mcp. Grounded on MCPRequest, trimmed to the fields a
// direct-HTTP gateway needs (no Envoy HeaderMap, no serverName - those are
// resolved from the URL prefix and the runtime snapshot instead).
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Validate checks the three JSON-RPC structural requirements
// MCPRequest.Validate enforces: version, a non-empty method, and an id
// unless the request is a notification.
func (r *Request) Validate() error {
	if r.JSONRPC != "2.0" {
		return fmt.Errorf("unsupported jsonrpc version %q", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("missing method")
	}
	if r.ID == nil && !r.IsNotification() {
		return fmt.Errorf("missing id")
	}
	return nil
}

// IsNotification reports whether r carries no id (per JSON-RPC 2.0) or its
// method begins with "notifications" (isNotificationRequest's prefix
// convention); either condition alone makes r a notification.
func (r *Request) IsNotification() bool {
	return r.ID == nil || strings.HasPrefix(r.Method, "notifications")
}

// ToolName reads the "name" field tools/call carries in its params, mirroring
// MCPRequest.ToolName.
func (r *Request) ToolName() string {
	name, _ := r.Params["name"].(string)
	return name
}

// ToolArguments reads the "arguments" field tools/call carries in its
// params.
func (r *Request) ToolArguments() map[string]any {
	args, _ := r.Params["arguments"].(map[string]any)
	return args
}

// Response is a JSON-RPC 2.0 response, delivered either as the direct HTTP
// response body (streamable transport) or as the data payload of an SSE
// "message" event (classic SSE transport).
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object required for every failed tools/call:
// a stable code, a human-readable message, and a best-effort machine-readable
// data record.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func resultResponse(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, code int, message string, data map[string]any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func marshalResponse(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Error/Result are built from our own types; a marshal failure here
		// means a programming error, not a runtime condition callers can act
		// on. Fall back to a minimal, always-valid envelope.
		b, _ = json.Marshal(errorResponse(resp.ID, -32603, "internal error encoding response", nil))
	}
	return b
}
