// Package gwerrors implements the gateway's error taxonomy: every error a
// transport, the transport manager, or the gateway server
// raises is translated into one of these five kinds before it crosses a
// package boundary the client can observe. The JSON-RPC and HTTP layers
// translate a Kind into a stable error code; nothing upstream of that
// translation needs to know about JSON-RPC or HTTP status codes.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories the gateway distinguishes.
type Kind string

// The five error kinds.
const (
	KindClient   Kind = "client_error"
	KindUpstream Kind = "upstream_error"
	KindConfig   Kind = "config_error"
	KindStore    Kind = "store_error"
	KindInternal Kind = "internal_error"
)

// Error is a taxonomy-tagged error. Code and Message form the stable,
// user-visible pair required for every failed tools/call; Data carries the
// best-effort machine-readable {kind, upstream_name?} record.
type Error struct {
	Kind         Kind
	Code         int
	Message      string
	UpstreamName string
	Err          error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Data returns the best-effort machine-readable record carried in the
// JSON-RPC error's data field.
func (e *Error) Data() map[string]any {
	d := map[string]any{"kind": string(e.Kind)}
	if e.UpstreamName != "" {
		d["upstream_name"] = e.UpstreamName
	}
	return d
}

// JSON-RPC codes used across the taxonomy. -32601/-32602/-32603/-32002 are
// reserved MCP/JSON-RPC codes; the rest are this gateway's own.
const (
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternal        = -32603
	CodeNotInitialized  = -32002
	CodeUpstreamError   = -32001
	CodeToolNotFound    = -32004
	CodeNotConnected    = -32005
	CodeTimeout         = -32006
	CodeStoreErrorCode  = -32007
	CodeUnknownPrefix   = -32008
	CodeUnknownSession  = -32009
	CodeDSLError        = -32010
	CodeConfigError     = -32011
	CodeCancelled       = -32012
)

// NewClientError builds a ClientError: bad session id, unknown method,
// unknown tool, malformed arguments, invalid prefix.
func NewClientError(code int, message string) *Error {
	return &Error{Kind: KindClient, Code: code, Message: message}
}

// NewUpstreamError builds an UpstreamError wrapping the upstream's own
// failure: transport disconnected, upstream timed out, upstream returned an
// error response.
func NewUpstreamError(upstreamName, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUpstreamError, Message: message, UpstreamName: upstreamName, Err: err}
}

// NewConfigError builds a ConfigError: activation-time validation failure.
func NewConfigError(message string, err error) *Error {
	return &Error{Kind: KindConfig, Code: CodeConfigError, Message: message, Err: err}
}

// NewStoreError builds a StoreError: session store unreachable, surfaced as
// 503 to the client.
func NewStoreError(message string, err error) *Error {
	return &Error{Kind: KindStore, Code: CodeStoreErrorCode, Message: message, Err: err}
}

// NewInternalError builds an InternalError: unexpected, surfaced as
// JSON-RPC -32603.
func NewInternalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// Sentinel transport-layer errors.
var (
	ErrNotConnected       = errors.New("not_connected")
	ErrToolNotFound       = errors.New("tool_not_found")
	ErrTimeout            = errors.New("timeout")
	ErrCancelled          = errors.New("cancelled")
	ErrInstallUnsupported = errors.New("stdio server install pathway not implemented")
)

// As is a thin wrapper around errors.As for *Error, for call sites that
// want the taxonomy-tagged error without repeating the type assertion.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
