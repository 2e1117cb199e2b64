package dsl

import (
	"fmt"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
)

// Engine evaluates httptool templates. It is stateless; each
// upstream.HTTPToolTransport builds its own.
type Engine struct{}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine { return &Engine{} }

// EvaluateString evaluates src and renders the result with AsString,
// suitable for templating a URL path, a header value, or a string body
// field. Any parse or evaluation error is returned as a ClientError tagged
// dsl_error ; the caller must not perform the HTTP request
// when this returns an error.
func (e *Engine) EvaluateString(src string, ctx EvalContext) (string, error) {
	v, err := Eval(src, ctx)
	if err != nil {
		return "", toDSLError(src, err)
	}
	return v.AsString(), nil
}

// Evaluate evaluates src and returns the raw Value, for templates that
// produce a structured request_body rather than a string.
func (e *Engine) Evaluate(src string, ctx EvalContext) (Value, error) {
	v, err := Eval(src, ctx)
	if err != nil {
		return Null, toDSLError(src, err)
	}
	return v, nil
}

func toDSLError(src string, err error) *gwerrors.Error {
	return gwerrors.NewClientError(gwerrors.CodeDSLError, fmt.Sprintf("dsl_error in %q: %v", src, err))
}
