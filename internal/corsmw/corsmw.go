// Package corsmw applies a Router's CORS policy to the gateway's three
// client-facing endpoints, and extracts the per-request identity snapshot
// (headers/queries/cookies) a session freezes at creation time for DSL
// templating. Grounded on the existing code's
// cmd/mcp-broker-router/main.go oauthProtectedResourceHandler (manual
// Access-Control-* header setting, OPTIONS preflight short-circuit) and
// internal/mcp-router/headers.go's header-name constants, generalized from
// one hardcoded policy to per-router configurable
// model.CORSPolicy.
package corsmw

import (
	"net/http"
	"strings"

	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

// Apply sets Access-Control-* response headers from policy and, for an
// OPTIONS preflight, writes the response and returns true (the caller must
// not continue handling the request). policy may be nil, in which case no
// CORS headers are set and the request is never short-circuited.
func Apply(w http.ResponseWriter, r *http.Request, policy *model.CORSPolicy) (handled bool) {
	if policy == nil {
		return false
	}

	if len(policy.AllowOrigins) > 0 {
		w.Header().Set("Access-Control-Allow-Origin", strings.Join(policy.AllowOrigins, ", "))
	}
	if len(policy.AllowMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(policy.AllowMethods, ", "))
	}
	if len(policy.AllowHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(policy.AllowHeaders, ", "))
	}
	if len(policy.ExposeHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(policy.ExposeHeaders, ", "))
	}
	if policy.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

// CaptureRequestInfo freezes the request's headers, query parameters, and
// cookies into an upstream.RequestInfo, Session.request:
// "captured {headers, queries, cookies} from the initiating HTTP request,
// frozen for the session's lifetime".
func CaptureRequestInfo(r *http.Request) upstream.RequestInfo {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	queries := make(map[string]string)
	for k := range r.URL.Query() {
		queries[k] = r.URL.Query().Get(k)
	}

	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	return upstream.RequestInfo{Headers: headers, Queries: queries, Cookies: cookies}
}

// ExtractSessionID reads an existing session id from the "session_id" query
// parameter (SSE) or the "Mcp-Session-Id" header (streamable). Returns "" if
// neither is present.
func ExtractSessionID(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	return r.Header.Get("Mcp-Session-Id")
}

// SetSessionIDHeader writes the Mcp-Session-Id response header for the
// streamable transport.
func SetSessionIDHeader(w http.ResponseWriter, id string) {
	w.Header().Set("Mcp-Session-Id", id)
}
