package corsmw_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/corsmw"
	"github.com/kagenti/mcp-gateway/internal/model"
)

func TestApply_SetsHeadersFromPolicy(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/sse", nil)
	policy := &model.CORSPolicy{
		AllowOrigins:     []string{"https://example.com"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Authorization"},
		ExposeHeaders:    []string{"Mcp-Session-Id"},
	}

	handled := corsmw.Apply(w, r, policy)
	assert.False(t, handled)
	assert.Equal(t, "https://example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestApply_NilPolicyIsNoop(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/sse", nil)
	handled := corsmw.Apply(w, r, nil)
	assert.False(t, handled)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApply_OPTIONSIsShortCircuited(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/sse", nil)
	handled := corsmw.Apply(w, r, &model.CORSPolicy{AllowOrigins: []string{"*"}})
	assert.True(t, handled)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCaptureRequestInfo_CapturesHeadersQueriesCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sse?foo=bar", nil)
	r.Header.Set("X-Custom", "value")
	r.AddCookie(&http.Cookie{Name: "session", Value: "abc"})

	info := corsmw.CaptureRequestInfo(r)
	assert.Equal(t, "value", info.Headers["X-Custom"])
	assert.Equal(t, "bar", info.Queries["foo"])
	assert.Equal(t, "abc", info.Cookies["session"])
}

func TestExtractSessionID_PrefersQueryThenHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/message?session_id=from-query", nil)
	assert.Equal(t, "from-query", corsmw.ExtractSessionID(r))

	r2 := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r2.Header.Set("Mcp-Session-Id", "from-header")
	assert.Equal(t, "from-header", corsmw.ExtractSessionID(r2))

	r3 := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	assert.Equal(t, "", corsmw.ExtractSessionID(r3))
}

func TestSetSessionIDHeader(t *testing.T) {
	w := httptest.NewRecorder()
	corsmw.SetSessionIDHeader(w, "abc123")
	require.Equal(t, "abc123", w.Header().Get("Mcp-Session-Id"))
}
