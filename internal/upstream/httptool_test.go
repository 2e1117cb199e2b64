package upstream_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHTTPToolTransport_CallTool_TemplatesPathHeadersAndBody(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"greeting":"hi bob"}`))
	}))
	defer ts.Close()

	server := &model.HTTPServer{Name: "greeter", URL: ts.URL}
	tool := &model.Tool{
		Name:         "greet",
		Method:       http.MethodPost,
		Path:         `"/users/" + toString(args.id)`,
		Headers:      map[string]string{"Authorization": `"Bearer " + config.token`},
		RequestBody:  `{name: args.name}`,
		ResponseBody: `response.body.greeting`,
	}
	transport := upstream.NewHTTPToolTransport(server, []*model.Tool{tool},
		map[string]any{"token": "secret"}, ts.Client(), testLogger)

	res, err := transport.CallTool(t.Context(), "greet",
		map[string]any{"id": 42.0, "name": "bob"}, upstream.RequestInfo{})
	require.NoError(t, err)
	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotBody), &body))
	assert.Equal(t, "bob", body["name"])

	require.Len(t, res.Content, 1)
	assert.False(t, res.IsError)
}

func TestHTTPToolTransport_CallTool_UnknownToolIsToolNotFound(t *testing.T) {
	server := &model.HTTPServer{Name: "empty", URL: "http://example.invalid"}
	transport := upstream.NewHTTPToolTransport(server, nil, nil, nil, testLogger)

	_, err := transport.CallTool(t.Context(), "missing", nil, upstream.RequestInfo{})
	assert.Error(t, err)
}

func TestHTTPToolTransport_CallTool_HTTPErrorStatusMarksResultAsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer ts.Close()

	server := &model.HTTPServer{Name: "flaky", URL: ts.URL}
	tool := &model.Tool{Name: "fail", Method: http.MethodGet, Path: `""`}
	transport := upstream.NewHTTPToolTransport(server, []*model.Tool{tool}, nil, ts.Client(), testLogger)

	res, err := transport.CallTool(t.Context(), "fail", nil, upstream.RequestInfo{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHTTPToolTransport_FetchTools_SynthesizesMCPToolList(t *testing.T) {
	server := &model.HTTPServer{Name: "svc", URL: "http://example.invalid"}
	tool := &model.Tool{
		Name:        "echo",
		Description: "echoes input",
		InputSchema: map[string]any{
			"properties": map[string]any{"msg": map[string]any{"type": "string"}},
		},
	}
	transport := upstream.NewHTTPToolTransport(server, []*model.Tool{tool}, nil, nil, testLogger)

	tools, err := transport.FetchTools(t.Context())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "object", tools[0].InputSchema.Type)
}

func TestHTTPToolTransport_StateTransitionsOnConnectAndClose(t *testing.T) {
	server := &model.HTTPServer{Name: "svc", URL: "http://example.invalid"}
	transport := upstream.NewHTTPToolTransport(server, nil, nil, nil, testLogger)
	assert.Equal(t, upstream.StateNew, transport.State())

	require.NoError(t, transport.Connect(t.Context()))
	assert.Equal(t, upstream.StateReady, transport.State())

	require.NoError(t, transport.Close(t.Context()))
	assert.Equal(t, upstream.StateClosed, transport.State())
}
