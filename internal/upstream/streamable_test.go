package upstream_test

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-gateway/internal/upstream"
)

// fakeTransport is a minimal upstream.Transport stand-in for exercising
// StreamableTransport without a live mcp-go client.
type fakeTransport struct {
	result *mcp.CallToolResult
	state  upstream.ConnState
}

func (f *fakeTransport) Connect(context.Context) error { return nil }
func (f *fakeTransport) FetchTools(context.Context) ([]mcp.Tool, error) {
	return nil, nil
}
func (f *fakeTransport) CallTool(context.Context, string, map[string]any, upstream.RequestInfo) (*mcp.CallToolResult, error) {
	return f.result, nil
}
func (f *fakeTransport) CallToolStreaming(context.Context, string, map[string]any, upstream.RequestInfo) (<-chan upstream.StreamChunk, error) {
	panic("not used by the test: StreamableTransport wraps CallTool, not CallToolStreaming")
}
func (f *fakeTransport) Close(context.Context) error { return nil }
func (f *fakeTransport) State() upstream.ConnState    { return f.state }

func TestStreamableTransport_SplitsContentBlocksIntoChunks(t *testing.T) {
	lower := &fakeTransport{
		state: upstream.StateReady,
		result: &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{Type: "text", Text: "first"},
				mcp.TextContent{Type: "text", Text: "second"},
			},
		},
	}
	s := upstream.NewStreamableTransport(lower)

	ch, err := s.CallToolStreaming(t.Context(), "tool", nil, upstream.RequestInfo{})
	require.NoError(t, err)

	var chunks []upstream.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.False(t, chunks[0].IsFinal)
	assert.True(t, chunks[1].IsFinal)
	assert.Equal(t, 0, chunks[0].ChunkID)
	assert.Equal(t, 1, chunks[1].ChunkID)
}

func TestStreamableTransport_EmptyContentYieldsSingleFinalChunk(t *testing.T) {
	lower := &fakeTransport{state: upstream.StateReady, result: &mcp.CallToolResult{}}
	s := upstream.NewStreamableTransport(lower)

	ch, err := s.CallToolStreaming(t.Context(), "tool", nil, upstream.RequestInfo{})
	require.NoError(t, err)

	var chunks []upstream.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFinal)
}

func TestStreamableTransport_DelegatesStateAndClose(t *testing.T) {
	lower := &fakeTransport{state: upstream.StateReady}
	s := upstream.NewStreamableTransport(lower)
	assert.Equal(t, upstream.StateReady, s.State())
	assert.NoError(t, s.Close(t.Context()))
}
