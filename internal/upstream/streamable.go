package upstream

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// StreamableTransport wraps an already-connected lower Transport (sse,
// stdio, or httptool) and turns a tool result's content blocks into a
// sequence of StreamChunk values, : "Streamable transport
// ... takes an already-connected lower transport [and] turns a tool result
// into a sequence of chunks." Connect, FetchTools, CallTool, Close and State
// delegate to the lower transport, which keeps its own connection across
// calls; this type only reshapes the result.
type StreamableTransport struct {
	lower Transport
}

// NewStreamableTransport wraps lower for chunked delivery.
func NewStreamableTransport(lower Transport) *StreamableTransport {
	return &StreamableTransport{lower: lower}
}

func (s *StreamableTransport) Connect(ctx context.Context) error { return s.lower.Connect(ctx) }

func (s *StreamableTransport) FetchTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.lower.FetchTools(ctx)
}

func (s *StreamableTransport) CallTool(ctx context.Context, name string, args map[string]any, req RequestInfo) (*mcp.CallToolResult, error) {
	return s.lower.CallTool(ctx, name, args, req)
}

// CallToolStreaming fetches the full result from the lower transport, then
// emits one chunk per content block so the gateway can forward the result
// as a sequence of chunks rather than a single combined payload; chunks are
// produced only after the whole result has arrived. This satisfies the
// streamable chunk-sequence
// contract even for lower transports (stdio, most sse servers) that only
// ever produce one complete result.
func (s *StreamableTransport) CallToolStreaming(ctx context.Context, name string, args map[string]any, req RequestInfo) (<-chan StreamChunk, error) {
	res, err := s.lower.CallTool(ctx, name, args, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, len(res.Content)+1)
	if len(res.Content) == 0 {
		ch <- StreamChunk{Content: res, ChunkID: 0, Time: chunkTime(), IsFinal: true}
		close(ch)
		return ch, nil
	}
	for i, block := range res.Content {
		ch <- StreamChunk{
			Content: block,
			ChunkID: i,
			Time:    chunkTime(),
			IsFinal: i == len(res.Content)-1,
			Metadata: map[string]any{
				"isError": res.IsError,
			},
		}
	}
	close(ch)
	return ch, nil
}

func (s *StreamableTransport) Close(ctx context.Context) error { return s.lower.Close(ctx) }

func (s *StreamableTransport) State() ConnState { return s.lower.State() }

// chunkTime exists only so every StreamChunk gets a wall-clock stamp; kept
// as its own function to make the one std-time call site obvious.
func chunkTime() time.Time { return time.Now() }

var _ Transport = (*StreamableTransport)(nil)
