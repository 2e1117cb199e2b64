package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-gateway/internal/corsmw"
	"github.com/kagenti/mcp-gateway/internal/gwerrors"
	"github.com/kagenti/mcp-gateway/internal/metrics"
	"github.com/kagenti/mcp-gateway/internal/runtime"
	"github.com/kagenti/mcp-gateway/internal/store"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

// Default timeouts, : "Per-request upstream call timeout is
// configurable (default 30s). Session idle timeout ... is configurable
// (default 5 min)."
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultIdleTimeout = 5 * time.Minute

	idleSweepInterval = 15 * time.Second
)

// Server is the gateway's client-facing HTTP handler: the three endpoints
// (sse, message, mcp), dispatched per router prefix resolved from the live
// runtime.Runtime snapshot. Grounded on cmd/mcp-broker-router/main.go's
// setUpBroker, which wires one http.ServeMux handler per concern (a root MCP
// handler, a well-known OAuth resource handler) onto a single *http.Server;
// this Server plays the same role but resolves its routing target
// per-request (one prefix per Router) instead of once at startup, since a
// single process here serves many router prefixes rather than one fixed MCP
// endpoint.
type Server struct {
	runtime     *runtime.Runtime
	store       store.Store
	sessionIDs  *store.SessionIDIssuer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	callTimeout time.Duration
	idleTimeout time.Duration

	sessions *sessionRegistry
}

// Option configures optional Server parameters at construction time.
type Option func(*Server)

// WithMetrics wires a Metrics sink into the Server.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.callTimeout = d }
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// NewServer builds a Server. rt resolves prefixes to active configs; st is
// the session store (memory or Redis-backed); ids mints and validates
// session ids.
func NewServer(rt *runtime.Runtime, st store.Store, ids *store.SessionIDIssuer, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		runtime:     rt,
		store:       st,
		sessionIDs:  ids,
		logger:      logger,
		callTimeout: DefaultCallTimeout,
		idleTimeout: DefaultIdleTimeout,
		sessions:    newSessionRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunIdleSweeper blocks, periodically closing sessions that have been idle
// for at least s.idleTimeout, until ctx is cancelled. Callers run it as a
// background goroutine from the process entrypoint.
func (s *Server) RunIdleSweeper(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepIdleSessions(ctx)
		}
	}
}

func (s *Server) sweepIdleSessions(ctx context.Context) {
	for _, id := range s.sessions.idleIDs(s.idleTimeout) {
		s.logger.Info("closing idle session", "session_id", id)
		st, _ := s.sessions.get(id)
		if st != nil {
			st.cancelInFlight()
		}
		if conn, err := s.store.Get(ctx, id); err == nil {
			_ = conn.Send(ctx, store.Message{Event: "close"})
			_ = conn.Close()
		}
		_ = s.store.Unregister(ctx, id)
		s.sessions.remove(id)
	}
}

// ServeHTTP dispatches to handleSSE/handleMessage/handleStreamable based on
// the request path's last segment, three endpoint shapes:
// GET /{prefix}/sse, POST /{prefix}/message, POST /{prefix}/mcp.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	prefix, endpoint, ok := splitPrefixEndpoint(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	entry, router, ok := s.runtime.Resolve(prefix)
	if !ok {
		s.recordHTTP(prefix, endpoint, http.StatusNotFound, start)
		http.NotFound(w, r)
		return
	}
	if corsmw.Apply(w, r, router.CORS) {
		s.recordHTTP(prefix, endpoint, http.StatusNoContent, start)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	switch endpoint {
	case "sse":
		if r.Method != http.MethodGet {
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			break
		}
		s.handleSSE(rec, r, prefix, entry)
	case "message":
		if r.Method != http.MethodPost {
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			break
		}
		s.handleMessage(rec, r, prefix, entry)
	case "mcp":
		if r.Method != http.MethodPost {
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			break
		}
		s.handleStreamable(rec, r, prefix, entry)
	default:
		http.NotFound(rec, r)
	}
	s.recordHTTP(prefix, endpoint, rec.status, start)
}

func (s *Server) recordHTTP(prefix, endpoint string, status int, start time.Time) {
	s.metrics.RecordHTTPRequest(prefix, endpoint, fmt.Sprintf("%d", status), time.Since(start))
}

// splitPrefixEndpoint splits "/a/b/sse" into prefix "a/b" and endpoint "sse".
// A path with fewer than two segments never matches a gateway endpoint.
func splitPrefixEndpoint(path string) (prefix, endpoint string, ok bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	endpoint = parts[len(parts)-1]
	if endpoint != "sse" && endpoint != "message" && endpoint != "mcp" {
		return "", "", false
	}
	prefix = strings.Join(parts[:len(parts)-1], "/")
	return prefix, endpoint, true
}

// handleSSE implements the classic SSE transport: it opens the stream,
// registers the session, and serves it until the client disconnects, the
// session goes idle, or the server shuts down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request, prefix string, entry *runtime.Entry) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := corsmw.ExtractSessionID(r)
	if id == "" {
		var err error
		id, err = s.sessionIDs.New(prefix)
		if err != nil {
			s.logger.Error("failed to mint session id", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	meta := store.Meta{
		ID: id, Prefix: prefix, Type: store.SessionTypeSSE,
		CreatedAt: time.Now(), Request: toRequestSnapshot(corsmw.CaptureRequestInfo(r)),
	}
	conn, err := s.store.Register(r.Context(), meta)
	if err != nil {
		s.logger.Error("failed to register sse session", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	state := s.sessions.create(id)
	s.metrics.RecordSessionCreated(prefix, "sse")
	s.updateSessionGauges(r.Context())

	defer func() {
		_ = conn.Close()
		_ = s.store.Unregister(context.Background(), id)
		s.sessions.remove(id)
		s.updateSessionGauges(context.Background())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSEFrame(w, "endpoint", []byte(fmt.Sprintf("/%s/message?session_id=%s", prefix, id)))
	flusher.Flush()

	ch, err := conn.Receive(r.Context())
	if err != nil {
		return
	}

	idleTimer := time.NewTimer(s.idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idleTimer.C:
			writeSSEFrame(w, "close", nil)
			flusher.Flush()
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			state.touch()
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			idleTimer.Reset(s.idleTimeout)
			writeSSEFrame(w, msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w io.Writer, event string, data []byte) {
	if event == "" {
		event = "message"
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleMessage implements : a JSON-RPC request from an SSE
// client, whose response(s) are delivered as "message" events on that
// client's already-open SSE stream, not in this POST's body.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request, prefix string, entry *runtime.Entry) {
	id := corsmw.ExtractSessionID(r)
	if id == "" {
		http.Error(w, "missing session_id", http.StatusNotFound)
		return
	}
	meta, conn, ok := s.lookupSession(r.Context(), id, prefix)
	if !ok {
		http.NotFound(w, r)
		return
	}
	state, _ := s.sessions.get(id)
	if state == nil {
		state = s.sessions.create(id)
	}
	state.touch()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed json-rpc body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.dispatch(r.Context(), &req, entry, meta, conn, state)
	w.WriteHeader(http.StatusAccepted)
}

// lookupSession validates a session id exists and is bound to prefix, per
// "validate session exists and matches prefix; 404
// otherwise." Meta is resolved via GetMeta rather than a List scan so this
// works cross-replica: a Redis-backed session registered on another
// replica still resolves here, since GetMeta reads the shared store rather
// than this replica's local registrations.
func (s *Server) lookupSession(ctx context.Context, id, prefix string) (store.Meta, store.Connection, bool) {
	conn, err := s.store.Get(ctx, id)
	if err != nil {
		return store.Meta{}, nil, false
	}
	meta, err := s.store.GetMeta(ctx, id)
	if err != nil || meta.Prefix != prefix {
		return store.Meta{}, nil, false
	}
	return meta, conn, true
}

// dispatch runs one JSON-RPC method against entry's TransportManager and
// delivers the result (or error) to conn as a "message" SSE event, per
// recognized-methods table. It is also reused, synchronously,
// by handleStreamable for the non-chunked-response case.
func (s *Server) dispatch(ctx context.Context, req *Request, entry *runtime.Entry, meta store.Meta, conn store.Connection, state *sessionState) {
	send := func(resp Response) {
		if req.IsNotification() {
			return
		}
		_ = conn.Send(ctx, store.Message{Event: "message", Data: marshalResponse(resp)})
	}

	if req.Method != "initialize" && req.Method != "ping" && !strings.HasPrefix(req.Method, "notifications") && !state.isInitialized() {
		send(errorResponse(req.ID, gwerrors.CodeNotInitialized, "session not initialized", nil))
		return
	}

	switch req.Method {
	case "initialize":
		state.markInitialized()
		send(resultResponse(req.ID, initializeResult()))

	case "tools/list":
		tools, err := entry.Manager.FetchAllTools(ctx)
		if err != nil {
			send(upstreamErrorResponse(req.ID, err))
			return
		}
		send(resultResponse(req.ID, map[string]any{"tools": tools}))

	case "tools/call":
		s.dispatchToolCall(ctx, req, entry, meta, conn, state, send)

	case "ping":
		send(resultResponse(req.ID, map[string]any{}))

	default:
		if strings.HasPrefix(req.Method, "notifications") {
			return
		}
		send(errorResponse(req.ID, gwerrors.CodeMethodNotFound, "method not found: "+req.Method, nil))
	}
}

func (s *Server) dispatchToolCall(ctx context.Context, req *Request, entry *runtime.Entry, meta store.Meta, conn store.Connection, state *sessionState, send func(Response)) {
	name := req.ToolName()
	if name == "" {
		send(errorResponse(req.ID, gwerrors.CodeInvalidParams, "missing tool name", nil))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	state.setCancel(cancel)
	defer func() {
		state.setCancel(nil)
		cancel()
	}()

	reqInfo := toRequestInfo(meta.Request)
	start := time.Now()
	chunks, err := entry.Manager.CallToolStreaming(callCtx, name, req.ToolArguments(), reqInfo)
	if err != nil {
		s.metrics.RecordToolError(entry.Config.TenantName, entry.Config.Name, name, errorKind(err))
		send(upstreamErrorResponse(req.ID, err))
		return
	}

	for chunk := range chunks {
		if chunk.IsFinal {
			s.metrics.RecordToolCall(entry.Config.TenantName, entry.Config.Name, name, time.Since(start))
			send(resultResponse(req.ID, chunk.Content))
			return
		}
		data, _ := json.Marshal(chunk)
		_ = conn.Send(ctx, store.Message{Event: "message", Data: data})
	}
}

// handleStreamable implements the streamable-HTTP transport: a synchronous
// application/json response for most methods, or a chunked
// application/x-ndjson response for a streaming tools/call, keyed by the
// Mcp-Session-Id header.
func (s *Server) handleStreamable(w http.ResponseWriter, r *http.Request, prefix string, entry *runtime.Entry) {
	id := corsmw.ExtractSessionID(r)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed json-rpc body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var state *sessionState
	var meta store.Meta
	if id == "" {
		if req.Method != "initialize" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write(marshalResponse(errorResponse(req.ID, gwerrors.CodeNotInitialized, "a fresh client must initialize first", nil)))
			return
		}
		var err error
		id, err = s.sessionIDs.New(prefix)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		meta = store.Meta{ID: id, Prefix: prefix, Type: store.SessionTypeStreamable, CreatedAt: time.Now(), Request: toRequestSnapshot(corsmw.CaptureRequestInfo(r))}
		if _, err := s.store.Register(r.Context(), meta); err != nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		state = s.sessions.create(id)
		s.metrics.RecordSessionCreated(prefix, "streamable")
		s.updateSessionGauges(r.Context())
		corsmw.SetSessionIDHeader(w, id)
	} else {
		var ok bool
		meta, _, ok = s.lookupSession(r.Context(), id, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		state, ok = s.sessions.get(id)
		if !ok {
			state = s.sessions.create(id)
		}
		corsmw.SetSessionIDHeader(w, id)
	}
	state.touch()

	if req.Method == "tools/call" {
		s.streamToolCall(w, r, &req, entry, meta, state)
		return
	}

	var result *Response
	loopback := loopbackConnection{out: make(chan store.Message, 1)}
	s.dispatch(r.Context(), &req, entry, meta, &loopback, state)
	select {
	case msg := <-loopback.out:
		var resp Response
		if err := json.Unmarshal(msg.Data, &resp); err == nil {
			result = &resp
		}
	default:
	}

	w.Header().Set("Content-Type", "application/json")
	if result == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	_, _ = w.Write(marshalResponse(*result))
}

// streamToolCall handles a streamable tools/call: the response is
// application/json if the tool produced exactly one, final chunk, or
// application/x-ndjson (one JSON object per line, flushed as produced)
// otherwise.
func (s *Server) streamToolCall(w http.ResponseWriter, r *http.Request, req *Request, entry *runtime.Entry, meta store.Meta, state *sessionState) {
	name := req.ToolName()
	if name == "" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(marshalResponse(errorResponse(req.ID, gwerrors.CodeInvalidParams, "missing tool name", nil)))
		return
	}

	callCtx, cancel := context.WithTimeout(r.Context(), s.callTimeout)
	state.setCancel(cancel)
	defer func() {
		state.setCancel(nil)
		cancel()
	}()

	start := time.Now()
	chunks, err := entry.Manager.CallToolStreaming(callCtx, name, req.ToolArguments(), toRequestInfo(meta.Request))
	if err != nil {
		s.metrics.RecordToolError(entry.Config.TenantName, entry.Config.Name, name, errorKind(err))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(marshalResponse(upstreamErrorResponse(req.ID, err)))
		return
	}

	first, ok := <-chunks
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(marshalResponse(resultResponse(req.ID, nil)))
		return
	}
	if first.IsFinal {
		s.metrics.RecordToolCall(entry.Config.TenantName, entry.Config.Name, name, time.Since(start))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(marshalResponse(resultResponse(req.ID, first.Content)))
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	writeNDJSONLine(w, first)
	if flusher != nil {
		flusher.Flush()
	}
	for chunk := range chunks {
		if chunk.IsFinal {
			s.metrics.RecordToolCall(entry.Config.TenantName, entry.Config.Name, name, time.Since(start))
			line, _ := json.Marshal(resultResponse(req.ID, chunk.Content))
			w.Write(append(line, '\n'))
		} else {
			writeNDJSONLine(w, chunk)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeNDJSONLine(w io.Writer, chunk upstream.StreamChunk) {
	line, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	_, _ = w.Write(append(line, '\n'))
}

// loopbackConnection is a store.Connection stand-in that delivers a single
// Send into an in-process channel instead of the session store, used by
// handleStreamable to reuse dispatch's method table for the
// request/response-shaped (non-tools/call) streamable methods without
// routing their result through the SSE store at all.
type loopbackConnection struct {
	out chan store.Message
}

func (l *loopbackConnection) Send(_ context.Context, msg store.Message) error {
	select {
	case l.out <- msg:
	default:
	}
	return nil
}
func (l *loopbackConnection) Receive(context.Context) (<-chan store.Message, error) { return l.out, nil }
func (l *loopbackConnection) Close() error                                          { return nil }

var _ store.Connection = (*loopbackConnection)(nil)

func (s *Server) updateSessionGauges(ctx context.Context) {
	metas, err := s.store.List(ctx)
	if err != nil {
		return
	}
	counts := map[[2]string]int{}
	for _, m := range metas {
		counts[[2]string{m.Prefix, string(m.Type)}]++
	}
	for key, count := range counts {
		s.metrics.SetSessionsActive(key[0], key[1], count)
	}
}

func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "mcp-gateway", "version": "0.0.1"},
	}
}

func upstreamErrorResponse(id any, err error) Response {
	if ge, ok := gwerrors.As(err); ok {
		return errorResponse(id, ge.Code, ge.Message, ge.Data())
	}
	return errorResponse(id, gwerrors.CodeUpstreamError, err.Error(), nil)
}

func errorKind(err error) string {
	if ge, ok := gwerrors.As(err); ok {
		return string(ge.Kind)
	}
	return "unknown"
}

func toRequestSnapshot(ri upstream.RequestInfo) store.RequestSnapshot {
	return store.RequestSnapshot{Headers: ri.Headers, Queries: ri.Queries, Cookies: ri.Cookies}
}

func toRequestInfo(rs store.RequestSnapshot) upstream.RequestInfo {
	return upstream.RequestInfo{Headers: rs.Headers, Queries: rs.Queries, Cookies: rs.Cookies}
}

// statusRecorder captures the status code a handler wrote, for metrics,
// without interfering with Flusher/Hijacker behavior other http.ResponseWriter
// wrappers need.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.Flusher = (*statusRecorder)(nil)
