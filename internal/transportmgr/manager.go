// Package transportmgr owns every upstream.Transport activated for one
// McpConfig and applies the tool-name collision rule across them: the tool
// bound is the one from the earlier entry in servers + http_servers order.
// Grounded on internal/broker/upstream.MCPManager, generalized from one
// manager per upstream server to one manager owning every upstream a config
// activates.
package transportmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
	"github.com/kagenti/mcp-gateway/internal/metrics"
	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/upstream"
)

// source is one entry in the collision-resolution order: an McpServer or an
// HTTPServer, each owning one upstream.Transport.
type source struct {
	name      string
	transport upstream.Transport
	policy    model.ConnectPolicy
}

// Manager routes tools/list and tools/call across every transport a single
// McpConfig activates, and owns their lifecycle.
type Manager struct {
	logger *slog.Logger

	tenant, config string
	metrics        *metrics.Metrics

	sources []source

	toolsMu   sync.RWMutex
	toolOwner map[string]string // unprefixed tool name -> source name
}

// Option configures optional Manager dependencies at construction time.
type Option func(*Manager)

// WithMetrics wires a Metrics sink into the Manager; every source connect
// attempt and ready/not-ready transition is recorded against it. Omitting
// this option leaves metrics collection a no-op (nil-safe Metrics methods).
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// NewManager builds a Manager for cfg's servers and HTTP servers, in
// declaration order (servers first, then http_servers), which is also the
// tool-name collision ordering. transports must contain one entry per
// cfg.Servers[i].Name and cfg.HTTPServers[j].Name.
func NewManager(cfg *model.McpConfig, transports map[string]upstream.Transport, logger *slog.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		logger:    logger.With("mcp_config", cfg.Key()),
		tenant:    cfg.TenantName,
		config:    cfg.Name,
		toolOwner: map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range cfg.Servers {
		t, ok := transports[s.Name]
		if !ok {
			return nil, gwerrors.NewConfigError(fmt.Sprintf("no transport built for server %q", s.Name), nil)
		}
		m.sources = append(m.sources, source{name: s.Name, transport: t, policy: s.Policy})
	}
	for _, hs := range cfg.HTTPServers {
		t, ok := transports[hs.Name]
		if !ok {
			return nil, gwerrors.NewConfigError(fmt.Sprintf("no transport built for http_server %q", hs.Name), nil)
		}
		m.sources = append(m.sources, source{name: hs.Name, transport: t, policy: model.PolicyOnDemand})
	}
	return m, nil
}

// Start connects every source whose policy is on_start. on_demand sources
// connect lazily on first CallTool.
func (m *Manager) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.sources {
		if s.policy != model.PolicyOnStart {
			continue
		}
		s := s
		g.Go(func() error {
			if err := s.transport.Connect(gctx); err != nil {
				m.logger.Error("failed to connect on_start transport", "source", s.name, "error", err)
				m.metrics.RecordConnectAttempt(m.tenant, m.config, s.name, "failed")
				return nil // a failed on_start connect does not abort activation
			}
			m.metrics.RecordConnectAttempt(m.tenant, m.config, s.name, "ok")
			m.metrics.SetConnectionActive(m.tenant, m.config, s.name, true)
			return nil
		})
	}
	return g.Wait()
}

// Stop closes every transport concurrently, bounding each close to a fixed
// timeout via errgroup + context.WithTimeout, the same shutdown idiom
// MCPManager.Stop uses but generalized across N transports instead of one.
func (m *Manager) Stop(ctx context.Context) error {
	const perTransportTimeout = 5 * time.Second
	g, _ := errgroup.WithContext(ctx)
	for _, s := range m.sources {
		s := s
		g.Go(func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), perTransportTimeout)
			defer cancel()
			if err := s.transport.Close(closeCtx); err != nil {
				m.logger.Error("error closing transport", "source", s.name, "error", err)
			}
			m.metrics.SetConnectionActive(m.tenant, m.config, s.name, false)
			return nil
		})
	}
	return g.Wait()
}

// FetchAllTools refreshes every source's tool list and returns the merged,
// collision-resolved union: every transport's tool list, with the collision
// rule applied. Sources are queried concurrently; the winner for a colliding
// name is always the one that appears earliest in m.sources, never whichever
// query finishes first.
func (m *Manager) FetchAllTools(ctx context.Context) ([]mcp.Tool, error) {
	fetched := make([][]mcp.Tool, len(m.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range m.sources {
		i, s := i, s
		g.Go(func() error {
			tools, err := s.transport.FetchTools(gctx)
			if err != nil {
				m.logger.Warn("failed to fetch tools from source", "source", s.name, "error", err)
				return nil // an unreachable source just contributes zero tools this round
			}
			fetched[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	owner := map[string]string{}
	var merged []mcp.Tool
	for i, s := range m.sources {
		for _, t := range fetched[i] {
			if _, taken := owner[t.Name]; taken {
				continue
			}
			owner[t.Name] = s.name
			merged = append(merged, t)
		}
	}

	m.toolsMu.Lock()
	m.toolOwner = owner
	m.toolsMu.Unlock()

	return merged, nil
}

// ownerTransport returns the transport bound to name by the last
// FetchAllTools call, per the collision rule's "never B's transport" clause
// (scenario 2).
func (m *Manager) ownerTransport(name string) (upstream.Transport, error) {
	m.toolsMu.RLock()
	ownerName, ok := m.toolOwner[name]
	m.toolsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", gwerrors.ErrToolNotFound, name)
	}
	for _, s := range m.sources {
		if s.name == ownerName {
			return s.transport, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", gwerrors.ErrToolNotFound, name)
}

// CallTool routes a tools/call to the transport that owns name.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any, req upstream.RequestInfo) (*mcp.CallToolResult, error) {
	t, err := m.ownerTransport(name)
	if err != nil {
		return nil, err
	}
	return t.CallTool(ctx, name, args, req)
}

// CallToolStreaming routes a streamed tools/call to the transport that owns
// name.
func (m *Manager) CallToolStreaming(ctx context.Context, name string, args map[string]any, req upstream.RequestInfo) (<-chan upstream.StreamChunk, error) {
	t, err := m.ownerTransport(name)
	if err != nil {
		return nil, err
	}
	return t.CallToolStreaming(ctx, name, args, req)
}

// SourceNames returns the source names in collision-resolution order, for
// callers (such as tests) that need to inspect how a Manager was assembled.
func (m *Manager) SourceNames() []string {
	out := make([]string, len(m.sources))
	for i, s := range m.sources {
		out[i] = s.name
	}
	return out
}
