// Package runtime holds the gateway's process-wide, lock-free-read state:
// the mapping from URL prefix to the active (McpConfig, TransportManager)
// pair. Grounded on the existing code's config.MCPServersConfig/Observer
// pattern (a single mutable config guarded by one mutex, reloaded in place),
// generalized into an immutable snapshot behind an atomic pointer so that a
// reload never blocks an in-flight session against the config it started
// with.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
	"github.com/kagenti/mcp-gateway/internal/metrics"
	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/transportmgr"
)

// Entry is one activated McpConfig as held in a Snapshot: the config itself
// plus the TransportManager built for it.
type Entry struct {
	Config  *model.McpConfig
	Manager *transportmgr.Manager
}

// Snapshot is the immutable, per-revision record of every active
// (tenant, name) config and the router prefixes it has published. Never
// mutated in place; Runtime.Activate/Deactivate always build a new one.
type Snapshot struct {
	// byPrefix resolves a client-facing URL prefix to the entry and router
	// that own it: prefix -> (McpConfig, TransportManager).
	byPrefix map[string]prefixBinding
	// byConfigKey resolves (tenant_name, name) to its entry, for
	// deactivation and reload lookups.
	byConfigKey map[string]*Entry
}

type prefixBinding struct {
	entry  *Entry
	router *model.Router
}

func emptySnapshot() *Snapshot {
	return &Snapshot{byPrefix: map[string]prefixBinding{}, byConfigKey: map[string]*Entry{}}
}

// Runtime is the process-wide holder of the current Snapshot. Reads
// (Resolve) are a single atomic pointer load; writes (Activate, Deactivate)
// serialize on mu and build a new Snapshot before publishing it.
type Runtime struct {
	logger  *slog.Logger
	mu      sync.Mutex
	ptr     atomic.Pointer[Snapshot]
	metrics *metrics.Metrics

	// buildManager constructs a transportmgr.Manager for a config; injected
	// so tests can substitute fake transports without touching real
	// upstream servers.
	buildManager func(ctx context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error)
}

// NewRuntime builds an empty Runtime. buildManager is called once per
// Activate to construct the TransportManager for the config being
// activated; it is expected to build one upstream.Transport per
// cfg.Servers/cfg.HTTPServers entry. m may be nil, in which case activation
// metrics are simply never recorded (Metrics' methods are nil-safe).
func NewRuntime(buildManager func(ctx context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error), logger *slog.Logger, m *metrics.Metrics) *Runtime {
	r := &Runtime{logger: logger, buildManager: buildManager, metrics: m}
	r.ptr.Store(emptySnapshot())
	return r
}

// Resolve looks up the active entry and router for a client-facing prefix.
// Wait-free: a single atomic pointer load plus a map read on the resulting
// immutable snapshot.
func (r *Runtime) Resolve(prefix string) (*Entry, *model.Router, bool) {
	snap := r.ptr.Load()
	b, ok := snap.byPrefix[prefix]
	if !ok {
		return nil, nil, false
	}
	return b.entry, b.router, true
}

// Activate runs a four-step algorithm: validate, build and start a new
// TransportManager, swap it in, then stop any manager it replaced.
// Activation of the same (tenant, name) twice leaves the runtime snapshot
// semantically identical, since the new manager is built and validated the
// same way every time (idempotent reactivation).
func (r *Runtime) Activate(ctx context.Context, cfg *model.McpConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.ptr.Load()
	if err := validate(cfg, current); err != nil {
		return err
	}

	mgr, err := r.buildManager(ctx, cfg)
	if err != nil {
		r.metrics.RecordActivation(cfg.TenantName, cfg.Name, "activate", "failed")
		return gwerrors.NewConfigError(fmt.Sprintf("failed to build transport manager for %s", cfg.Key()), err)
	}
	if err := mgr.Start(ctx); err != nil {
		r.metrics.RecordActivation(cfg.TenantName, cfg.Name, "activate", "failed")
		return gwerrors.NewConfigError(fmt.Sprintf("failed to start transport manager for %s", cfg.Key()), err)
	}

	next := cloneSnapshot(current)
	previous := next.byConfigKey[cfg.Key()]
	entry := &Entry{Config: cfg, Manager: mgr}
	next.byConfigKey[cfg.Key()] = entry

	removePrefixesFor(next, cfg.Key())
	for _, router := range cfg.Routers {
		next.byPrefix[router.Prefix] = prefixBinding{entry: entry, router: router}
		if router.EffectiveSSEPrefix() != router.Prefix {
			next.byPrefix[router.EffectiveSSEPrefix()] = prefixBinding{entry: entry, router: router}
		}
	}

	r.ptr.Store(next)
	r.logger.Info("activated mcp config", "config", cfg.Key(), "prefixes", len(cfg.Routers))
	r.metrics.RecordActivation(cfg.TenantName, cfg.Name, "activate", "ok")

	// Stop the replaced manager only after the new snapshot is live, so
	// sessions bound to it keep working until they disconnect (hot reload).
	if previous != nil {
		go func() {
			if err := previous.Manager.Stop(context.Background()); err != nil {
				r.logger.Error("error stopping replaced transport manager", "config", cfg.Key(), "error", err)
			}
		}()
	}
	return nil
}

// Deactivate removes cfg's entry and stops its TransportManager.
func (r *Runtime) Deactivate(ctx context.Context, tenantName, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.ptr.Load()
	key := tenantName + "/" + name
	entry, ok := current.byConfigKey[key]
	if !ok {
		r.metrics.RecordActivation(tenantName, name, "deactivate", "failed")
		return gwerrors.NewConfigError(fmt.Sprintf("no active config %s", key), nil)
	}

	next := cloneSnapshot(current)
	delete(next.byConfigKey, key)
	removePrefixesFor(next, key)
	r.ptr.Store(next)

	err := entry.Manager.Stop(ctx)
	if err != nil {
		r.metrics.RecordActivation(tenantName, name, "deactivate", "failed")
	} else {
		r.metrics.RecordActivation(tenantName, name, "deactivate", "ok")
	}
	return err
}

// validate checks routers reference known servers and that no prefix in
// cfg.Routers is already owned by a *different* config. Unique tool names
// after the collision rule are the transport manager's own concern (it
// silently drops collisions, never errors).
func validate(cfg *model.McpConfig, current *Snapshot) error {
	for _, router := range cfg.Routers {
		if cfg.FindServer(router.Server) == nil && cfg.FindHTTPServer(router.Server) == nil {
			return gwerrors.NewConfigError(fmt.Sprintf("router prefix %q references unknown server %q", router.Prefix, router.Server), nil)
		}
		if existing, ok := current.byPrefix[router.Prefix]; ok && existing.entry.Config.Key() != cfg.Key() {
			return gwerrors.NewConfigError(fmt.Sprintf("prefix %q already in use by config %s", router.Prefix, existing.entry.Config.Key()), nil)
		}
	}
	return nil
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	next := emptySnapshot()
	for k, v := range s.byPrefix {
		next.byPrefix[k] = v
	}
	for k, v := range s.byConfigKey {
		next.byConfigKey[k] = v
	}
	return next
}

func removePrefixesFor(s *Snapshot, configKey string) {
	for prefix, b := range s.byPrefix {
		if b.entry.Config.Key() == configKey {
			delete(s.byPrefix, prefix)
		}
	}
}
