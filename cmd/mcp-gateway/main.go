// main implements the CLI for the MCP gateway's client-facing process:
// loads the bootstrap McpConfig set, activates each into the runtime,
// serves three endpoints, and reconciles on notifier events.
// Grounded on the existing cmd/mcp-broker-router/main.go for flag parsing,
// http.Server construction, and the signal.Notify + timed-Shutdown
// graceful-shutdown sequence.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kagenti/mcp-gateway/internal/config"
	"github.com/kagenti/mcp-gateway/internal/gateway"
	"github.com/kagenti/mcp-gateway/internal/metrics"
	"github.com/kagenti/mcp-gateway/internal/model"
	"github.com/kagenti/mcp-gateway/internal/notifier"
	"github.com/kagenti/mcp-gateway/internal/runtime"
	"github.com/kagenti/mcp-gateway/internal/store"
	"github.com/kagenti/mcp-gateway/internal/transportmgr"
	"github.com/kagenti/mcp-gateway/internal/upstream"
	"github.com/kagenti/mcp-gateway/pkg/credentials"
)

func main() {
	var (
		bindAddr        string
		metricsAddr     string
		configPath      string
		redisAddr       string
		redisTopic      string
		notifierVariant string
		sessionSigning  string
		callTimeout     time.Duration
		idleTimeout     time.Duration
		logFormat       string
	)
	flag.StringVar(&bindAddr, "bind-address", ":8080", "gateway client-facing bind address")
	flag.StringVar(&metricsAddr, "metrics-address", ":9090", "Prometheus /metrics bind address")
	flag.StringVar(&configPath, "config", "", "path to the bootstrap McpConfig file (dev-mode; empty skips loading)")
	flag.StringVar(&redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis connection string; empty uses the in-memory session store")
	flag.StringVar(&redisTopic, "redis-topic", "mcp-gateway", "Redis pub/sub topic suffix for session fan-out")
	flag.StringVar(&notifierVariant, "notifier", envOr("NOTIFIER_VARIANT", "signal"), "notifier variant: signal, redis, or api")
	flag.StringVar(&sessionSigning, "session-signing-key", envOr("SESSION_SIGNING_KEY", "dev-only-insecure-key"), "HMAC key used to sign session ids")
	flag.DurationVar(&callTimeout, "call-timeout", gateway.DefaultCallTimeout, "per-request upstream tool call timeout")
	flag.DurationVar(&idleTimeout, "idle-timeout", gateway.DefaultIdleTimeout, "session idle timeout")
	flag.StringVar(&logFormat, "log-format", "txt", "switch to json logs with --log-format=json")
	flag.Parse()

	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	sessionStore, closeStore := mustBuildStore(ctx, redisAddr, redisTopic, logger)
	defer closeStore()

	notif := mustBuildNotifier(ctx, notifierVariant, redisAddr, redisTopic, logger)
	defer func() { _ = notif.Close() }()

	sessionIDs, err := store.NewSessionIDIssuer(sessionSigning, 24*time.Hour)
	if err != nil {
		logger.Error("failed to build session id issuer", "error", err)
		os.Exit(1)
	}

	rt := runtime.NewRuntime(buildManager(logger, m), logger, m)

	if configPath != "" {
		loader, err := config.NewLoader(configPath)
		if err != nil {
			logger.Error("failed to load bootstrap config", "error", err)
			os.Exit(1)
		}
		activateAll(ctx, rt, loader, logger)
		loader.RegisterObserver(reconciler{ctx: ctx, rt: rt, logger: logger})
	}

	go reconcileOnNotify(ctx, notif, rt, logger)

	gw := gateway.NewServer(rt, sessionStore, sessionIDs, logger,
		gateway.WithMetrics(m),
		gateway.WithCallTimeout(callTimeout),
		gateway.WithIdleTimeout(idleTimeout))
	go gw.RunIdleSweeper(ctx)

	gwServer := &http.Server{Addr: bindAddr, Handler: gw, ReadTimeout: 5 * time.Second, WriteTimeout: 0}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if na, ok := notif.(interface{ Handler() http.HandlerFunc }); ok {
		metricsMux.HandleFunc("/internal/notify", na.Handler())
	}
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("gateway listening", "address", bindAddr)
		if err := gwServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server error", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics/healthz listening", "address", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = gwServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustBuildStore(ctx context.Context, redisAddr, topic string, logger *slog.Logger) (store.Store, func()) {
	if redisAddr == "" {
		st := store.NewMemoryStore(logger, 0)
		return st, func() { _ = st.Close() }
	}
	st, err := store.NewRedisStore(ctx, redisAddr, topic, 24*time.Hour, 0, logger)
	if err != nil {
		logger.Error("failed to connect to redis session store, falling back to in-memory", "error", err)
		mem := store.NewMemoryStore(logger, 0)
		return mem, func() { _ = mem.Close() }
	}
	return st, func() { _ = st.Close() }
}

func mustBuildNotifier(ctx context.Context, variant, redisAddr, topic string, logger *slog.Logger) notifier.Notifier {
	switch variant {
	case "redis":
		if redisAddr == "" {
			logger.Warn("notifier=redis requires -redis-addr; falling back to signal")
			return notifier.NewSignalNotifier()
		}
		n, err := notifier.NewRedisNotifier(ctx, redisAddr, topic, logger)
		if err != nil {
			logger.Error("failed to connect redis notifier, falling back to signal", "error", err)
			return notifier.NewSignalNotifier()
		}
		return n
	case "api":
		return notifier.NewAPINotifier(os.Getenv("CONFIG_UPDATE_TOKEN"), logger)
	default:
		return notifier.NewSignalNotifier()
	}
}

// resolveCredential reads name from the mounted credentials directory, if
// name is set. A missing mount is logged and treated as no credential
// rather than a fatal activation error, since not every deployment mounts
// one.
func resolveCredential(name string, logger *slog.Logger) (string, error) {
	if name == "" {
		return "", nil
	}
	val, err := credentials.Get(name)
	if err != nil {
		logger.Warn("credential not found, proceeding without it", "credential", name, "error", err)
		return "", nil
	}
	return val, nil
}

// buildManager constructs the transportmgr.Manager for one McpConfig,
// building one upstream.Transport per server/http_server entry.
func buildManager(logger *slog.Logger, m *metrics.Metrics) func(ctx context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error) {
	return func(_ context.Context, cfg *model.McpConfig) (*transportmgr.Manager, error) {
		transports := map[string]upstream.Transport{}
		for _, srv := range cfg.Servers {
			cred, err := resolveCredential(srv.Credential, logger)
			if err != nil {
				return nil, err
			}
			switch srv.Type {
			case model.ServerTypeStdio:
				env := os.Environ()
				if cred != "" {
					env = append(env, "MCP_UPSTREAM_CREDENTIAL="+cred)
				}
				t, err := upstream.NewStdioTransport(srv, env, logger)
				if err != nil {
					return nil, err
				}
				transports[srv.Name] = upstream.NewStreamableTransport(t)
			default:
				var headers map[string]string
				if cred != "" {
					headers = map[string]string{"Authorization": "Bearer " + cred}
				}
				transports[srv.Name] = upstream.NewStreamableTransport(upstream.NewSSETransport(srv, headers, logger))
			}
		}
		for _, hs := range cfg.HTTPServers {
			tools := cfg.ToolsForHTTPServer(hs)
			transports[hs.Name] = upstream.NewHTTPToolTransport(hs, tools, map[string]any{"baseUrl": hs.URL}, http.DefaultClient, logger)
		}
		return transportmgr.NewManager(cfg, transports, logger, transportmgr.WithMetrics(m))
	}
}

func activateAll(ctx context.Context, rt *runtime.Runtime, loader *config.Loader, logger *slog.Logger) {
	configs, err := loader.Load()
	if err != nil {
		logger.Error("failed to decode bootstrap config", "error", err)
		return
	}
	for _, cfg := range configs {
		if cfg.Deleted() {
			continue
		}
		if err := rt.Activate(ctx, cfg); err != nil {
			logger.Error("failed to activate bootstrap config", "config", cfg.Key(), "error", err)
		}
	}
}

// reconciler implements config.Observer: on a file-watch change it
// re-activates every current config, the same "re-read only" behavior
// open question on `sync` semantics settles on.
type reconciler struct {
	ctx    context.Context
	rt     *runtime.Runtime
	logger *slog.Logger
}

func (r reconciler) OnConfigChange(configs []*model.McpConfig) {
	for _, cfg := range configs {
		if cfg.Deleted() {
			if err := r.rt.Deactivate(r.ctx, cfg.TenantName, cfg.Name); err != nil {
				r.logger.Warn("failed to deactivate removed config", "config", cfg.Key(), "error", err)
			}
			continue
		}
		if err := r.rt.Activate(r.ctx, cfg); err != nil {
			r.logger.Error("failed to reactivate config on reload", "config", cfg.Key(), "error", err)
		}
	}
}

// reconcileOnNotify subscribes to the notifier, logs every event, and
// deactivates the named config on delete events. Event carries only
// (tenant, name, op) and this gateway has no management-API client to fetch
// the full McpConfig by that key, so create/update/activate events are
// logged only and do not reactivate anything.
func reconcileOnNotify(ctx context.Context, notif notifier.Notifier, rt *runtime.Runtime, logger *slog.Logger) {
	events, err := notif.Subscribe(ctx)
	if err != nil {
		logger.Error("failed to subscribe to notifier", "error", err)
		return
	}
	for ev := range events {
		logger.Info("config change notified", "tenant", ev.Tenant, "name", ev.Name, "op", ev.Op)
		if ev.Op == notifier.OpDelete {
			if err := rt.Deactivate(ctx, ev.Tenant, ev.Name); err != nil {
				logger.Warn("failed to deactivate on notify", "tenant", ev.Tenant, "name", ev.Name, "error", err)
			}
		}
	}
}
