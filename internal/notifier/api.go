package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// APINotifier is the push variant: the management API calls Publish (or, for
// remote replicas, POSTs directly to each replica's Handler) and this
// replica's in-process subscribers receive it over a channel. Grounded on
// ConfigUpdateHandler (internal/broker/config_handler.go): same bearer-token
// check, same JSON response shape, generalized from decoding a whole
// MCPServersConfig body to decoding one Event.
type APINotifier struct {
	authToken string
	logger    *slog.Logger
	signal    *SignalNotifier
}

// NewAPINotifier returns an APINotifier; authToken, when non-empty, is
// required as a "Bearer <token>" Authorization header on Handler requests.
func NewAPINotifier(authToken string, logger *slog.Logger) *APINotifier {
	return &APINotifier{authToken: authToken, logger: logger, signal: NewSignalNotifier()}
}

// Publish delivers ev to this replica's local subscribers. A multi-replica
// deployment using this variant relies on the management API to call
// Handler on every other replica directly; Publish only covers the replica
// it's called on.
func (n *APINotifier) Publish(ctx context.Context, ev Event) error {
	return n.signal.Publish(ctx, ev)
}

// Subscribe mirrors SignalNotifier.Subscribe.
func (n *APINotifier) Subscribe(ctx context.Context) (<-chan Event, error) {
	return n.signal.Subscribe(ctx)
}

// Close is a no-op; this replica's HTTP server owns the listener lifecycle.
func (n *APINotifier) Close() error { return nil }

// Handler returns the POST handler to mount at the notification endpoint
// (e.g. "POST /internal/notify") on the gateway's own mux.
func (n *APINotifier) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n.authToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+n.authToken {
				n.logger.Warn("unauthorized notify attempt")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			n.logger.Error("failed to decode notify event", "error", err)
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		defer func() { _ = r.Body.Close() }()

		if err := n.signal.Publish(r.Context(), ev); err != nil {
			http.Error(w, "Failed to publish event", http.StatusInternalServerError)
			return
		}

		n.logger.Info("config event received via API", "tenant", ev.Tenant, "name", ev.Name, "op", ev.Op)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": fmt.Sprintf("event for %s/%s delivered", ev.Tenant, ev.Name),
		})
	}
}

var _ Notifier = (*APINotifier)(nil)
