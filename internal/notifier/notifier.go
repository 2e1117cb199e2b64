// Package notifier signals running gateway replicas that a tenant's MCP
// configuration changed so they reload it. Grounded on the original
// internal/config.Observer/Notify fan-out (config/mcpservers.go), generalized
// from an in-process-only callback list to three variants: signal, redis,
// api.
package notifier

import "context"

// Op is the kind of change a config event carries.
type Op string

// Recognized ops.
const (
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpDelete   Op = "delete"
	OpActivate Op = "activate"
)

// Event describes a single McpConfig change that replicas must reconcile.
type Event struct {
	Tenant string
	Name   string
	Op     Op
}

// Notifier publishes and subscribes to config-change events across gateway
// replicas. Publish is called by whatever persists the config (the
// management API); Subscribe is called once by cmd/mcp-gateway's
// reconcileOnNotify loop.
type Notifier interface {
	// Publish announces an Event. The redis variant reaches every replica
	// subscribed to the topic, including this one; the signal and api
	// variants deliver only to this process's subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel of events. The channel is closed when ctx
	// is done; for the redis variant also when Close shuts the client down.
	// The signal and api variants' Close does not close it.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// Close releases any resources held by the notifier.
	Close() error
}
