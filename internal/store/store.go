// Package store implements the session store of : a pluggable
// in-memory / Redis-backed message queue per session, with cross-replica
// fan-out so an HTTP POST landing on one gateway replica can push events
// into an SSE stream held open on another. Grounded on the existing code's
// internal/session/cache.go, which selects between an in-memory sync.Map and
// a redis.Client behind one constructor - the same dual-implementation shape
// generalized here from a flat string map to an ordered Message queue.
package store

import (
	"context"
	"time"
)

// SessionType is the client transport a session was created for.
type SessionType string

// Recognized session types.
const (
	SessionTypeSSE        SessionType = "sse"
	SessionTypeStreamable SessionType = "streamable"
)

// RequestSnapshot captures the parts of the initiating HTTP request tools
// may reference in DSL templates, frozen for the session's lifetime.
type RequestSnapshot struct {
	Headers map[string]string
	Queries map[string]string
	Cookies map[string]string
}

// Meta is a session's registration metadata.
type Meta struct {
	ID        string
	Prefix    string
	Type      SessionType
	CreatedAt time.Time
	Request   RequestSnapshot
}

// Message is one event delivered to a client: an SSE frame's event name and
// data payload.
type Message struct {
	Event string
	Data  []byte
}

// closeSentinelEvent is the event name used internally to signal that a
// session's producer side has been torn down; RedisStore's pub/sub dispatch
// treats it as end-of-stream (closing the session's local channel) rather
// than delivering it to the client.
const closeSentinelEvent = "__close__"

// ErrClosed is returned by MemoryStore connections' Send once the connection
// has been closed or unregistered.
// Callers compare with errors.Is.
type closedError struct{}

func (closedError) Error() string { return "session store: connection closed" }

// ErrClosed is the sentinel returned once a connection has been unregistered.
var ErrClosed error = closedError{}

// Connection is the per-session handle returned by Register/Get. Send is the
// producer side (the /message POST handler, or a remote replica relaying
// over pub/sub); Receive is the consumer side (the SSE writer loop).
type Connection interface {
	// Send enqueues a message for delivery to the client. It blocks if the
	// session's channel is at capacity, which is the backpressure mechanism
	// requires: a slow client propagates pressure into whatever
	// called Send.
	Send(ctx context.Context, msg Message) error

	// Receive returns a channel yielding messages in send order until the
	// session is closed, at which point the channel is closed.
	Receive(ctx context.Context) (<-chan Message, error)

	// Close tears down the local side of the connection. It does not
	// unregister the session from the store.
	Close() error
}

// Store registers and routes messages for active sessions.
type Store interface {
	// Register creates a new session with the given metadata and returns its
	// Connection. Fails with a StoreError-class error if the backing store
	// (Redis) is unreachable.
	Register(ctx context.Context, meta Meta) (Connection, error)

	// Get returns the Connection for an existing session id. For the Redis
	// store this may be a synthetic remote handle whose Send publishes to
	// the cross-replica topic rather than delivering locally.
	Get(ctx context.Context, id string) (Connection, error)

	// GetMeta returns the registration metadata for an existing session id.
	// Unlike List, this is cross-replica for the Redis store: it resolves
	// the session's prefix and metadata from the backing store even when
	// the session was registered on a different replica.
	GetMeta(ctx context.Context, id string) (Meta, error)

	// Unregister removes a session. It is a no-op, not an error, if the
	// session id is unknown.
	Unregister(ctx context.Context, id string) error

	// List returns metadata for every session currently tracked by this
	// store (used for the gateway's active-session gauges and diagnostics).
	List(ctx context.Context) ([]Meta, error)

	// Close releases any resources (Redis client, subscriptions) held by the
	// store.
	Close() error
}

// ErrSessionNotFound is returned by Get/Unregister-adjacent lookups when a
// session id isn't known to this store. Gateway handlers translate this to
// HTTP 404 / ClientError boundary properties.
type ErrSessionNotFound struct{ ID string }

func (e *ErrSessionNotFound) Error() string { return "session not found: " + e.ID }
