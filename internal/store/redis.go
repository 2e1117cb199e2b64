package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/kagenti/mcp-gateway/internal/gwerrors"
)

// DefaultMetaTTL bounds how long a session's metadata survives in Redis
// without being refreshed; it is refreshed on every Register (and is not
// currently refreshed on each Send - failure-mode notes only
// require surviving replica restarts, not indefinite idle sessions, and idle
// sessions are reaped by the gateway's own idle-timeout sweep anyway).
const DefaultMetaTTL = 10 * time.Minute

// record is what travels over the cross-replica pub/sub topic.
type record struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Data      []byte `json:"data"`
}

// RedisStore is the Redis-backed session store of Metadata is
// stored as a hash under {prefix}:meta:{session_id} with a TTL; a set
// {prefix}:sessions tracks all live IDs; a single pub/sub topic
// {prefix}:{topic} carries {session_id, event, data} records so a producer
// on one replica can deliver to a consumer's local channel on another.
// Grounded on the existing internal/session/cache.go Redis branch
// (functional-options constructor, redis.Client field), generalized from a
// flat hash-of-strings session map to the queue+fanout shape // requires.
type RedisStore struct {
	client      *redis.Client
	topicSuffix string
	ttl         time.Duration
	logger      *slog.Logger
	capacity    int

	mu   sync.RWMutex
	local map[string]*localChan
	subs  map[string]context.CancelFunc

	wg sync.WaitGroup
}

type localChan struct {
	prefix string
	ch     chan Message
	closed bool
}

// NewRedisStore connects to Redis using a "redis://" connection string
// (Redis URL env var). topicSuffix defaults to "events" and
// ttl to DefaultMetaTTL when empty/zero.
func NewRedisStore(ctx context.Context, connectionString, topicSuffix string, ttl time.Duration, capacity int, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if topicSuffix == "" {
		topicSuffix = "events"
	}
	if ttl <= 0 {
		ttl = DefaultMetaTTL
	}
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &RedisStore{
		client:      client,
		topicSuffix: topicSuffix,
		ttl:         ttl,
		logger:      logger,
		capacity:    capacity,
		local:       make(map[string]*localChan),
		subs:        make(map[string]context.CancelFunc),
	}, nil
}

func (s *RedisStore) metaKey(prefix, id string) string    { return fmt.Sprintf("%s:meta:%s", prefix, id) }
func (s *RedisStore) sessionsKey(prefix string) string    { return fmt.Sprintf("%s:sessions", prefix) }
func (s *RedisStore) topicKey(prefix string) string       { return fmt.Sprintf("%s:%s", prefix, s.topicSuffix) }
func (s *RedisStore) prefixIndexKey(id string) string     { return "session-prefix:" + id }

// Register persists the session's metadata, opens a local channel to
// receive on, and ensures this replica is subscribed to the session's
// router-prefix topic.
func (s *RedisStore) Register(ctx context.Context, meta Meta) (Connection, error) {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.metaKey(meta.Prefix, meta.ID), map[string]any{
		"prefix":     meta.Prefix,
		"type":       string(meta.Type),
		"created_at": meta.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, s.metaKey(meta.Prefix, meta.ID), s.ttl)
	pipe.SAdd(ctx, s.sessionsKey(meta.Prefix), meta.ID)
	pipe.Set(ctx, s.prefixIndexKey(meta.ID), meta.Prefix, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, gwerrors.NewStoreError(fmt.Sprintf("register session %s", meta.ID), err)
	}

	lc := &localChan{prefix: meta.Prefix, ch: make(chan Message, s.capacity)}
	s.mu.Lock()
	s.local[meta.ID] = lc
	s.mu.Unlock()

	s.ensureSubscribed(meta.Prefix)

	return &redisConnection{store: s, id: meta.ID, prefix: meta.Prefix, local: lc}, nil
}

// Get returns the Connection for an existing session id: the local
// connection if this replica holds it, otherwise a synthetic remote handle
// whose Send publishes to the cross-replica topic.
func (s *RedisStore) Get(ctx context.Context, id string) (Connection, error) {
	s.mu.RLock()
	lc, ok := s.local[id]
	s.mu.RUnlock()
	if ok {
		return &redisConnection{store: s, id: id, prefix: lc.prefix, local: lc}, nil
	}

	prefix, err := s.client.Get(ctx, s.prefixIndexKey(id)).Result()
	if err == redis.Nil {
		return nil, &ErrSessionNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("look up session %s: %w", id, err)
	}
	exists, err := s.client.Exists(ctx, s.metaKey(prefix, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("look up session %s: %w", id, err)
	}
	if exists == 0 {
		return nil, &ErrSessionNotFound{ID: id}
	}
	return &redisConnection{store: s, id: id, prefix: prefix}, nil
}

// GetMeta returns the registration metadata for an existing session id,
// reading it from the shared {prefix}:meta:{id} hash rather than this
// replica's local map, so it resolves correctly for a session registered on
// a different replica. The hash holds only prefix, type and created_at:
// Register does not store the Request snapshot in Redis, so the returned
// Meta's Request is always empty.
func (s *RedisStore) GetMeta(ctx context.Context, id string) (Meta, error) {
	prefix, err := s.resolvePrefix(ctx, id)
	if err != nil {
		return Meta{}, err
	}
	vals, err := s.client.HGetAll(ctx, s.metaKey(prefix, id)).Result()
	if err != nil {
		return Meta{}, fmt.Errorf("look up session %s metadata: %w", id, err)
	}
	if len(vals) == 0 {
		return Meta{}, &ErrSessionNotFound{ID: id}
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	return Meta{
		ID:        id,
		Prefix:    vals["prefix"],
		Type:      SessionType(vals["type"]),
		CreatedAt: createdAt,
	}, nil
}

// Unregister deletes the session's metadata, removes it from the live set,
// and publishes a close sentinel so any replica holding a local channel for
// it (including this one) tears that channel down. Unregistering an unknown
// session is a no-op.
func (s *RedisStore) Unregister(ctx context.Context, id string) error {
	prefix, err := s.resolvePrefix(ctx, id)
	if err != nil {
		if _, ok := err.(*ErrSessionNotFound); ok {
			return nil
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.metaKey(prefix, id))
	pipe.SRem(ctx, s.sessionsKey(prefix), id)
	pipe.Del(ctx, s.prefixIndexKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister session %s: %w", id, err)
	}

	payload, _ := json.Marshal(record{SessionID: id, Event: closeSentinelEvent})
	if err := s.client.Publish(ctx, s.topicKey(prefix), payload).Err(); err != nil {
		s.logger.Warn("failed to publish close sentinel", "session_id", id, "error", err)
	}
	return nil
}

func (s *RedisStore) resolvePrefix(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	lc, ok := s.local[id]
	s.mu.RUnlock()
	if ok {
		return lc.prefix, nil
	}
	prefix, err := s.client.Get(ctx, s.prefixIndexKey(id)).Result()
	if err == redis.Nil {
		return "", &ErrSessionNotFound{ID: id}
	}
	if err != nil {
		return "", err
	}
	return prefix, nil
}

// List returns metadata for sessions registered locally on this replica.
// Cross-replica enumeration is not required by any client-facing operation; the
// per-prefix {prefix}:sessions set is available for operators who need the
// global view directly via redis-cli.
func (s *RedisStore) List(_ context.Context) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meta, 0, len(s.local))
	for id, lc := range s.local {
		out = append(out, Meta{ID: id, Prefix: lc.prefix})
	}
	return out, nil
}

// Close stops all subscription goroutines and closes the Redis client.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	for _, cancel := range s.subs {
		cancel()
	}
	s.subs = map[string]context.CancelFunc{}
	s.mu.Unlock()
	s.wg.Wait()
	return s.client.Close()
}

func (s *RedisStore) ensureSubscribed(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[prefix]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.subs[prefix] = cancel
	s.wg.Add(1)
	go s.subscribeLoop(ctx, prefix)
}

func (s *RedisStore) subscribeLoop(ctx context.Context, prefix string) {
	defer s.wg.Done()
	pubsub := s.client.Subscribe(ctx, s.topicKey(prefix))
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *RedisStore) dispatch(payload string) {
	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.Warn("dropping malformed pub/sub payload", "error", err)
		return
	}

	s.mu.Lock()
	lc, ok := s.local[rec.SessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	if rec.Event == closeSentinelEvent {
		s.mu.Lock()
		delete(s.local, rec.SessionID)
		s.mu.Unlock()
		if !lc.closed {
			lc.closed = true
			close(lc.ch)
		}
		return
	}

	lc.ch <- Message{Event: rec.Event, Data: rec.Data}
}

// redisConnection is the Connection handle returned by Register/Get. Send
// always publishes to the cross-replica topic, matching :
// "Producers publish to the topic; they do not require local knowledge of
// where the consumer lives." Receive is only valid on the replica holding
// the local channel (the one that called Register, or Get on that same
// replica).
type redisConnection struct {
	store  *RedisStore
	id     string
	prefix string
	local  *localChan // nil for a remote handle
}

func (c *redisConnection) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(record{SessionID: c.id, Event: msg.Event, Data: msg.Data})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.store.client.Publish(ctx, c.store.topicKey(c.prefix), payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (c *redisConnection) Receive(_ context.Context) (<-chan Message, error) {
	if c.local == nil {
		return nil, fmt.Errorf("session %s: receive is only available on the replica holding its local connection", c.id)
	}
	return c.local.ch, nil
}

func (c *redisConnection) Close() error {
	if c.local == nil {
		return nil
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if !c.local.closed {
		c.local.closed = true
		close(c.local.ch)
	}
	delete(c.store.local, c.id)
	return nil
}

var _ Store = (*RedisStore)(nil)
