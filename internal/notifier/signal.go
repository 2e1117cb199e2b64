package notifier

import (
	"context"
	"sync"
)

// SignalNotifier is the single-replica variant: Publish fans an event out to
// every subscriber channel in-process. Grounded on the existing code's
// MCPServersConfig.Notify, which loops registered Observers and calls each in
// its own goroutine; here the callback is replaced by a channel send so
// Subscribe can be a plain range loop like the Redis variant's consumer.
type SignalNotifier struct {
	mu   sync.Mutex
	subs []chan Event
}

// NewSignalNotifier returns a ready-to-use in-process notifier.
func NewSignalNotifier() *SignalNotifier {
	return &SignalNotifier{}
}

// Publish delivers ev to every current subscriber. Sends are non-blocking
// per subscriber: a subscriber that falls behind drops events rather than
// stalling the publisher, since a missed notification only delays a reload
// the next successful notification will also trigger.
func (n *SignalNotifier) Publish(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new channel and removes it once ctx is done.
func (n *SignalNotifier) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, c := range n.subs {
			if c == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Close is a no-op for the signal variant; subscribers are torn down by
// their own context instead.
func (n *SignalNotifier) Close() error { return nil }

var _ Notifier = (*SignalNotifier)(nil)
