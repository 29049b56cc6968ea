package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/orderflow/fulfillment/pkg/metrics"
)

// Event is anything that can be published on the bus. Name identifies the
// event kind handlers subscribe to.
type Event interface {
	Name() string
}

// Handler receives an event synchronously from Publish. Handlers that need to
// do slow work must spawn their own goroutine; the bus only guarantees that
// invocation has started by the time Publish returns.
type Handler func(ctx context.Context, evt Event)

// Subscription identifies one registered handler so it can be removed later.
// Func values are not comparable in Go, so deregistration is by token.
type Subscription struct {
	name    string
	handler Handler
}

// Bus is an in-process publish/subscribe hub. Dispatch is synchronous and
// fans out in subscription order. There is no persistence, no replay and no
// cross-process transport.
type Bus struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string][]*Subscription
}

func New(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers h for events with the given name and returns the token
// needed to unsubscribe it.
func (b *Bus) Subscribe(name string, h Handler) *Subscription {
	sub := &Subscription{name: name, handler: h}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a previously registered subscription. Removing a
// subscription twice is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.name]
	for i, s := range list {
		if s == sub {
			b.subs[sub.name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler registered for evt's name, in subscription
// order, then returns. A panicking handler is logged and must not prevent
// dispatch to the handlers after it.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	list := b.subs[evt.Name()]
	snapshot := make([]*Subscription, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(evt.Name()).Inc()

	for _, sub := range snapshot {
		b.invoke(ctx, sub, evt)
	}
}

func (b *Bus) invoke(ctx context.Context, sub *Subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", evt.Name(), "panic", r)
		}
	}()
	sub.handler(ctx, evt)
}
