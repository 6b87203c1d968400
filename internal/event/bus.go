package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"narration-service/internal/logger"
)

type Handler func(ctx context.Context, e Event) error

// Publisher is the side of the bus producers depend on.
type Publisher interface {
	Publish(ctx context.Context, p Payload)
}

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Bus is an in-process fan-out. Handlers run synchronously in the
// publisher's goroutine, in subscription order: exact kind first, then
// group, then catch-all. A failing or panicking handler is logged and
// skipped.
type Bus struct {
	log *logger.Logger
	now func() time.Time

	mu     sync.RWMutex
	nextID uint64
	byKind map[Kind][]subscription
	group  map[Group][]subscription
	all    []subscription
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		log:    log.With("component", "event_bus"),
		now:    func() time.Time { return time.Now().UTC() },
		byKind: map[Kind][]subscription{},
		group:  map[Group][]subscription{},
	}
}

// Subscribe registers h for one event kind and returns an unsubscribe func.
func (b *Bus) Subscribe(k Kind, name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSub(name, h)
	b.byKind[k] = append(b.byKind[k], s)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byKind[k] = without(b.byKind[k], s.id)
	}
}

func (b *Bus) SubscribeGroup(g Group, name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSub(name, h)
	b.group[g] = append(b.group[g], s)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.group[g] = without(b.group[g], s.id)
	}
}

func (b *Bus) SubscribeAll(name string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.newSub(name, h)
	b.all = append(b.all, s)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, s.id)
	}
}

func (b *Bus) newSub(name string, h Handler) subscription {
	b.nextID++
	return subscription{id: b.nextID, name: name, handler: h}
}

func (b *Bus) Publish(ctx context.Context, p Payload) {
	b.Dispatch(ctx, New(p, b.now()))
}

// Dispatch delivers an already built event.
func (b *Bus) Dispatch(ctx context.Context, e Event) {
	k := e.Kind()

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.byKind[k])+len(b.group[k.Group()])+len(b.all))
	targets = append(targets, b.byKind[k]...)
	targets = append(targets, b.group[k.Group()]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, s := range targets {
		if err := b.deliver(ctx, s, e); err != nil {
			b.log.Error("event handler failed",
				"event", string(k),
				"event_id", e.ID.String(),
				"subscriber", s.name,
				"error", err,
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, e)
}

// SubscriberCount is used for observability.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.all)
	for _, subs := range b.byKind {
		n += len(subs)
	}
	for _, subs := range b.group {
		n += len(subs)
	}
	return n
}

func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
