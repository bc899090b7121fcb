// Package memory implements an in-process storage medium. Every connection
// made with Medium.Connect behaves like one browser tab attached to the same
// session storage: writes are visible to all connections immediately and
// change events are delivered to every connection except the writer.
package memory

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/italolelis/datacart_status/internal/storage"
)

// Medium holds the slots shared by all connections.
type Medium struct {
	name string

	mu          sync.Mutex
	slots       map[string]string
	subscribers map[*subscriber]struct{}
}

// NewMedium creates an empty medium. name is reported as the area name of
// every connection.
func NewMedium(name string) *Medium {
	return &Medium{
		name:        name,
		slots:       make(map[string]string),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Connect returns a new connection identified by origin.
func (m *Medium) Connect(origin string) *Area {
	return &Area{medium: m, origin: origin}
}

// Len returns the number of slots.
func (m *Medium) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.slots)
}

// Clear removes every slot. Clearing is not reported to subscribers.
func (m *Medium) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots = make(map[string]string)
}

// publish must be called with m.mu held so events keep write order.
func (m *Medium) publish(ev storage.Event) {
	for sub := range m.subscribers {
		if sub.origin == ev.Origin {
			continue
		}

		sub.push(ev)
	}
}

func (m *Medium) register(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribers[sub] = struct{}{}
}

func (m *Medium) unregister(sub *subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subscribers, sub)
}

// Area is one connection to a Medium.
type Area struct {
	medium *Medium
	origin string
}

func (a *Area) Name() string {
	return a.medium.name
}

// Origin returns the identifier of this connection.
func (a *Area) Origin() string {
	return a.origin
}

func (a *Area) GetItem(_ context.Context, key string) (string, bool, error) {
	a.medium.mu.Lock()
	defer a.medium.mu.Unlock()

	value, ok := a.medium.slots[key]

	return value, ok, nil
}

// SetItem stores value under key. Writing the value already stored is not
// reported as a change.
func (a *Area) SetItem(_ context.Context, key, value string) error {
	a.medium.mu.Lock()
	defer a.medium.mu.Unlock()

	old, existed := a.medium.slots[key]
	if existed && old == value {
		return nil
	}

	a.medium.slots[key] = value
	a.medium.publish(storage.Event{
		Area:     a.medium.name,
		Key:      key,
		OldValue: old,
		NewValue: value,
		Origin:   a.origin,
	})

	return nil
}

// RemoveItem deletes key. Removing a missing key is not reported as a change.
func (a *Area) RemoveItem(_ context.Context, key string) error {
	a.medium.mu.Lock()
	defer a.medium.mu.Unlock()

	old, existed := a.medium.slots[key]
	if !existed {
		return nil
	}

	delete(a.medium.slots, key)
	a.medium.publish(storage.Event{
		Area:     a.medium.name,
		Key:      key,
		OldValue: old,
		Removed:  true,
		Origin:   a.origin,
	})

	return nil
}

// Subscribe delivers changes made by other connections, in write order.
func (a *Area) Subscribe(ctx context.Context) (<-chan storage.Event, error) {
	sub := &subscriber{
		origin: a.origin,
		signal: make(chan struct{}, 1),
	}

	a.medium.register(sub)

	out := make(chan storage.Event)

	go func() {
		defer close(out)
		defer a.medium.unregister(sub)

		for {
			ev, ok := sub.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-sub.signal:
					continue
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
	}()

	return out, nil
}

// subscriber buffers events without bound so a slow reader never blocks writers.
type subscriber struct {
	origin string

	mu     sync.Mutex
	queue  deque.Deque[storage.Event]
	signal chan struct{}
}

func (s *subscriber) push(ev storage.Event) {
	s.mu.Lock()
	s.queue.PushBack(ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) pop() (storage.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 {
		return storage.Event{}, false
	}

	return s.queue.PopFront(), true
}
