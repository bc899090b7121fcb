// Package redis implements a storage area on a Redis server. Slots are plain
// string keys and every change is published on a per-area channel, so any
// process connected to the same server can follow the area.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/italolelis/datacart_status/internal/logctx"
	"github.com/italolelis/datacart_status/internal/storage"
)

// DefaultPrefix namespaces keys and channels when no prefix is configured.
const DefaultPrefix = "datacart"

type wireEvent struct {
	Key      string `json:"key"`
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
	Removed  bool   `json:"removed,omitempty"`
	Origin   string `json:"origin"`
}

// Area is one connection to a Redis-backed storage area.
type Area struct {
	client *redis.Client
	prefix string
	name   string
	origin string
}

// NewArea binds the area called name, namespaced by prefix, to origin.
func NewArea(client *redis.Client, prefix, name, origin string) *Area {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Area{
		client: client,
		prefix: prefix,
		name:   name,
		origin: origin,
	}
}

func (a *Area) Name() string {
	return a.name
}

func (a *Area) slotKey(key string) string {
	return fmt.Sprintf("%s:%s:%s", a.prefix, a.name, key)
}

func (a *Area) channel() string {
	return fmt.Sprintf("%s:%s:events", a.prefix, a.name)
}

func (a *Area) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := a.client.Get(ctx, a.slotKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return value, true, nil
}

// SetItem stores value and publishes the change unless value was already stored.
func (a *Area) SetItem(ctx context.Context, key, value string) error {
	old, err := a.client.GetSet(ctx, a.slotKey(key), value).Result()

	existed := true
	if errors.Is(err, redis.Nil) {
		existed = false
	} else if err != nil {
		return err
	}

	if existed && old == value {
		return nil
	}

	return a.publish(ctx, wireEvent{Key: key, OldValue: old, NewValue: value, Origin: a.origin})
}

// RemoveItem deletes the slot and publishes the change unless it was missing.
func (a *Area) RemoveItem(ctx context.Context, key string) error {
	old, err := a.client.GetDel(ctx, a.slotKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}

	if err != nil {
		return err
	}

	return a.publish(ctx, wireEvent{Key: key, OldValue: old, Removed: true, Origin: a.origin})
}

func (a *Area) publish(ctx context.Context, ev wireEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := a.client.Publish(ctx, a.channel(), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	return nil
}

// Subscribe reports changes published by other origins. It returns once the
// server has confirmed the subscription.
func (a *Area) Subscribe(ctx context.Context) (<-chan storage.Event, error) {
	pubsub := a.client.Subscribe(ctx, a.channel())

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()

		return nil, fmt.Errorf("failed to subscribe to %s: %w", a.channel(), err)
	}

	messages := pubsub.Channel()
	out := make(chan storage.Event)

	go func() {
		defer close(out)
		defer pubsub.Close()

		logger := logctx.LoggerFromContext(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var ev wireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("ignoring undecodable change event", "area", a.name, "err", err)

					continue
				}

				if ev.Origin == a.origin {
					continue
				}

				select {
				case <-ctx.Done():
					return
				case out <- storage.Event{
					Area:     a.name,
					Key:      ev.Key,
					OldValue: ev.OldValue,
					NewValue: ev.NewValue,
					Removed:  ev.Removed,
					Origin:   ev.Origin,
				}:
				}
			}
		}
	}()

	return out, nil
}
