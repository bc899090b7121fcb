package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrFeedUnsupported is returned when subscribing to an area that cannot
// report changes.
var ErrFeedUnsupported = errors.New("storage area does not provide a change feed")

// Scope selects one of the two storage areas available to an execution context.
type Scope string

const (
	// ScopeLocal is the durable area that survives across sessions.
	ScopeLocal Scope = "local"
	// ScopeSession is the area scoped to the current session.
	ScopeSession Scope = "session"
)

// ParseScope converts s into a Scope. An empty string selects ScopeLocal.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ScopeLocal):
		return ScopeLocal, nil
	case string(ScopeSession):
		return ScopeSession, nil
	}

	return "", fmt.Errorf("invalid storage scope: %s", s)
}

// Event describes a change to one slot of a storage area.
type Event struct {
	Area     string
	Key      string
	OldValue string
	NewValue string
	Removed  bool
	Origin   string // Origin of the connection that made the change
}

// Area is a string key/value store shared by every execution context
// connected to the same medium. Each Area value is one such connection.
type Area interface {
	Name() string
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Feed delivers changes made through other connections to the same area.
// Changes made through the subscribing connection itself are never
// delivered. The returned channel is closed once ctx is done.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Subscribe subscribes to area when it provides a change feed.
func Subscribe(ctx context.Context, area Area) (<-chan Event, error) {
	feed, ok := area.(Feed)
	if !ok {
		return nil, ErrFeedUnsupported
	}

	return feed.Subscribe(ctx)
}
