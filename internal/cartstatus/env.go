package cartstatus

import (
	"context"

	"github.com/italolelis/datacart_status/internal/storage"
	"github.com/italolelis/datacart_status/internal/telemetry"
)

// Env is what one execution context can reach: a durable area, a session
// area and the telemetry used by the stores it builds.
type Env struct {
	Local     storage.Area
	Session   storage.Area
	Telemetry *telemetry.Telemetry
}

// Option configures which area a store built by Env is bound to.
type Option func(*options)

type options struct {
	area    storage.Area
	areaSet bool
	scope   storage.Scope
}

// WithArea binds the store to area. WithArea(nil) builds an unbound store
// instead of falling back to the durable area.
func WithArea(area storage.Area) Option {
	return func(o *options) {
		o.area = area
		o.areaSet = true
	}
}

// WithScope binds the store to the Env area selected by scope.
func WithScope(scope storage.Scope) Option {
	return func(o *options) {
		o.scope = scope
	}
}

// Area returns the area for scope; anything but ScopeSession selects Local.
func (e *Env) Area(scope storage.Scope) storage.Area {
	if scope == storage.ScopeSession {
		return e.Session
	}

	return e.Local
}

func (e *Env) resolve(opts []Option) storage.Area {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.areaSet {
		return o.area
	}

	return e.Area(o.scope)
}

// New wraps table in a store bound to the durable area unless opts say
// otherwise. Storage is not touched.
func (e *Env) New(name string, table *StatusTable, opts ...Option) *Store {
	s := New(name, table, e.resolve(opts))
	s.telemetry = e.Telemetry

	return s
}

// OpenOrCreate is OpenOrCreate on the area selected by opts.
func (e *Env) OpenOrCreate(ctx context.Context, name string, opts ...Option) (*Store, error) {
	return open(ctx, name, e.resolve(opts), e.Telemetry)
}

// Create is Create on the area selected by opts.
func (e *Env) Create(ctx context.Context, name string, opts ...Option) (*Store, error) {
	return create(ctx, name, e.resolve(opts), e.Telemetry)
}
