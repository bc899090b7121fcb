package storage

import (
	"context"

	"github.com/italolelis/datacart_status/internal/telemetry"
)

// InstrumentedArea wraps an Area with telemetry.
type InstrumentedArea struct {
	area      Area
	telemetry *telemetry.Telemetry
}

// NewInstrumentedArea creates a new instrumented storage area.
func NewInstrumentedArea(area Area, tel *telemetry.Telemetry) *InstrumentedArea {
	return &InstrumentedArea{
		area:      area,
		telemetry: tel,
	}
}

func (a *InstrumentedArea) Name() string {
	return a.area.Name()
}

// GetItem reads a slot with telemetry.
func (a *InstrumentedArea) GetItem(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := a.telemetry.InstrumentStorageOperation(ctx, a.area.Name(), "get_item", func(ctx context.Context) error {
		var err error

		value, found, err = a.area.GetItem(ctx, key)

		return err
	})
	if err != nil {
		return "", false, err
	}

	return value, found, nil
}

// SetItem writes a slot with telemetry.
func (a *InstrumentedArea) SetItem(ctx context.Context, key, value string) error {
	return a.telemetry.InstrumentStorageOperation(ctx, a.area.Name(), "set_item", func(ctx context.Context) error {
		return a.area.SetItem(ctx, key, value)
	})
}

// RemoveItem deletes a slot with telemetry.
func (a *InstrumentedArea) RemoveItem(ctx context.Context, key string) error {
	return a.telemetry.InstrumentStorageOperation(ctx, a.area.Name(), "remove_item", func(ctx context.Context) error {
		return a.area.RemoveItem(ctx, key)
	})
}

// Subscribe forwards to the wrapped area's feed and counts received events.
func (a *InstrumentedArea) Subscribe(ctx context.Context) (<-chan Event, error) {
	var events <-chan Event

	err := a.telemetry.InstrumentStorageOperation(ctx, a.area.Name(), "subscribe", func(ctx context.Context) error {
		var err error

		events, err = Subscribe(ctx, a.area)

		return err
	})
	if err != nil {
		return nil, err
	}

	return events, nil
}
