package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/datacart_status/internal/storage"
	"github.com/italolelis/datacart_status/internal/storage/memory"
	"github.com/italolelis/datacart_status/internal/telemetry"
)

type plainArea struct {
	slots map[string]string
	err   error
}

func (a *plainArea) Name() string { return "plain" }

func (a *plainArea) GetItem(_ context.Context, key string) (string, bool, error) {
	if a.err != nil {
		return "", false, a.err
	}

	v, ok := a.slots[key]

	return v, ok, nil
}

func (a *plainArea) SetItem(_ context.Context, key, value string) error {
	if a.err != nil {
		return a.err
	}

	a.slots[key] = value

	return nil
}

func (a *plainArea) RemoveItem(_ context.Context, key string) error {
	delete(a.slots, key)

	return a.err
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    storage.Scope
		wantErr bool
	}{
		{in: "", want: storage.ScopeLocal},
		{in: "local", want: storage.ScopeLocal},
		{in: " Session ", want: storage.ScopeSession},
		{in: "SESSION", want: storage.ScopeSession},
		{in: "cookie", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := storage.ParseScope(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscribe_AreaWithoutFeed(t *testing.T) {
	_, err := storage.Subscribe(context.Background(), &plainArea{slots: map[string]string{}})
	assert.ErrorIs(t, err, storage.ErrFeedUnsupported)
}

func TestNewOrigin(t *testing.T) {
	a := storage.NewOrigin()
	b := storage.NewOrigin()

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, strings.Count(a, "-"), 2)
}

func TestInstrumentedArea(t *testing.T) {
	ctx := context.Background()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: false})
	require.NoError(t, err)

	for name, tel := range map[string]*telemetry.Telemetry{"disabled": tel, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			inner := &plainArea{slots: map[string]string{}}
			area := storage.NewInstrumentedArea(inner, tel)

			assert.Equal(t, "plain", area.Name())
			require.NoError(t, area.SetItem(ctx, "k", "v"))

			value, found, err := area.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "v", value)

			require.NoError(t, area.RemoveItem(ctx, "k"))
			assert.Empty(t, inner.slots)

			_, err = area.Subscribe(ctx)
			assert.ErrorIs(t, err, storage.ErrFeedUnsupported)
		})
	}
}

func TestInstrumentedArea_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk full")
	area := storage.NewInstrumentedArea(&plainArea{slots: map[string]string{}, err: cause}, nil)

	_, _, err := area.GetItem(ctx, "k")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, area.SetItem(ctx, "k", "v"), cause)
	assert.ErrorIs(t, area.RemoveItem(ctx, "k"), cause)
}

func TestInstrumentedArea_ForwardsFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	medium := memory.NewMedium("local")
	area := storage.NewInstrumentedArea(medium.Connect("tab-1"), nil)

	events, err := area.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, medium.Connect("tab-2").SetItem(ctx, "cartStatus", "v1"))

	ev := <-events
	assert.Equal(t, "cartStatus", ev.Key)
	assert.Equal(t, "tab-2", ev.Origin)
}
