package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/datacart_status/internal/storage"
)

const testPollInterval = 10 * time.Millisecond

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "datacart.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestInitDB_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datacart.db")

	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, NewArea(db, "local", "tab-1", 0).SetItem(context.Background(), "cartStatus", "v1"))
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)

	defer db.Close()

	value, found, err := NewArea(db, "local", "tab-2", 0).GetItem(context.Background(), "cartStatus")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v1", value)
}

func TestArea_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	area := NewArea(db, "local", "tab-1", testPollInterval)

	assert.Equal(t, "local", area.Name())

	_, found, err := area.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, area.SetItem(ctx, "cartStatus", "v1"))
	require.NoError(t, area.SetItem(ctx, "cartStatus", "v2"))

	value, found, err := area.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v2", value)

	require.NoError(t, area.RemoveItem(ctx, "cartStatus"))
	require.NoError(t, area.RemoveItem(ctx, "cartStatus"))

	_, found, err = area.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArea_AreasAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	local := NewArea(db, "local", "tab-1", testPollInterval)
	session := NewArea(db, "session", "tab-1", testPollInterval)

	require.NoError(t, local.SetItem(ctx, "cartStatus", "durable"))
	require.NoError(t, session.SetItem(ctx, "cartStatus", "session"))

	value, _, err := local.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	assert.Equal(t, "durable", value)

	value, _, err = session.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	assert.Equal(t, "session", value)
}

func TestArea_SubscribeReportsOtherOrigins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := setupTestDB(t)
	tab1 := NewArea(db, "local", "tab-1", testPollInterval)
	tab2 := NewArea(db, "local", "tab-2", testPollInterval)
	other := NewArea(db, "session", "tab-2", testPollInterval)

	// Changes made before subscribing are not replayed.
	require.NoError(t, tab2.SetItem(ctx, "cartStatus", "before"))

	events, err := tab1.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, tab1.SetItem(ctx, "cartStatus", "mine"))
	require.NoError(t, other.SetItem(ctx, "cartStatus", "elsewhere"))
	require.NoError(t, tab2.SetItem(ctx, "cartStatus", "theirs"))
	require.NoError(t, tab2.SetItem(ctx, "cartStatus", "theirs"))
	require.NoError(t, tab2.RemoveItem(ctx, "cartStatus"))

	var got []storage.Event

	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				got = append(got, ev)
			default:
				return len(got) >= 2
			}
		}
	}, 2*time.Second, testPollInterval)

	require.Len(t, got, 2)
	assert.Equal(t, storage.Event{
		Area:     "local",
		Key:      "cartStatus",
		OldValue: "mine",
		NewValue: "theirs",
		Origin:   "tab-2",
	}, got[0])
	assert.Equal(t, storage.Event{
		Area:     "local",
		Key:      "cartStatus",
		OldValue: "theirs",
		Removed:  true,
		Origin:   "tab-2",
	}, got[1])
}

func TestArea_SubscribeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	db := setupTestDB(t)

	events, err := NewArea(db, "local", "tab-1", testPollInterval).Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, testPollInterval)
}

func TestNewArea_DefaultPollInterval(t *testing.T) {
	area := NewArea(nil, "local", "tab-1", 0)
	assert.Equal(t, defaultPollInterval, area.pollInterval)
}
