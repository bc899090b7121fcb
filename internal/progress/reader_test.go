package progress

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/datacart_status/internal/cartstatus"
	"github.com/italolelis/datacart_status/internal/storage/memory"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name    string
		written int64
		total   int64
		want    int
	}{
		{name: "unknown total", written: 10, total: 0, want: 0},
		{name: "negative total", written: 10, total: -1, want: 0},
		{name: "nothing written", written: 0, total: 10, want: 0},
		{name: "rounds down", written: 1, total: 3, want: 33},
		{name: "almost done", written: 999, total: 1000, want: 99},
		{name: "done", written: 1000, total: 1000, want: 100},
		{name: "overrun is clamped", written: 1200, total: 1000, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.written, tt.total))
		})
	}
}

func TestReader_ReportsEachChange(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 10)

	var reported []int

	r := NewReader(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), func(percent int, _ int64, _ int64) {
		reported = append(reported, percent)
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, reported)
}

func TestReader_SkipsUnchangedPercent(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)

	var reported []int

	r := NewReader(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), func(percent int, _ int64, _ int64) {
		reported = append(reported, percent)
	})

	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)

	assert.Len(t, reported, 100)
	assert.Equal(t, 1, reported[0])
	assert.Equal(t, 100, reported[len(reported)-1])
}

func TestReader_UnknownTotalCompletesAtEOF(t *testing.T) {
	var reported []int

	r := NewReader(strings.NewReader("payload"), 0, func(percent int, written int64, _ int64) {
		reported = append(reported, percent)

		if percent == 100 {
			assert.Equal(t, int64(7), written)
		}
	})

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, reported)
}

func TestReader_TruncatedDownloadIsNotComplete(t *testing.T) {
	var reported []int

	r := NewReader(strings.NewReader("half"), 8, func(percent int, _ int64, _ int64) {
		reported = append(reported, percent)
	})

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []int{50}, reported)
}

func TestTracker_Wrap(t *testing.T) {
	ctx := context.Background()
	area := memory.NewMedium("local").Connect("tab-1")

	table := cartstatus.NewStatusTable()
	table.Set("coll/file", cartstatus.StatusItem{ItemID: "file", DisplayName: "file.nc", IsInUse: true})

	store := cartstatus.New("cartStatus", table, area)
	require.NoError(t, store.Save(ctx))

	data := bytes.Repeat([]byte("x"), 4)
	tracker := NewTracker(store, "coll/file")

	reader := tracker.Wrap(ctx, iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)))

	buf := make([]byte, 1)
	_, err := reader.Read(buf)
	require.NoError(t, err)

	item, ok := store.FindStatusByID("coll/file")
	require.True(t, ok)
	assert.Equal(t, 25, item.DownloadPercentage)

	_, err = io.Copy(io.Discard, reader)
	require.NoError(t, err)

	text, found, err := area.GetItem(ctx, "cartStatus")
	require.NoError(t, err)
	require.True(t, found)

	envelope, err := cartstatus.Parse(text)
	require.NoError(t, err)
	assert.Equal(t, cartstatus.ActionSetDownloadComplete, envelope.Action)

	item, _ = envelope.Lookup.Get("coll/file")
	assert.True(t, item.IsCompleted())
}

func TestTracker_UnknownKeyIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := cartstatus.New("cartStatus", nil, memory.NewMedium("local").Connect("tab-1"))

	tracker := NewTracker(store, "coll/missing")
	require.NoError(t, tracker.Update(ctx, 40))
	require.NoError(t, tracker.Update(ctx, 100))

	assert.Equal(t, 0, store.Len())
}
