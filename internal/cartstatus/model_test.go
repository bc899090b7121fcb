package cartstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusItem_Progress(t *testing.T) {
	tests := []struct {
		percentage int
		completed  bool
		inProgress bool
	}{
		{percentage: 0},
		{percentage: 1, inProgress: true},
		{percentage: 99, inProgress: true},
		{percentage: 100, completed: true},
	}

	for _, tt := range tests {
		item := StatusItem{DownloadPercentage: tt.percentage}
		assert.Equal(t, tt.completed, item.IsCompleted(), "IsCompleted(%d)", tt.percentage)
		assert.Equal(t, tt.inProgress, item.IsInProgress(), "IsInProgress(%d)", tt.percentage)
	}
}

func TestStatusTable_ZeroValue(t *testing.T) {
	var table StatusTable

	_, ok := table.Get("missing")
	assert.False(t, ok)
	assert.False(t, table.Delete("missing"))
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Keys())

	table.Set("c/a", StatusItem{ItemID: "a"})
	assert.Equal(t, 1, table.Len())
}

func TestStatusTable_OrderAndOverwrite(t *testing.T) {
	table := NewStatusTable()
	table.Set("c/b", StatusItem{ItemID: "b"})
	table.Set("c/a", StatusItem{ItemID: "a"})
	table.Set("c/b", StatusItem{ItemID: "b", DownloadPercentage: 20})

	assert.Equal(t, []string{"c/b", "c/a"}, table.Keys())

	item, ok := table.Get("c/b")
	assert.True(t, ok)
	assert.Equal(t, 20, item.DownloadPercentage)

	assert.True(t, table.Delete("c/b"))
	assert.Equal(t, []string{"c/a"}, table.Keys())
}

func TestStatusTable_CloneIsIndependent(t *testing.T) {
	table := fakeTable()
	clone := table.Clone()

	assert.True(t, table.Equal(clone))

	clone.Set("c/new", StatusItem{ItemID: "new"})
	assert.False(t, table.Equal(clone))
	assert.Equal(t, 2, table.Len())
}

func TestStatusTable_Equal(t *testing.T) {
	a := NewStatusTable()
	a.Set("x", StatusItem{ItemID: "x"})
	a.Set("y", StatusItem{ItemID: "y"})

	b := NewStatusTable()
	b.Set("y", StatusItem{ItemID: "y"})
	b.Set("x", StatusItem{ItemID: "x"})

	assert.True(t, a.Equal(b), "order must not matter")

	b.Set("x", StatusItem{ItemID: "x", IsInUse: true})
	assert.False(t, a.Equal(b))

	assert.True(t, NewStatusTable().Equal(&StatusTable{}))
}
