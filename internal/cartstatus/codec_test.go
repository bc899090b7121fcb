package cartstatus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeTable() *StatusTable {
	table := NewStatusTable()
	table.Set("fakecoll/item-2", StatusItem{ItemID: "item-2", DisplayName: "Second", IsInUse: true, DownloadPercentage: 40})
	table.Set("fakecoll/item-1", StatusItem{ItemID: "item-1", DisplayName: "First", DownloadPercentage: 100})

	return table
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name   string
		table  *StatusTable
		action ActionTag
		want   string
	}{
		{
			name:   "empty table",
			table:  NewStatusTable(),
			action: ActionCreate,
			want:   `{"action":"CREATE","datacartStatusLookup":{}}`,
		},
		{
			name:   "nil table",
			table:  nil,
			action: ActionCreate,
			want:   `{"action":"CREATE","datacartStatusLookup":{}}`,
		},
		{
			name:   "zero value table",
			table:  &StatusTable{},
			action: ActionRemoveItem,
			want:   `{"action":"REMOVE_ITEM","datacartStatusLookup":{}}`,
		},
		{
			name:   "keys in insertion order",
			table:  fakeTable(),
			action: ActionAddItem,
			want: `{"action":"ADD_ITEM","datacartStatusLookup":{` +
				`"fakecoll/item-2":{"itemId":"item-2","displayName":"Second","isInUse":true,"downloadPercentage":40},` +
				`"fakecoll/item-1":{"itemId":"item-1","displayName":"First","isInUse":false,"downloadPercentage":100}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.table, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringify_Deterministic(t *testing.T) {
	first, err := Stringify(fakeTable(), ActionSetInUse)
	require.NoError(t, err)

	second, err := Stringify(fakeTable(), ActionSetInUse)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParse_RoundTrip(t *testing.T) {
	for _, table := range []*StatusTable{NewStatusTable(), fakeTable()} {
		for _, action := range []ActionTag{ActionCreate, ActionSetDownloadComplete, ActionSetDownloadPercentage} {
			text, err := Stringify(table, action)
			require.NoError(t, err)

			envelope, err := Parse(text)
			require.NoError(t, err)

			assert.Equal(t, action, envelope.Action)
			assert.True(t, table.Equal(envelope.Lookup), "decoded table differs for %s", text)
			assert.Equal(t, table.Keys(), envelope.Lookup.Keys())
		}
	}
}

func TestParse_OutOfRangePercentagePassesThrough(t *testing.T) {
	text := `{"action":"SET_DOWNLOAD_PERCENTAGE","datacartStatusLookup":{"c/a":{"itemId":"a","displayName":"A","isInUse":false,"downloadPercentage":150}}}`

	envelope, err := Parse(text)
	require.NoError(t, err)

	item, ok := envelope.Lookup.Get("c/a")
	require.True(t, ok)
	assert.Equal(t, 150, item.DownloadPercentage)
}

func TestParse_UnknownActionIsKept(t *testing.T) {
	envelope, err := Parse(`{"action":"SOMETHING_NEW","datacartStatusLookup":{}}`)
	require.NoError(t, err)

	assert.Equal(t, ActionTag("SOMETHING_NEW"), envelope.Action)
	assert.False(t, envelope.Action.Valid())
	assert.Equal(t, 0, envelope.Lookup.Len())
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "not json", text: "cartStatus"},
		{name: "truncated", text: `{"action":"CREATE","datacartStatusLookup":{`},
		{name: "missing lookup", text: `{"action":"CREATE"}`},
		{name: "null lookup", text: `{"action":"CREATE","datacartStatusLookup":null}`},
		{name: "array lookup", text: `{"action":"CREATE","datacartStatusLookup":[1,2]}`},
		{name: "string item", text: `{"action":"CREATE","datacartStatusLookup":{"c/a":"oops"}}`},
		{name: "wrong field type", text: `{"action":"CREATE","datacartStatusLookup":{"c/a":{"downloadPercentage":"ten"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, envelope)
			assert.True(t, errors.Is(err, ErrMalformedEnvelope))

			var malformed *MalformedEnvelopeError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestActionTag_Valid(t *testing.T) {
	for _, action := range []ActionTag{
		ActionCreate, ActionAddItem, ActionRemoveItem,
		ActionSetDownloadComplete, ActionSetDownloadPercentage, ActionSetInUse,
	} {
		assert.True(t, action.Valid(), string(action))
	}

	assert.False(t, ActionTag("").Valid())
	assert.False(t, ActionTag("create").Valid())
}
