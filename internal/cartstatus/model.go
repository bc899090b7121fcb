package cartstatus

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StatusItem is the download status of a single file in a data cart.
type StatusItem struct {
	ItemID             string `json:"itemId"`
	DisplayName        string `json:"displayName"`
	IsInUse            bool   `json:"isInUse"`
	DownloadPercentage int    `json:"downloadPercentage"`
}

// IsCompleted reports whether the item has been fully downloaded.
func (i StatusItem) IsCompleted() bool {
	return i.DownloadPercentage == 100
}

// IsInProgress reports whether the download has started but not finished.
func (i StatusItem) IsInProgress() bool {
	return i.DownloadPercentage > 0 && i.DownloadPercentage < 100
}

// StatusTable maps composite keys (usually "<collection>/<itemId>") to status
// items. Keys keep the order in which they were first inserted, and that
// order is what gets written on the wire. The zero value is an empty table.
type StatusTable struct {
	m *orderedmap.OrderedMap[string, StatusItem]
}

// NewStatusTable returns an empty table.
func NewStatusTable() *StatusTable {
	return &StatusTable{m: orderedmap.New[string, StatusItem]()}
}

func (t *StatusTable) entries() *orderedmap.OrderedMap[string, StatusItem] {
	if t.m == nil {
		t.m = orderedmap.New[string, StatusItem]()
	}

	return t.m
}

// Get returns the item stored under key.
func (t *StatusTable) Get(key string) (StatusItem, bool) {
	if t == nil || t.m == nil {
		return StatusItem{}, false
	}

	return t.m.Get(key)
}

// Set stores item under key. An existing key keeps its position.
func (t *StatusTable) Set(key string, item StatusItem) {
	t.entries().Set(key, item)
}

// Delete removes key and reports whether it was present.
func (t *StatusTable) Delete(key string) bool {
	if t == nil || t.m == nil {
		return false
	}

	_, present := t.m.Delete(key)

	return present
}

// Len returns the number of entries.
func (t *StatusTable) Len() int {
	if t == nil || t.m == nil {
		return 0
	}

	return t.m.Len()
}

// Keys returns the keys in insertion order.
func (t *StatusTable) Keys() []string {
	keys := make([]string, 0, t.Len())

	t.Range(func(key string, _ StatusItem) bool {
		keys = append(keys, key)

		return true
	})

	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (t *StatusTable) Range(fn func(key string, item StatusItem) bool) {
	if t == nil || t.m == nil {
		return
	}

	for pair := t.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Clone returns a deep copy of the table.
func (t *StatusTable) Clone() *StatusTable {
	c := NewStatusTable()

	t.Range(func(key string, item StatusItem) bool {
		c.Set(key, item)

		return true
	})

	return c
}

// Equal reports whether both tables hold the same keys mapped to equal items.
// Key order is not compared; use Stringify when order matters.
func (t *StatusTable) Equal(other *StatusTable) bool {
	if t.Len() != other.Len() {
		return false
	}

	equal := true

	t.Range(func(key string, item StatusItem) bool {
		o, ok := other.Get(key)
		if !ok || o != item {
			equal = false
		}

		return equal
	})

	return equal
}

// MarshalJSON encodes the table as a JSON object in insertion order.
func (t *StatusTable) MarshalJSON() ([]byte, error) {
	return t.entries().MarshalJSON()
}

// UnmarshalJSON replaces the table content with the decoded object, keeping
// the order in which keys appear in data.
func (t *StatusTable) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, StatusItem]()
	if err := m.UnmarshalJSON(data); err != nil {
		return err
	}

	t.m = m

	return nil
}
