package cartstatus

import (
	"bytes"
	"encoding/json"
)

// ActionTag records why a status table was committed. It is carried for
// debugging only and never changes how an envelope is decoded.
type ActionTag string

const (
	ActionCreate                ActionTag = "CREATE"
	ActionAddItem               ActionTag = "ADD_ITEM"
	ActionRemoveItem            ActionTag = "REMOVE_ITEM"
	ActionSetDownloadComplete   ActionTag = "SET_DOWNLOAD_COMPLETE"
	ActionSetDownloadPercentage ActionTag = "SET_DOWNLOAD_PERCENTAGE"
	ActionSetInUse              ActionTag = "SET_IN_USE"
)

// Valid reports whether a is one of the known action tags.
func (a ActionTag) Valid() bool {
	switch a {
	case ActionCreate, ActionAddItem, ActionRemoveItem,
		ActionSetDownloadComplete, ActionSetDownloadPercentage, ActionSetInUse:
		return true
	}

	return false
}

// Envelope is the unit committed to a storage slot.
type Envelope struct {
	Action ActionTag    `json:"action"`
	Lookup *StatusTable `json:"datacartStatusLookup"`
}

// Stringify encodes table tagged with action. Equal inputs always produce
// identical text. A nil table is encoded as an empty one.
func Stringify(table *StatusTable, action ActionTag) (string, error) {
	if table == nil {
		table = NewStatusTable()
	}

	data, err := json.Marshal(Envelope{Action: action, Lookup: table})
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Parse decodes text produced by Stringify. Percentages are not range
// checked; whatever was committed is returned as is.
func Parse(text string) (*Envelope, error) {
	var raw struct {
		Action ActionTag       `json:"action"`
		Lookup json.RawMessage `json:"datacartStatusLookup"`
	}

	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, &MalformedEnvelopeError{Reason: "invalid JSON", Err: err}
	}

	lookup := bytes.TrimSpace(raw.Lookup)
	if len(lookup) == 0 || bytes.Equal(lookup, []byte("null")) {
		return nil, &MalformedEnvelopeError{Reason: "missing datacartStatusLookup"}
	}

	table := NewStatusTable()
	if err := table.UnmarshalJSON(lookup); err != nil {
		return nil, &MalformedEnvelopeError{Reason: "invalid datacartStatusLookup", Err: err}
	}

	return &Envelope{Action: raw.Action, Lookup: table}, nil
}
