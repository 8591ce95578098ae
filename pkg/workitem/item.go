package workitem

import (
	"encoding/json"

	witerrors "thoreinstein.com/wit/pkg/errors"
)

// Shape tags which representation an Item carries.
type Shape int

const (
	// ShapeNormalized items carry a Record.
	ShapeNormalized Shape = iota + 1
	// ShapeRaw items carry the API payload untouched.
	ShapeRaw
)

func (s Shape) String() string {
	switch s {
	case ShapeNormalized:
		return "normalized"
	case ShapeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Item is a work item in either shape. The shape is fixed when the item
// enters the system and consumers switch on it.
type Item struct {
	Shape  Shape
	Record *Record
	Raw    *RawWorkItem
}

// FromRecord wraps a normalized record.
func FromRecord(r Record) Item {
	return Item{Shape: ShapeNormalized, Record: &r}
}

// FromRaw wraps an API payload.
func FromRaw(r RawWorkItem) Item {
	return Item{Shape: ShapeRaw, Raw: &r}
}

// FromRecords wraps each record.
func FromRecords(records []Record) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, FromRecord(r))
	}
	return items
}

// Ingest decodes one externally supplied item. Objects carrying a "fields"
// bag are API payloads; anything else is read as a Record.
func Ingest(data []byte) (Item, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Item{}, witerrors.Wrap(err, "work item is not a JSON object")
	}

	if _, ok := probe["fields"]; ok {
		var raw RawWorkItem
		if err := json.Unmarshal(data, &raw); err != nil {
			return Item{}, witerrors.Wrap(err, "decode raw work item")
		}
		return FromRaw(raw), nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Item{}, witerrors.Wrap(err, "decode work item record")
	}
	return FromRecord(rec), nil
}

// IngestAll decodes a list of externally supplied items.
func IngestAll(values []json.RawMessage) ([]Item, error) {
	items := make([]Item, 0, len(values))
	for i, v := range values {
		item, err := Ingest(v)
		if err != nil {
			return nil, witerrors.Wrapf(err, "item %d", i)
		}
		items = append(items, item)
	}
	return items, nil
}

// ID returns the item identifier regardless of shape.
func (it Item) ID() int {
	switch it.Shape {
	case ShapeNormalized:
		return it.Record.ID
	case ShapeRaw:
		return it.Raw.ID
	default:
		return 0
	}
}
