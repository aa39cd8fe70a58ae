package collab

import (
	"fmt"
	"time"
)

// Field is the closed set of stream columns editable over the realtime
// channel. Anything outside this enum is rejected before any store or
// persistence call; this is the mass-assignment guard.
type Field string

const (
	FieldTitle       Field = "title"
	FieldSourceURL   Field = "source_url"
	FieldStatus      Field = "status"
	FieldNotes       Field = "notes"
	FieldScheduledAt Field = "scheduled_at"
)

type fieldSpec struct {
	column string
	parse  func(raw string) (any, error)
}

var editableFields = map[Field]fieldSpec{
	FieldTitle:     {column: "title", parse: parseText},
	FieldSourceURL: {column: "source_url", parse: parseText},
	FieldStatus:    {column: "status", parse: parseStatus},
	FieldNotes:     {column: "notes", parse: parseText},
	FieldScheduledAt: {column: "scheduled_at", parse: func(raw string) (any, error) {
		if raw == "" {
			return (*time.Time)(nil), nil
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("scheduled_at must be RFC3339: %w", err)
		}
		return &t, nil
	}},
}

var streamStatuses = map[string]struct{}{
	"planned":   {},
	"live":      {},
	"ended":     {},
	"cancelled": {},
}

func parseText(raw string) (any, error) { return raw, nil }

func parseStatus(raw string) (any, error) {
	if _, ok := streamStatuses[raw]; !ok {
		return nil, fmt.Errorf("unknown status %q", raw)
	}
	return raw, nil
}

// ParseField maps an inbound field name onto the enum.
func ParseField(name string) (Field, bool) {
	f := Field(name)
	_, ok := editableFields[f]
	return f, ok
}

func (f Field) String() string { return string(f) }

// Column is the database column the field writes through.
func (f Field) Column() string { return editableFields[f].column }

// ParseValue converts the raw wire value into the typed column value.
func (f Field) ParseValue(raw string) (any, error) {
	return editableFields[f].parse(raw)
}
