package collab

import (
	"testing"
	"time"
)

func TestParseFieldAllowList(t *testing.T) {
	allowed := []string{"title", "source_url", "status", "notes", "scheduled_at"}
	for _, name := range allowed {
		if _, ok := ParseField(name); !ok {
			t.Errorf("field %q should be editable", name)
		}
	}
	denied := []string{"admin_secret", "id", "created_at", "", "Title"}
	for _, name := range denied {
		if _, ok := ParseField(name); ok {
			t.Errorf("field %q must not be editable", name)
		}
	}
}

func TestStatusValues(t *testing.T) {
	for _, status := range []string{"planned", "live", "ended", "cancelled"} {
		if _, err := FieldStatus.ParseValue(status); err != nil {
			t.Errorf("status %q should parse: %v", status, err)
		}
	}
	if _, err := FieldStatus.ParseValue("exploded"); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestScheduledAtParsing(t *testing.T) {
	v, err := FieldScheduledAt.ParseValue("2026-09-01T19:30:00Z")
	if err != nil {
		t.Fatalf("RFC3339 value should parse: %v", err)
	}
	ts, ok := v.(*time.Time)
	if !ok || ts == nil || !ts.Equal(time.Date(2026, 9, 1, 19, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed value: %v", v)
	}

	// Empty clears the schedule.
	v, err = FieldScheduledAt.ParseValue("")
	if err != nil {
		t.Fatalf("empty value should parse: %v", err)
	}
	if ts, ok := v.(*time.Time); !ok || ts != nil {
		t.Fatalf("empty value should yield nil time, got %v", v)
	}

	if _, err := FieldScheduledAt.ParseValue("tomorrow-ish"); err == nil {
		t.Fatal("garbage date must be rejected")
	}
}
