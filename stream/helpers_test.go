package stream

import (
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// --- Helper Function Tests ---

func TestGetStringAttr_ExistingString(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("tree#docs"),
	}
	if got := getStringAttr(image, "pk"); got != "tree#docs" {
		t.Errorf("expected 'tree#docs', got %q", got)
	}
}

func TestGetStringAttr_MissingKey(t *testing.T) {
	if got := getStringAttr(map[string]events.DynamoDBAttributeValue{}, "pk"); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestGetStringAttr_NilImage(t *testing.T) {
	if got := getStringAttr(nil, "pk"); got != "" {
		t.Errorf("expected empty string for nil image, got %q", got)
	}
}

func TestGetStringAttr_NumberAttribute(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"version": events.NewNumberAttribute("3"),
	}
	if got := getStringAttr(image, "version"); got != "" {
		t.Errorf("expected empty string for number attribute, got %q", got)
	}
}

func TestGetTimeAttr(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 123456000, time.UTC)
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		want    *time.Time
		wantErr bool
	}{
		{"missing", map[string]events.DynamoDBAttributeValue{}, nil, false},
		{"nil image", nil, nil, false},
		{"null", map[string]events.DynamoDBAttributeValue{"deleted_at": events.NewNullAttribute()}, nil, false},
		{"timestamp", map[string]events.DynamoDBAttributeValue{"deleted_at": events.NewStringAttribute(at.Format(time.RFC3339Nano))}, &at, false},
		{"garbage", map[string]events.DynamoDBAttributeValue{"deleted_at": events.NewStringAttribute("soon")}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getTimeAttr(tt.image, "deleted_at")
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected nil, got %v", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- parseRecord Tests ---

func record(eventName string, oldImage, newImage map[string]events.DynamoDBAttributeValue) *events.DynamoDBEventRecord {
	return &events.DynamoDBEventRecord{
		EventID:   "evt-1",
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			OldImage: oldImage,
			NewImage: newImage,
		},
	}
}

func nodeImage(deletedAt string) map[string]events.DynamoDBAttributeValue {
	img := map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("tree#docs"),
		"sk": events.NewStringAttribute("node#B"),
	}
	if deletedAt != "" {
		img["deleted_at"] = events.NewStringAttribute(deletedAt)
	}
	return img
}

func TestParseRecord_SkipsNonModifyEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
	}{
		{"INSERT", "INSERT"},
		{"REMOVE", "REMOVE"},
		{"Unknown", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := parseRecord(record(tt.eventName, nodeImage(""), nodeImage("2026-01-01T00:00:00Z")))
			if err != nil || ok {
				t.Errorf("expected %s event to be skipped, got ok=%v err=%v", tt.eventName, ok, err)
			}
		})
	}
}

func TestParseRecord_SoftDelete(t *testing.T) {
	c, ok, err := parseRecord(record("MODIFY", nodeImage(""), nodeImage("2026-01-01T00:00:00Z")))
	if err != nil || !ok {
		t.Fatalf("expected a change, got ok=%v err=%v", ok, err)
	}
	if c.scope != "docs" || c.id != "B" || !c.deleted {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestParseRecord_Restore(t *testing.T) {
	c, ok, err := parseRecord(record("MODIFY", nodeImage("2026-01-01T00:00:00.5Z"), nodeImage("")))
	if err != nil || !ok {
		t.Fatalf("expected a change, got ok=%v err=%v", ok, err)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 500000000, time.UTC)
	if c.deleted || !c.since.Equal(want) {
		t.Errorf("expected restore since %v, got %+v", want, c)
	}
}

func TestParseRecord_UsesNewImageWithoutKeys(t *testing.T) {
	r := record("MODIFY", nodeImage(""), nodeImage("2026-01-01T00:00:00Z"))
	r.Change.Keys = nil
	if _, ok, _ := parseRecord(r); !ok {
		t.Error("expected keys to be read from the new image")
	}
}

func TestParseRecord_SkipsMetaItem(t *testing.T) {
	oldImage, newImage := nodeImage(""), nodeImage("2026-01-01T00:00:00Z")
	newImage["sk"] = events.NewStringAttribute("#meta")
	if _, ok, _ := parseRecord(record("MODIFY", oldImage, newImage)); ok {
		t.Error("expected meta item to be skipped")
	}
}

func TestParseRecord_SkipsAttributeOnlyChanges(t *testing.T) {
	if _, ok, _ := parseRecord(record("MODIFY", nodeImage(""), nodeImage(""))); ok {
		t.Error("expected live to live change to be skipped")
	}
	at := "2026-01-01T00:00:00Z"
	if _, ok, _ := parseRecord(record("MODIFY", nodeImage(at), nodeImage(at))); ok {
		t.Error("expected trashed to trashed change to be skipped")
	}
}

func BenchmarkParseRecord(b *testing.B) {
	r := record("MODIFY", nodeImage(""), nodeImage("2026-01-01T00:00:00Z"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = parseRecord(r)
	}
}
