package keystroke

import (
	"testing"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"Literal Space", " ", "Space"},
		{"Space Word", "space", "Space"},
		{"Already Normalized Space", "Space", "Space"},
		{"Uppercase Letter", "A", "a"},
		{"Lowercase Letter", "q", "q"},
		{"Named Key", "Backspace", "backspace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.key); got != tt.expected {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tt.key, got, tt.expected)
			}
			// Normalization must be idempotent.
			if got := NormalizeKey(NormalizeKey(tt.key)); got != tt.expected {
				t.Errorf("NormalizeKey twice = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeSortsByTimestamp(t *testing.T) {
	events := []models.KeystrokeEvent{
		{Key: "b", Timestamp: 200, Type: models.EventKeyDown},
		{Key: "a", Timestamp: 100, Type: models.EventKeyDown},
		{Key: "a", Timestamp: 180, Type: models.EventKeyUp},
		{Key: "b", Timestamp: 290, Type: models.EventKeyUp},
	}

	out := Normalize(events)
	if len(out) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp < out[i-1].Timestamp {
			t.Fatalf("Events not sorted at index %d", i)
		}
	}
	if out[0].Key != "a" {
		t.Errorf("Expected first event to be 'a', got %q", out[0].Key)
	}
}

func TestNormalizeDropsOrphanKeyups(t *testing.T) {
	events := []models.KeystrokeEvent{
		{Key: "x", Timestamp: 50, Type: models.EventKeyUp}, // no matching keydown
		{Key: "a", Timestamp: 100, Type: models.EventKeyDown},
		{Key: "a", Timestamp: 190, Type: models.EventKeyUp},
	}

	out := Normalize(events)
	if len(out) != 2 {
		t.Fatalf("Expected orphan keyup to be dropped, got %d events", len(out))
	}
	if out[0].Key != "a" || out[0].Type != models.EventKeyDown {
		t.Errorf("Unexpected first event: %+v", out[0])
	}
}

func TestNormalizeSkipsUnknownTypes(t *testing.T) {
	events := []models.KeystrokeEvent{
		{Key: "a", Timestamp: 100, Type: "keypress"},
		{Key: "a", Timestamp: 110, Type: models.EventKeyDown},
		{Key: "a", Timestamp: 200, Type: models.EventKeyUp},
	}
	out := Normalize(events)
	if len(out) != 2 {
		t.Fatalf("Expected unknown event type to be skipped, got %d events", len(out))
	}
}
