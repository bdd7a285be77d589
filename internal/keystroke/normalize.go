package keystroke

import (
	"sort"
	"strings"

	"github.com/rawblock/keyprint-engine/pkg/models"
)

const (
	spaceSentinel = "Space"
	backspaceKey  = "backspace"
)

// NormalizeKey canonicalizes a client-reported key name: a literal space
// becomes the "Space" sentinel, everything else is lower-cased. Named keys
// ("Backspace", "Shift", ...) keep their lower-case spelling. The function
// is idempotent, so re-normalizing stored events is safe.
func NormalizeKey(key string) string {
	if key == " " {
		return spaceSentinel
	}
	lower := strings.ToLower(key)
	if lower == "space" {
		return spaceSentinel
	}
	return lower
}

// Normalize canonicalizes a raw client event stream: keys are normalized,
// events are stably sorted by timestamp, and keyup events whose matching
// keydown was never observed (since the last matching keyup) are dropped.
//
// Out-of-range timestamps are kept as-is; the feature extractor's validity
// window discards any interval they would poison.
func Normalize(events []models.KeystrokeEvent) []models.KeystrokeEvent {
	sorted := make([]models.KeystrokeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	pressed := make(map[string]bool)
	out := make([]models.KeystrokeEvent, 0, len(sorted))
	for _, ev := range sorted {
		ev.Key = NormalizeKey(ev.Key)
		switch ev.Type {
		case models.EventKeyDown:
			pressed[ev.Key] = true
			out = append(out, ev)
		case models.EventKeyUp:
			if !pressed[ev.Key] {
				continue // orphan keyup, silently dropped
			}
			pressed[ev.Key] = false
			out = append(out, ev)
		default:
			// Unknown event types carry no timing information.
			continue
		}
	}
	return out
}
