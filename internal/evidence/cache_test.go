package evidence

import (
	"testing"
	"time"
)

func TestCacheKeepsStateBetweenUpdates(t *testing.T) {
	cache := NewSessionCache(time.Minute)

	cache.Update("s1", func(state *SessionState) {
		state.SampleCount = 7
	})
	var got int
	cache.Update("s1", func(state *SessionState) {
		got = state.SampleCount
	})
	if got != 7 {
		t.Errorf("State not retained, SampleCount = %d, want 7", got)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
}

func TestCacheIsolatesSessions(t *testing.T) {
	cache := NewSessionCache(time.Minute)
	cache.Update("s1", func(state *SessionState) { state.SampleCount = 1 })
	cache.Update("s2", func(state *SessionState) { state.SampleCount = 2 })

	var got int
	cache.Update("s2", func(state *SessionState) { got = state.SampleCount })
	if got != 2 {
		t.Errorf("Cross-session state bleed: got %d", got)
	}
}

func TestCacheExpiredEntryReplaced(t *testing.T) {
	cache := NewSessionCache(10 * time.Millisecond)
	cache.Update("s1", func(state *SessionState) { state.SampleCount = 5 })

	time.Sleep(25 * time.Millisecond)

	var got int
	cache.Update("s1", func(state *SessionState) { got = state.SampleCount })
	if got != 0 {
		t.Errorf("Expired state reused, SampleCount = %d, want 0", got)
	}
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	cache := NewSessionCache(10 * time.Millisecond)
	cache.Update("s1", func(state *SessionState) {})
	cache.Update("s2", func(state *SessionState) {})

	time.Sleep(25 * time.Millisecond)
	cache.sweep()

	if cache.Len() != 0 {
		t.Errorf("Len after sweep = %d, want 0", cache.Len())
	}
}
