package classifier

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager owns the live artifact shared by all concurrent predictions.
// Training publishes a fully constructed replacement and the pointer is
// swapped under the mutex; readers take a snapshot reference inside a brief
// critical section and predict outside it, so an in-flight identify always
// sees a consistent artifact.
type Manager struct {
	mu       sync.Mutex
	artifact *Artifact
	path     string
}

// NewManager creates a manager persisting artifacts at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// LoadFromDisk restores the last published artifact, if any. Called once at
// startup; a missing artifact is not an error, the engine just answers
// "Unknown" until trained.
func (m *Manager) LoadFromDisk() error {
	artifact, err := LoadArtifact(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.artifact = artifact
	m.mu.Unlock()
	log.Info().Int("labels", len(artifact.Labels)).Str("algorithm", string(artifact.Algorithm)).
		Msg("restored model artifact from disk")
	return nil
}

// Current returns a snapshot of the live artifact, or ErrModelNotReady.
func (m *Manager) Current() (*Artifact, error) {
	m.mu.Lock()
	artifact := m.artifact
	m.mu.Unlock()
	if artifact == nil {
		return nil, ErrModelNotReady
	}
	return artifact, nil
}

// Ready reports whether a live artifact exists.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifact != nil
}

// Publish persists the artifact atomically and swaps it live. If the disk
// write fails, the previous artifact stays live.
func (m *Manager) Publish(a *Artifact) error {
	if err := SaveArtifact(a, m.path); err != nil {
		return err
	}
	m.mu.Lock()
	m.artifact = a
	m.mu.Unlock()
	return nil
}

// Path returns the configured artifact location.
func (m *Manager) Path() string { return m.path }
