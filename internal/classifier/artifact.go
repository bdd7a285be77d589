package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rawblock/keyprint-engine/internal/keystroke"
)

// Artifact persistence. The on-disk format is opaque to callers: a JSON
// blob carrying the fitted model, the canonical label order and the feature
// schema version. Writes go to a temp file in the same directory followed
// by a rename, so a crashed training run can never leave a torn artifact.

// SaveArtifact atomically writes the artifact to path.
func SaveArtifact(a *Artifact, path string) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads an artifact from disk. A missing file maps to
// ErrModelNotReady; a schema-version mismatch is rejected outright rather
// than misinterpreting slot positions.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrModelNotReady
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.SchemaVersion != keystroke.SchemaVersion {
		return nil, fmt.Errorf("artifact schema version %d does not match current %d",
			a.SchemaVersion, keystroke.SchemaVersion)
	}
	return &a, nil
}
