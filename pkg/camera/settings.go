package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// SettingsVersion is the current version of the settings file format.
const SettingsVersion = 1

// Settings is a persisted feature snapshot.
type Settings struct {
	Version  int            `yaml:"version"`
	SavedAt  time.Time      `yaml:"saved_at"`
	CameraID string         `yaml:"camera_id,omitempty"`
	Features map[string]any `yaml:"features"`
}

// SettingsStore reads and writes settings files.
type SettingsStore struct {
	mu sync.Mutex
}

// Save writes a snapshot to path, creating parent directories.
func (s *SettingsStore) Save(path string, settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	settings.Version = SettingsVersion
	if settings.SavedAt.IsZero() {
		settings.SavedAt = time.Now()
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a snapshot from path.
func (s *SettingsStore) Load(path string) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if settings.Version > SettingsVersion {
		return nil, fmt.Errorf("settings %s: unsupported version %d", path, settings.Version)
	}
	return &settings, nil
}
