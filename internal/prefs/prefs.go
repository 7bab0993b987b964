package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"workhours/internal/core"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Preferences is the per-installation settings record.
type Preferences struct {
	DailyTarget        float64    `yaml:"daily_target"`
	Theme              string     `yaml:"theme"`
	ExcludeCurrentWeek bool       `yaml:"exclude_current_week"`
	TimerStartedAt     *time.Time `yaml:"timer_started_at,omitempty"`
}

// Defaults returns the preferences of a fresh install.
func Defaults(target float64) Preferences {
	return Preferences{
		DailyTarget: core.NormalizeTarget(target),
		Theme:       ThemeLight,
	}
}

// Normalize repairs out of range values read from disk.
func (p Preferences) Normalize() Preferences {
	p.DailyTarget = core.NormalizeTarget(p.DailyTarget)
	if p.Theme != ThemeDark {
		p.Theme = ThemeLight
	}
	return p
}

// ToggledTheme returns the other theme.
func (p Preferences) ToggledTheme() string {
	if p.Theme == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

type Store interface {
	Load(ctx context.Context) (Preferences, error)
	Save(ctx context.Context, p Preferences) error
}

// FileStore keeps preferences in a YAML file.
type FileStore struct {
	mu       sync.Mutex
	path     string
	defaults Preferences
}

func NewFileStore(path string, defaults Preferences) *FileStore {
	return &FileStore{path: path, defaults: defaults.Normalize()}
}

// Load returns the defaults when the file does not exist yet. Keys missing
// from the file keep their default value.
func (s *FileStore) Load(_ context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.defaults, nil
	}
	if err != nil {
		return s.defaults, fmt.Errorf("read preferences: %w", err)
	}

	p := s.defaults
	if err := yaml.Unmarshal(b, &p); err != nil {
		return s.defaults, fmt.Errorf("parse preferences %s: %w", s.path, err)
	}
	return p.Normalize(), nil
}

// Save writes to a temporary file and renames it over the old one.
func (s *FileStore) Save(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := yaml.Marshal(p.Normalize())
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in memory only.
type MemoryStore struct {
	mu sync.Mutex
	p  Preferences
}

func NewMemoryStore(p Preferences) *MemoryStore {
	return &MemoryStore{p: p.Normalize()}
}

func (s *MemoryStore) Load(context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p, nil
}

func (s *MemoryStore) Save(_ context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p.Normalize()
	return nil
}
