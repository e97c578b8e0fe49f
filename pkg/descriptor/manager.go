package descriptor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPlatform is returned by Manager.Get for unknown platforms.
var ErrUnknownPlatform = errors.New("no descriptor for platform")

// Parse decodes and validates a descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor YAML: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads a descriptor file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Manager holds descriptors keyed by platform name.
type Manager struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// NewManager creates a manager and loads every descriptor in dir. A missing
// directory is not an error.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{descriptors: make(map[string]*Descriptor)}
	if err := m.LoadDir(dir); err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}
	return m, nil
}

// LoadDir loads all .yaml and .yml files in dir.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read descriptor directory %s: %w", dir, err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		d, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		m.Add(d)
	}
	return nil
}

// Add registers d, replacing any descriptor for the same platform.
func (m *Manager) Add(d *Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptors[d.Platform] = d
}

// Get returns the descriptor for platform.
func (m *Manager) Get(platform string) (*Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.descriptors[platform]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPlatform, platform)
	}
	return d, nil
}

// List returns the known platform names, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.descriptors))
	for name := range m.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
