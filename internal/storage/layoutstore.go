package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LayoutStore persists ordered field-key lists under keys built by
// core.LayoutKey.
type LayoutStore interface {
	// Get returns the stored keys and whether a value exists.
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, fields []string) error
	Reset(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// LayoutFile is the top-level structure of layouts.yaml.
type LayoutFile struct {
	Version string              `yaml:"version"`
	Layouts map[string][]string `yaml:"layouts"`
}

type fileLayoutStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileLayoutStore creates a LayoutStore backed by layouts.yaml in basePath.
// Writes hold an exclusive lock on layouts.yaml.lock so a CLI command and a
// running TUI do not drop each other's changes.
func NewFileLayoutStore(basePath string) LayoutStore {
	return &fileLayoutStore{basePath: basePath}
}

func (s *fileLayoutStore) filePath() string {
	return filepath.Join(s.basePath, "layouts.yaml")
}

// update runs fn on the current file contents under the cross-process lock
// and saves the result when fn reports a change.
func (s *fileLayoutStore) update(fn func(lf *LayoutFile) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("saving layouts: creating directory: %w", err)
	}
	unlock, err := lockFile(s.filePath() + ".lock")
	if err != nil {
		return fmt.Errorf("saving layouts: %w", err)
	}
	defer func() { _ = unlock() }()

	lf, err := s.load()
	if err != nil {
		return err
	}
	if !fn(lf) {
		return nil
	}
	return s.save(lf)
}

func (s *fileLayoutStore) Get(_ context.Context, key string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.load()
	if err != nil {
		return nil, false, err
	}
	fields, ok := lf.Layouts[key]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), fields...), true, nil
}

func (s *fileLayoutStore) Set(_ context.Context, key string, fields []string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("saving layout: key must not be empty")
	}
	return s.update(func(lf *LayoutFile) bool {
		lf.Layouts[key] = append([]string{}, fields...)
		return true
	})
}

func (s *fileLayoutStore) Reset(_ context.Context, key string) error {
	return s.update(func(lf *LayoutFile) bool {
		if _, ok := lf.Layouts[key]; !ok {
			return false
		}
		delete(lf.Layouts, key)
		return true
	})
}

func (s *fileLayoutStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lf, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(lf.Layouts))
	for k := range lf.Layouts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileLayoutStore) load() (*LayoutFile, error) {
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &LayoutFile{Version: "1.0", Layouts: make(map[string][]string)}, nil
		}
		return nil, fmt.Errorf("loading layouts: %w", err)
	}

	var lf LayoutFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("loading layouts: parsing YAML: %w", err)
	}
	if lf.Layouts == nil {
		lf.Layouts = make(map[string][]string)
	}
	return &lf, nil
}

func (s *fileLayoutStore) save(lf *LayoutFile) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("saving layouts: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.filePath(), data, 0o600); err != nil {
		return fmt.Errorf("saving layouts: writing file: %w", err)
	}
	return nil
}
