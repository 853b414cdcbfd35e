package preset

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/debug"
)

// FileStore keeps presets in a YAML file mapping names to joint angles:
//
//	home:
//	  base: 90
//	  lift: 90
//	  gripper: 0
//
// The file is read once by OpenFile and rewritten in full on every Save.
type FileStore struct {
	path string

	mu      sync.RWMutex
	presets map[string]record
}

// OpenFile loads presets from path. A missing, unreadable or corrupt file
// yields an empty store: the first Save will create or replace it.
func OpenFile(path string) *FileStore {
	s := &FileStore{path: path, presets: make(map[string]record)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Error(fmt.Errorf("reading presets %s: %w", path, err))
		}
		debug.Info("No presets loaded from %s", path)
		return s
	}

	var loaded map[string]record
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		debug.Error(fmt.Errorf("parsing presets %s: %w", path, err))
		return s
	}
	for name, r := range loaded {
		if r == nil {
			r = record{}
		}
		s.presets[name] = r
	}
	debug.Info("Loaded %d presets from %s", len(s.presets), path)
	return s
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Save stores w under name and rewrites the file. The in-memory copy is
// only updated once the file is safely on disk.
func (s *FileStore) Save(ctx context.Context, name string, w arm.Waypoint) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.presets)
	next[name] = toRecord(w)
	if err := s.persist(next); err != nil {
		return err
	}
	s.presets = next
	return nil
}

// Load returns the preset saved under name.
func (s *FileStore) Load(ctx context.Context, name string) (arm.Waypoint, error) {
	if err := ctx.Err(); err != nil {
		return arm.Waypoint{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.presets[name]
	if !ok {
		return arm.Waypoint{}, &NotFoundError{Name: name}
	}
	return r.waypoint(), nil
}

// List returns the preset names in lexical order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.presets)), nil
}

// Close is a no-op; every Save is already flushed.
func (s *FileStore) Close() error { return nil }

// persist writes presets to a temp file in the same directory, syncs it
// and renames it over the store file.
func (s *FileStore) persist(presets map[string]record) error {
	data, err := yaml.Marshal(presets)
	if err != nil {
		return fmt.Errorf("encoding presets: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preset dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp preset file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing presets: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing presets: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing presets: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	debug.Verbose("Presets written to %s (%d entries)", s.path, len(presets))
	return nil
}
