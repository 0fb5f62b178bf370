// Package scenario manages the test scenario library: CRUD over flat JSON
// files, scenario collections, built-in templates and Postman import.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cruciblehq/crucible/pkg/models"
)

const collectionPrefix = "collection_"

// Store persists scenarios and collections as one JSON file each under a
// single directory: {id}.json per scenario, collection_{id}.json per
// collection. An in-memory index serves reads; every write goes to disk
// first and only then updates the index.
type Store struct {
	dir string

	mu          sync.RWMutex
	scenarios   map[string]*models.TestScenario
	collections map[string]*models.ScenarioCollection
}

// NewStore creates the directory if needed and loads every JSON file in it.
// Files that fail to parse are skipped with a warning so one corrupt file
// cannot take the whole library down.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scenario directory %s: %w", dir, err)
	}

	s := &Store{
		dir:         dir,
		scenarios:   make(map[string]*models.TestScenario),
		collections: make(map[string]*models.ScenarioCollection),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read scenario directory %s: %w", s.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := s.loadFile(entry.Name()); err != nil {
			slog.Warn("Skipping unreadable scenario file", "file", entry.Name(), "error", err)
		}
	}

	slog.Info("Scenario store loaded",
		"dir", s.dir,
		"scenarios", len(s.scenarios),
		"collections", len(s.collections))
	return nil
}

// loadFile reads one JSON file into the index. The filename decides the
// entity kind; the file's own id field wins over the filename stem.
func (s *Store) loadFile(name string) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}

	if strings.HasPrefix(name, collectionPrefix) {
		var c models.ScenarioCollection
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("invalid collection JSON: %w", err)
		}
		if c.ID == "" {
			c.ID = strings.TrimSuffix(strings.TrimPrefix(name, collectionPrefix), ".json")
		}
		s.mu.Lock()
		s.collections[c.ID] = &c
		s.mu.Unlock()
		return nil
	}

	var sc models.TestScenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("invalid scenario JSON: %w", err)
	}
	if sc.ID == "" {
		sc.ID = strings.TrimSuffix(name, ".json")
	}
	s.mu.Lock()
	s.scenarios[sc.ID] = &sc
	s.mu.Unlock()
	return nil
}

// Reload re-reads one file after an external change. A missing file evicts
// the corresponding index entry instead of failing.
func (s *Store) Reload(name string) error {
	err := s.loadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		s.evictByFilename(name)
		return nil
	}
	return err
}

func (s *Store) evictByFilename(name string) {
	stem := strings.TrimSuffix(name, ".json")
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.HasPrefix(stem, collectionPrefix) {
		delete(s.collections, strings.TrimPrefix(stem, collectionPrefix))
		return
	}
	delete(s.scenarios, stem)
}

// SaveScenario writes the scenario to disk and indexes it.
func (s *Store) SaveScenario(sc *models.TestScenario) error {
	if err := s.writeJSON(s.scenarioPath(sc.ID), sc); err != nil {
		return err
	}
	s.mu.Lock()
	s.scenarios[sc.ID] = sc
	s.mu.Unlock()
	return nil
}

// GetScenario returns the indexed scenario or models.ErrNotFound.
func (s *Store) GetScenario(id string) (*models.TestScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s: %w", id, models.ErrNotFound)
	}
	return sc, nil
}

// ListScenarios returns a snapshot of every indexed scenario.
func (s *Store) ListScenarios() []*models.TestScenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TestScenario, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		out = append(out, sc)
	}
	return out
}

// DeleteScenario removes the file and the index entry.
func (s *Store) DeleteScenario(id string) error {
	s.mu.Lock()
	_, ok := s.scenarios[id]
	delete(s.scenarios, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scenario %s: %w", id, models.ErrNotFound)
	}

	if err := os.Remove(s.scenarioPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete scenario file: %w", err)
	}
	return nil
}

// HasScenario reports whether an id is indexed.
func (s *Store) HasScenario(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.scenarios[id]
	return ok
}

// SaveCollection writes the collection to disk and indexes it.
func (s *Store) SaveCollection(c *models.ScenarioCollection) error {
	if err := s.writeJSON(s.collectionPath(c.ID), c); err != nil {
		return err
	}
	s.mu.Lock()
	s.collections[c.ID] = c
	s.mu.Unlock()
	return nil
}

// GetCollection returns the indexed collection or models.ErrNotFound.
func (s *Store) GetCollection(id string) (*models.ScenarioCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, models.ErrNotFound)
	}
	return c, nil
}

// ListCollections returns a snapshot of every indexed collection.
func (s *Store) ListCollections() []*models.ScenarioCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScenarioCollection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	return out
}

// DeleteCollection removes the file and the index entry.
func (s *Store) DeleteCollection(id string) error {
	s.mu.Lock()
	_, ok := s.collections[id]
	delete(s.collections, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("collection %s: %w", id, models.ErrNotFound)
	}

	if err := os.Remove(s.collectionPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete collection file: %w", err)
	}
	return nil
}

func (s *Store) scenarioPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) collectionPath(id string) string {
	return filepath.Join(s.dir, collectionPrefix+id+".json")
}

func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
