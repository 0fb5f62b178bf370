package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

// Service is the scenario library: validated CRUD over the file store,
// collections for batch runs, built-in templates and Postman import.
type Service struct {
	cfg     *config.ScenariosConfig
	store   *Store
	watcher *Watcher
}

// NewService opens the store under cfg.Dir and, when cfg.Watch is set,
// prepares a filesystem watcher (started later via Start).
func NewService(cfg *config.ScenariosConfig) (*Service, error) {
	store, err := NewStore(cfg.Dir)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, store: store}
	if cfg.Watch {
		w, err := NewWatcher(cfg.Dir, store)
		if err != nil {
			// Hot reload is a convenience; the library still works without
			// it, reads just see the state from startup.
			slog.Warn("Scenario watcher unavailable, hot reload disabled", "error", err)
		} else {
			s.watcher = w
		}
	}
	return s, nil
}

// Start launches the filesystem watcher when one was configured.
func (s *Service) Start(ctx context.Context) {
	if s.watcher != nil {
		s.watcher.Start(ctx)
	}
}

// Stop shuts the watcher down. Safe to call when none is running.
func (s *Service) Stop() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	TestType models.TestType
	Tag      string
}

func (f ListFilter) matches(sc *models.TestScenario) bool {
	if f.TestType != "" && sc.TestType != f.TestType {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range sc.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Create validates and persists a new scenario. A missing id is assigned;
// an existing id is a conflict.
func (s *Service) Create(_ context.Context, sc *models.TestScenario) (*models.TestScenario, error) {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if s.store.HasScenario(sc.ID) {
		return nil, fmt.Errorf("scenario %s: %w", sc.ID, models.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	if err := s.store.SaveScenario(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Get returns one scenario by id.
func (s *Service) Get(_ context.Context, id string) (*models.TestScenario, error) {
	return s.store.GetScenario(id)
}

// List returns scenarios matching the filter, sorted by name for stable
// output.
func (s *Service) List(_ context.Context, filter ListFilter) []*models.TestScenario {
	all := s.store.ListScenarios()
	out := make([]*models.TestScenario, 0, len(all))
	for _, sc := range all {
		if filter.matches(sc) {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Update replaces an existing scenario. The path id wins over any id in the
// body, created_at is preserved and updated_at advances.
func (s *Service) Update(_ context.Context, id string, sc *models.TestScenario) (*models.TestScenario, error) {
	existing, err := s.store.GetScenario(id)
	if err != nil {
		return nil, err
	}

	sc.ID = id
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	sc.CreatedAt = existing.CreatedAt
	sc.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveScenario(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Delete removes a scenario. Collections keep their id lists; stale
// references are skipped at run time.
func (s *Service) Delete(_ context.Context, id string) error {
	return s.store.DeleteScenario(id)
}

// CreateCollection validates and persists a scenario collection. Every
// referenced scenario must exist.
func (s *Service) CreateCollection(_ context.Context, c *models.ScenarioCollection) (*models.ScenarioCollection, error) {
	if c.Name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	for _, id := range c.ScenarioIDs {
		if !s.store.HasScenario(id) {
			return nil, models.NewValidationError("scenario_ids", fmt.Sprintf("unknown scenario %q", id))
		}
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, err := s.store.GetCollection(c.ID); err == nil {
		return nil, fmt.Errorf("collection %s: %w", c.ID, models.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.SaveCollection(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCollection returns one collection by id.
func (s *Service) GetCollection(_ context.Context, id string) (*models.ScenarioCollection, error) {
	return s.store.GetCollection(id)
}

// ListCollections returns all collections sorted by name.
func (s *Service) ListCollections(_ context.Context) []*models.ScenarioCollection {
	out := s.store.ListCollections()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddToCollection appends a scenario id to a collection, ignoring
// duplicates.
func (s *Service) AddToCollection(_ context.Context, collectionID, scenarioID string) (*models.ScenarioCollection, error) {
	c, err := s.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	if !s.store.HasScenario(scenarioID) {
		return nil, fmt.Errorf("scenario %s: %w", scenarioID, models.ErrNotFound)
	}

	for _, id := range c.ScenarioIDs {
		if id == scenarioID {
			return c, nil
		}
	}

	updated := *c
	updated.ScenarioIDs = append(append([]string{}, c.ScenarioIDs...), scenarioID)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveCollection(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCollection removes a collection.
func (s *Service) DeleteCollection(_ context.Context, id string) error {
	return s.store.DeleteCollection(id)
}

// ResolveCollection expands a collection into its scenarios, skipping ids
// that no longer resolve.
func (s *Service) ResolveCollection(_ context.Context, id string) ([]*models.TestScenario, error) {
	c, err := s.store.GetCollection(id)
	if err != nil {
		return nil, err
	}

	out := make([]*models.TestScenario, 0, len(c.ScenarioIDs))
	for _, sid := range c.ScenarioIDs {
		sc, err := s.store.GetScenario(sid)
		if err != nil {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

// Stats reports library counts for the health endpoint.
type Stats struct {
	Scenarios   int `json:"scenarios"`
	Collections int `json:"collections"`
}

// Stats returns current library counts.
func (s *Service) Stats() Stats {
	return Stats{
		Scenarios:   len(s.store.ListScenarios()),
		Collections: len(s.store.ListCollections()),
	}
}
