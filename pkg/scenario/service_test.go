package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/crucible/pkg/config"
	"github.com/cruciblehq/crucible/pkg/models"
)

func setupTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(&config.ScenariosConfig{Dir: dir})
	require.NoError(t, err)
	return svc, dir
}

func TestService_CreateAssignsIDAndTimestamps(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	sc := validAPIScenario("", "probe")
	sc.CreatedAt = time.Time{}
	sc.UpdatedAt = time.Time{}

	created, err := svc.Create(ctx, sc)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, 5*time.Second)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "probe", got.Name)
}

func TestService_CreateRejectsDuplicateID(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validAPIScenario("sc-1", "first"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, validAPIScenario("sc-1", "second"))
	assert.ErrorIs(t, err, models.ErrAlreadyExists)
}

func TestService_CreateRejectsInvalidScenario(t *testing.T) {
	svc, _ := setupTestService(t)

	sc := validAPIScenario("sc-1", "bad priority")
	sc.Priority = 0

	_, err := svc.Create(context.Background(), sc)
	require.Error(t, err)
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "priority", ve.Field)
}

func TestService_GetUnknown(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_ListFilters(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	api := validAPIScenario("api-1", "zeta api")
	api.Tags = []string{"smoke"}
	_, err := svc.Create(ctx, api)
	require.NoError(t, err)

	ui := &models.TestScenario{
		ID:             "ui-1",
		Name:           "alpha ui",
		TestType:       models.TestTypeUI,
		Priority:       5,
		TimeoutSeconds: 60,
		UISpec: &models.UITestSpec{
			PageURL:      "http://localhost:3000",
			ViewportSize: models.Viewport{Width: 1280, Height: 720},
			Browser:      models.BrowserChromium,
		},
		Tags: []string{"smoke", "ui"},
	}
	_, err = svc.Create(ctx, ui)
	require.NoError(t, err)

	t.Run("no filter returns all sorted by name", func(t *testing.T) {
		all := svc.List(ctx, ListFilter{})
		require.Len(t, all, 2)
		assert.Equal(t, "alpha ui", all[0].Name)
		assert.Equal(t, "zeta api", all[1].Name)
	})

	t.Run("filter by test type", func(t *testing.T) {
		apis := svc.List(ctx, ListFilter{TestType: models.TestTypeAPI})
		require.Len(t, apis, 1)
		assert.Equal(t, "api-1", apis[0].ID)
	})

	t.Run("filter by tag", func(t *testing.T) {
		smoke := svc.List(ctx, ListFilter{Tag: "smoke"})
		assert.Len(t, smoke, 2)

		uiOnly := svc.List(ctx, ListFilter{Tag: "ui"})
		require.Len(t, uiOnly, 1)
		assert.Equal(t, "ui-1", uiOnly[0].ID)
	})

	t.Run("combined filter", func(t *testing.T) {
		none := svc.List(ctx, ListFilter{TestType: models.TestTypeAPI, Tag: "ui"})
		assert.Empty(t, none)
	})
}

func TestService_UpdatePreservesCreatedAt(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validAPIScenario("sc-1", "before"))
	require.NoError(t, err)

	replacement := validAPIScenario("ignored-id", "after")
	updated, err := svc.Update(ctx, "sc-1", replacement)
	require.NoError(t, err)

	// The path id wins over the body id.
	assert.Equal(t, "sc-1", updated.ID)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestService_UpdateUnknown(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Update(context.Background(), "missing", validAPIScenario("", "x"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validAPIScenario("sc-1", "probe"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "sc-1"))
	_, err = svc.Get(ctx, "sc-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_CollectionLifecycle(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validAPIScenario("sc-1", "a"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, validAPIScenario("sc-2", "b"))
	require.NoError(t, err)

	coll, err := svc.CreateCollection(ctx, &models.ScenarioCollection{
		Name:        "Smoke",
		ScenarioIDs: []string{"sc-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, coll.ID)

	t.Run("unknown scenario reference rejected", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, &models.ScenarioCollection{
			Name:        "Broken",
			ScenarioIDs: []string{"ghost"},
		})
		require.Error(t, err)
		ve, ok := models.AsValidationError(err)
		require.True(t, ok)
		assert.Equal(t, "scenario_ids", ve.Field)
	})

	t.Run("missing name rejected", func(t *testing.T) {
		_, err := svc.CreateCollection(ctx, &models.ScenarioCollection{ScenarioIDs: []string{"sc-1"}})
		require.Error(t, err)
		_, ok := models.AsValidationError(err)
		assert.True(t, ok)
	})

	t.Run("add to collection deduplicates", func(t *testing.T) {
		updated, err := svc.AddToCollection(ctx, coll.ID, "sc-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"sc-1", "sc-2"}, updated.ScenarioIDs)

		again, err := svc.AddToCollection(ctx, coll.ID, "sc-2")
		require.NoError(t, err)
		assert.Equal(t, []string{"sc-1", "sc-2"}, again.ScenarioIDs)
	})

	t.Run("add unknown scenario fails", func(t *testing.T) {
		_, err := svc.AddToCollection(ctx, coll.ID, "ghost")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("resolve skips stale references", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "sc-2"))

		resolved, err := svc.ResolveCollection(ctx, coll.ID)
		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, "sc-1", resolved[0].ID)
	})

	t.Run("delete collection", func(t *testing.T) {
		require.NoError(t, svc.DeleteCollection(ctx, coll.ID))
		_, err := svc.GetCollection(ctx, coll.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestService_PersistenceAcrossRestart(t *testing.T) {
	svc, dir := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validAPIScenario("sc-1", "survivor"))
	require.NoError(t, err)
	_, err = svc.CreateCollection(ctx, &models.ScenarioCollection{
		ID: "suite", Name: "Suite", ScenarioIDs: []string{"sc-1"},
	})
	require.NoError(t, err)

	reopened, err := NewService(&config.ScenariosConfig{Dir: dir})
	require.NoError(t, err)

	got, err := reopened.Get(ctx, "sc-1")
	require.NoError(t, err)
	assert.Equal(t, "survivor", got.Name)

	c, err := reopened.GetCollection(ctx, "suite")
	require.NoError(t, err)
	assert.Equal(t, []string{"sc-1"}, c.ScenarioIDs)

	stats := reopened.Stats()
	assert.Equal(t, 1, stats.Scenarios)
	assert.Equal(t, 1, stats.Collections)
}
