package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinxX404/BookNest-fullstack/internal/recommender"
	"github.com/JinxX404/BookNest-fullstack/internal/storage/sqlite"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func trainedEngine(t *testing.T) (recommender.Engine, recommender.Spec, *recommender.Metrics) {
	t.Helper()
	spec := recommender.DefaultSpec(recommender.ModelTypeSVD)
	spec.MinRatingsPerUser = 1
	spec.NFactors = 4
	spec.Epochs = 5

	ratings := []recommender.Rating{
		{UserID: 1, ItemID: "9780000000001", Score: 5},
		{UserID: 1, ItemID: "9780000000002", Score: 4},
		{UserID: 1, ItemID: "9780000000003", Score: 2},
		{UserID: 2, ItemID: "9780000000001", Score: 5},
		{UserID: 2, ItemID: "9780000000002", Score: 3},
		{UserID: 2, ItemID: "9780000000003", Score: 1},
		{UserID: 3, ItemID: "9780000000001", Score: 2},
		{UserID: 3, ItemID: "9780000000002", Score: 5},
		{UserID: 3, ItemID: "9780000000003", Score: 4},
	}
	engine, metrics, err := recommender.Train(recommender.NewSnapshot(ratings), spec)
	require.NoError(t, err)
	return engine, spec, metrics
}

func TestSaveAndLoadActive(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	engine, spec, metrics := trainedEngine(t)

	meta, err := reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ID)
	assert.True(t, meta.IsActive)
	if metrics != nil {
		require.NotNil(t, meta.RMSE)
		assert.Equal(t, metrics.RMSE, *meta.RMSE)
	}

	loaded, loadedMeta, err := reg.LoadActive(ctx, recommender.ModelTypeSVD)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, loadedMeta.ID)
	assert.Equal(t, engine.Predict(1, "9780000000003"), loaded.Predict(1, "9780000000003"))
}

func TestLoadActiveSurvivesCacheLoss(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	engine, spec, metrics := trainedEngine(t)

	meta, err := reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)

	// A second registry over the same store simulates a process restart: the
	// active model must round-trip through its persisted artifact.
	fresh := New(reg.db)
	loaded, loadedMeta, err := fresh.LoadActive(ctx, recommender.ModelTypeSVD)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, loadedMeta.ID)
	assert.Equal(t, engine.Predict(2, "9780000000002"), loaded.Predict(2, "9780000000002"))
}

func TestSaveReplacesActiveSibling(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	engine, spec, metrics := trainedEngine(t)
	first, err := reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)
	second, err := reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var activeIDs []string
	for _, m := range list {
		if m.IsActive {
			activeIDs = append(activeIDs, m.ID)
		}
	}
	assert.Equal(t, []string{second.ID}, activeIDs)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestActivateSwapsServing(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	engine, spec, metrics := trainedEngine(t)
	first, err := reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)
	_, err = reg.Save(ctx, engine, spec, metrics)
	require.NoError(t, err)

	require.NoError(t, reg.Activate(ctx, first.ID))

	_, meta, err := reg.LoadActive(ctx, recommender.ModelTypeSVD)
	require.NoError(t, err)
	assert.Equal(t, first.ID, meta.ID, "serving follows the activation immediately")

	list, err := reg.List(ctx)
	require.NoError(t, err)
	var activeCount int
	for _, m := range list {
		if m.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestLoadMissingModel(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, _, err := reg.Load(ctx, "no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, _, err = reg.LoadActive(ctx, recommender.ModelTypeKNN)
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.ErrorIs(t, reg.Activate(ctx, "no-such-model"), ErrModelNotFound)
}
