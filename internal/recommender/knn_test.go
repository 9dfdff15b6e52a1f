package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKNNFitDeterministic(t *testing.T) {
	spec := testSpec(ModelTypeKNN)
	train := testRatings()

	a, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, a.Fit(train))

	b, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, b.Fit(train))

	for _, u := range []int64{1, 4, 6} {
		for i := 1; i <= 8; i++ {
			assert.Equal(t, a.Predict(u, isbn(i)), b.Predict(u, isbn(i)))
		}
	}
}

func TestKNNFollowsNeighbors(t *testing.T) {
	// Users 1 and 2 agree perfectly on four books; user 3 is their opposite.
	// User 1's prediction for the book only the others rated should land
	// near user 2's rating, not user 3's.
	train := []Rating{
		{UserID: 1, ItemID: isbn(1), Score: 5},
		{UserID: 1, ItemID: isbn(2), Score: 4},
		{UserID: 1, ItemID: isbn(3), Score: 2},
		{UserID: 1, ItemID: isbn(4), Score: 1},

		{UserID: 2, ItemID: isbn(1), Score: 5},
		{UserID: 2, ItemID: isbn(2), Score: 4},
		{UserID: 2, ItemID: isbn(3), Score: 2},
		{UserID: 2, ItemID: isbn(4), Score: 1},
		{UserID: 2, ItemID: isbn(5), Score: 5},

		{UserID: 3, ItemID: isbn(1), Score: 1},
		{UserID: 3, ItemID: isbn(2), Score: 2},
		{UserID: 3, ItemID: isbn(3), Score: 4},
		{UserID: 3, ItemID: isbn(4), Score: 5},
		{UserID: 3, ItemID: isbn(5), Score: 1},
	}

	engine, err := New(testSpec(ModelTypeKNN))
	require.NoError(t, err)
	require.NoError(t, engine.Fit(train))

	got := engine.Predict(1, isbn(5))
	assert.Greater(t, got, 3.5, "positively correlated neighbor rated it 5")
}

func TestKNNPredictRatedItemReturnsRating(t *testing.T) {
	engine, err := New(testSpec(ModelTypeKNN))
	require.NoError(t, err)
	require.NoError(t, engine.Fit(testRatings()))

	assert.Equal(t, 5.0, engine.Predict(1, isbn(1)))
}

func TestKNNUnknownUserFallsBackToGlobalMean(t *testing.T) {
	spec := testSpec(ModelTypeKNN)
	engine, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, engine.Fit(testRatings()))

	assert.False(t, engine.KnowsUser(999))
	got := engine.Predict(999, isbn(1))
	assert.GreaterOrEqual(t, got, spec.ScaleMin)
	assert.LessOrEqual(t, got, spec.ScaleMax)
}

func TestKNNNoOverlapMeansNoNeighbors(t *testing.T) {
	// Users share no co-rated books, so similarity is undefined everywhere
	// and each user predicts at their own mean.
	train := []Rating{
		{UserID: 1, ItemID: isbn(1), Score: 5},
		{UserID: 1, ItemID: isbn(2), Score: 3},
		{UserID: 2, ItemID: isbn(3), Score: 1},
		{UserID: 2, ItemID: isbn(4), Score: 2},
	}

	engine, err := New(testSpec(ModelTypeKNN))
	require.NoError(t, err)
	require.NoError(t, engine.Fit(train))

	assert.Equal(t, 4.0, engine.Predict(1, isbn(3)))
	assert.Equal(t, 1.5, engine.Predict(2, isbn(1)))
}

func TestKNNNeighborWindowBounded(t *testing.T) {
	spec := testSpec(ModelTypeKNN)
	spec.K = 1
	engine, err := New(spec)
	require.NoError(t, err)
	require.NoError(t, engine.Fit(testRatings()))

	kn, ok := engine.(*knnEngine)
	require.True(t, ok)
	for _, nbs := range kn.neighbors {
		assert.LessOrEqual(t, len(nbs), 1)
	}
}
