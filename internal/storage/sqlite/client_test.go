package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JinxX404/BookNest-fullstack/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })
	return client
}

func testModel(id, modelType string) *models.RecommendationModel {
	rmse := 0.9
	return &models.RecommendationModel{
		ID:                id,
		ModelType:         modelType,
		MinRatingsPerUser: 5,
		NFactors:          100,
		KnnK:              40,
		RMSE:              &rmse,
		CreatedAt:         time.Now(),
	}
}

func TestUpsertRatingReturnsCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	count, created, err := client.UpsertRating(ctx, &models.Rating{UserID: 7, ISBN13: "9780000000001", Score: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, created)

	count, created, err = client.UpsertRating(ctx, &models.Rating{UserID: 7, ISBN13: "9780000000002", Score: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, created)

	// Re-rating the same book overwrites the score without growing the count,
	// and must report an update, not a creation.
	count, created, err = client.UpsertRating(ctx, &models.Rating{UserID: 7, ISBN13: "9780000000001", Score: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.False(t, created)

	ratings, err := client.GetAllRatings(ctx)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
	assert.Equal(t, 2.0, ratings[0].Score)
}

func TestGetUsersWithRatingCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, _, err := client.UpsertRating(ctx, &models.Rating{UserID: 1, ISBN13: fmt.Sprintf("978000000000%d", i), Score: 4})
		require.NoError(t, err)
	}
	_, _, err := client.UpsertRating(ctx, &models.Rating{UserID: 2, ISBN13: "9780000000001", Score: 3})
	require.NoError(t, err)

	users, err := client.GetUsersWithRatingCount(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, users)

	users, err = client.GetUsersWithRatingCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, users)
}

func TestInsertModelDeactivatesSiblings(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertModel(ctx, testModel("m1", "svd"), []byte("a1")))
	require.NoError(t, client.InsertModel(ctx, testModel("m2", "svd"), []byte("a2")))
	require.NoError(t, client.InsertModel(ctx, testModel("k1", "knn"), []byte("a3")))

	list, err := client.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	activeByType := map[string][]string{}
	for _, m := range list {
		if m.IsActive {
			activeByType[m.ModelType] = append(activeByType[m.ModelType], m.ID)
		}
	}
	assert.Equal(t, []string{"m2"}, activeByType["svd"], "newest svd model replaces its sibling")
	assert.Equal(t, []string{"k1"}, activeByType["knn"], "other model types are untouched")

	meta, artifact, err := client.GetActiveModel(ctx, "svd")
	require.NoError(t, err)
	assert.Equal(t, "m2", meta.ID)
	assert.Equal(t, []byte("a2"), artifact)
}

func TestActivateModelSwap(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertModel(ctx, testModel("m1", "svd"), []byte("a1")))
	require.NoError(t, client.InsertModel(ctx, testModel("m2", "svd"), []byte("a2")))

	require.NoError(t, client.ActivateModel(ctx, "m1"))

	list, err := client.ListModels(ctx)
	require.NoError(t, err)
	var active []string
	for _, m := range list {
		if m.IsActive {
			active = append(active, m.ID)
		}
	}
	assert.Equal(t, []string{"m1"}, active, "exactly one active model after the swap")
}

func TestActivateModelMissing(t *testing.T) {
	client := newTestClient(t)
	err := client.ActivateModel(context.Background(), "no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestGetModelMissing(t *testing.T) {
	client := newTestClient(t)

	_, _, err := client.GetModel(context.Background(), "no-such-model")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, _, err = client.GetActiveModel(context.Background(), "svd")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestReplaceUserRecommendations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	first := []models.UserRecommendation{
		{UserID: 1, ISBN13: "9780000000001", Score: 4.5, ModelID: "m1", GeneratedAt: now},
		{UserID: 1, ISBN13: "9780000000002", Score: 4.0, ModelID: "m1", GeneratedAt: now},
	}
	require.NoError(t, client.ReplaceUserRecommendations(ctx, 1, first))

	second := []models.UserRecommendation{
		{UserID: 1, ISBN13: "9780000000003", Score: 4.8, ModelID: "m2", GeneratedAt: now},
	}
	require.NoError(t, client.ReplaceUserRecommendations(ctx, 1, second))

	got, err := client.GetUserRecommendations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1, "replacement wipes the previous batch")
	assert.Equal(t, "9780000000003", got[0].ISBN13)
	assert.Equal(t, "m2", got[0].ModelID)

	got, err = client.GetUserRecommendations(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetUserRecommendationsOrdered(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	batch := []models.UserRecommendation{
		{UserID: 1, ISBN13: "9780000000002", Score: 3.0, ModelID: "m1", GeneratedAt: now},
		{UserID: 1, ISBN13: "9780000000001", Score: 5.0, ModelID: "m1", GeneratedAt: now},
		{UserID: 1, ISBN13: "9780000000003", Score: 5.0, ModelID: "m1", GeneratedAt: now},
	}
	require.NoError(t, client.ReplaceUserRecommendations(ctx, 1, batch))

	got, err := client.GetUserRecommendations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "9780000000001", got[0].ISBN13)
	assert.Equal(t, "9780000000003", got[1].ISBN13)
	assert.Equal(t, "9780000000002", got[2].ISBN13)
}
