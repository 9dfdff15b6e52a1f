package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec(modelType ModelType) Spec {
	spec := DefaultSpec(modelType)
	spec.MinRatingsPerUser = 1
	spec.NFactors = 8
	spec.Epochs = 10
	spec.K = 5
	return spec
}

func TestParseModelType(t *testing.T) {
	mt, err := ParseModelType("svd")
	require.NoError(t, err)
	assert.Equal(t, ModelTypeSVD, mt)

	mt, err = ParseModelType("knn")
	require.NoError(t, err)
	assert.Equal(t, ModelTypeKNN, mt)

	_, err = ParseModelType("als")
	assert.ErrorIs(t, err, ErrUnsupportedModelType)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
		want   error
	}{
		{"valid defaults", func(s *Spec) {}, nil},
		{"bad model type", func(s *Spec) { s.ModelType = "als" }, ErrUnsupportedModelType},
		{"zero min ratings", func(s *Spec) { s.MinRatingsPerUser = 0 }, ErrInvalidHyperparameters},
		{"zero factors", func(s *Spec) { s.NFactors = 0 }, ErrInvalidHyperparameters},
		{"negative test fraction", func(s *Spec) { s.TestFraction = -0.1 }, ErrInvalidHyperparameters},
		{"test fraction one", func(s *Spec) { s.TestFraction = 1 }, ErrInvalidHyperparameters},
		{"empty scale", func(s *Spec) { s.ScaleMin, s.ScaleMax = 5, 1 }, ErrInvalidHyperparameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultSpec(ModelTypeSVD)
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	// K only matters for knn.
	spec := DefaultSpec(ModelTypeKNN)
	spec.K = 0
	assert.ErrorIs(t, spec.Validate(), ErrInvalidHyperparameters)

	spec = DefaultSpec(ModelTypeSVD)
	spec.K = 0
	assert.NoError(t, spec.Validate())
}

func TestTrainInsufficientData(t *testing.T) {
	spec := testSpec(ModelTypeSVD)
	spec.MinRatingsPerUser = 100

	_, _, err := Train(NewSnapshot(testRatings()), spec)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, _, err = Train(NewSnapshot(nil), testSpec(ModelTypeSVD))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrainProducesMetrics(t *testing.T) {
	engine, metrics, err := Train(NewSnapshot(testRatings()), testSpec(ModelTypeSVD))
	require.NoError(t, err)
	require.NotNil(t, engine)
	require.NotNil(t, metrics)
	assert.Greater(t, metrics.RMSE, 0.0)
	assert.Greater(t, metrics.MAE, 0.0)
	assert.GreaterOrEqual(t, metrics.RMSE, metrics.MAE)
}

func TestTrainSmallSetNilMetrics(t *testing.T) {
	ratings := []Rating{
		{UserID: 1, ItemID: isbn(1), Score: 4},
		{UserID: 1, ItemID: isbn(2), Score: 5},
		{UserID: 1, ItemID: isbn(3), Score: 3},
	}

	engine, metrics, err := Train(NewSnapshot(ratings), testSpec(ModelTypeSVD))
	require.NoError(t, err)
	require.NotNil(t, engine)
	assert.Nil(t, metrics, "a set too small to split trains without metrics")
}
