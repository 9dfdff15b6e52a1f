package recommender

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEngine predicts the same score for every pair.
type constEngine struct {
	score float64
}

func (e constEngine) Type() ModelType               { return ModelTypeSVD }
func (e constEngine) Fit([]Rating) error            { return nil }
func (e constEngine) Predict(int64, string) float64 { return e.score }
func (e constEngine) KnowsUser(int64) bool          { return true }
func (e constEngine) Items() []string               { return nil }

func TestEvaluateEmptyHeldOut(t *testing.T) {
	assert.Nil(t, Evaluate(constEngine{score: 3}, nil))
	assert.Nil(t, Evaluate(constEngine{score: 3}, []Rating{}))
}

func TestEvaluateKnownErrors(t *testing.T) {
	heldOut := []Rating{
		{UserID: 1, ItemID: isbn(1), Score: 4}, // error 1
		{UserID: 2, ItemID: isbn(2), Score: 3}, // error 0
		{UserID: 3, ItemID: isbn(3), Score: 1}, // error 2
	}

	m := Evaluate(constEngine{score: 3}, heldOut)
	require.NotNil(t, m)
	assert.InDelta(t, math.Sqrt(5.0/3.0), m.RMSE, 1e-9)
	assert.InDelta(t, 1.0, m.MAE, 1e-9)
}

func TestEvaluatePerfectPredictor(t *testing.T) {
	heldOut := []Rating{
		{UserID: 1, ItemID: isbn(1), Score: 3},
		{UserID: 2, ItemID: isbn(2), Score: 3},
	}

	m := Evaluate(constEngine{score: 3}, heldOut)
	require.NotNil(t, m)
	assert.Zero(t, m.RMSE)
	assert.Zero(t, m.MAE)
}
