package recommender

import "math"

// Metrics are the accuracy numbers computed on a held-out set.
type Metrics struct {
	RMSE float64
	MAE  float64
}

// Evaluate scores the fitted engine against held-out ratings. An empty
// held-out set yields nil metrics rather than an error; the caller decides
// whether that is acceptable.
func Evaluate(engine Engine, heldOut []Rating) *Metrics {
	if len(heldOut) == 0 {
		return nil
	}

	var sumSq, sumAbs float64
	for _, r := range heldOut {
		diff := engine.Predict(r.UserID, r.ItemID) - r.Score
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
	}
	n := float64(len(heldOut))
	return &Metrics{
		RMSE: math.Sqrt(sumSq / n),
		MAE:  sumAbs / n,
	}
}
