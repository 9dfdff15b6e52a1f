package recommender

import (
	"sort"

	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

// Recommendation is one ranked (item, predicted score) pair.
type Recommendation struct {
	ItemID string
	Score  float64
}

// Recommend produces the top-n unrated items for the user. Users present in
// the engine's trained population are scored by the model over its item
// vocabulary; everyone else falls back to popularity over the snapshot.
// Already-rated items are excluded using the snapshot, which may be fresher
// than the data the engine was fitted on. Output ordering is total: score
// descending, then item id ascending.
func Recommend(engine Engine, snap *Snapshot, userID int64, n int, popularityWeight float64) []Recommendation {
	if n < 1 {
		return nil
	}
	rated := snap.RatedBy(userID)

	var recs []Recommendation
	if engine != nil && engine.KnowsUser(userID) {
		recs = make([]Recommendation, 0, len(engine.Items()))
		for _, item := range engine.Items() {
			if _, ok := rated[item]; ok {
				continue
			}
			recs = append(recs, Recommendation{ItemID: item, Score: engine.Predict(userID, item)})
		}
	} else {
		// Cold start. Not an error path: new users are expected to land
		// here until a retrain picks them up.
		logger.Info("User not in trained population, using popularity fallback",
			zap.Int64("user_id", userID),
		)
		pop := BuildPopularity(snap)
		recs = make([]Recommendation, 0, len(pop.Items()))
		for _, item := range pop.Items() {
			if _, ok := rated[item]; ok {
				continue
			}
			score, ok := pop.Score(item, popularityWeight)
			if !ok {
				continue
			}
			recs = append(recs, Recommendation{ItemID: item, Score: score})
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].ItemID < recs[j].ItemID
	})
	if len(recs) > n {
		recs = recs[:n]
	}
	return recs
}
