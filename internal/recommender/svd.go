package recommender

import (
	"math/rand"
	"sort"
)

// svdEngine is a biased matrix-factorization model: the predicted rating is
// the global mean plus user and item biases plus the dot product of the two
// latent factor vectors, fitted by SGD over the observed ratings.
type svdEngine struct {
	spec Spec

	globalMean  float64
	users       []int64
	items       []string
	userIndex   map[int64]int
	itemIndex   map[string]int
	userBias    []float64
	itemBias    []float64
	userFactors [][]float64
	itemFactors [][]float64
}

func newSVDEngine(spec Spec) *svdEngine {
	return &svdEngine{spec: spec}
}

func (e *svdEngine) Type() ModelType {
	return ModelTypeSVD
}

func (e *svdEngine) Fit(train []Rating) error {
	e.buildIndex(train)

	var sum float64
	for _, r := range train {
		sum += r.Score
	}
	if len(train) > 0 {
		e.globalMean = sum / float64(len(train))
	}

	nf := e.spec.NFactors
	rng := rand.New(rand.NewSource(e.spec.Seed))
	e.userBias = make([]float64, len(e.users))
	e.itemBias = make([]float64, len(e.items))
	e.userFactors = randomFactors(rng, len(e.users), nf)
	e.itemFactors = randomFactors(rng, len(e.items), nf)

	// SGD over a per-epoch shuffled copy; the shuffle order comes from the
	// same seeded rng so refitting the same data yields the same model.
	rows := make([]Rating, len(train))
	copy(rows, train)
	lr := e.spec.LearningRate
	reg := e.spec.Regularization
	for epoch := 0; epoch < e.spec.Epochs; epoch++ {
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		for _, r := range rows {
			u := e.userIndex[r.UserID]
			i := e.itemIndex[r.ItemID]
			pu := e.userFactors[u]
			qi := e.itemFactors[i]

			pred := e.globalMean + e.userBias[u] + e.itemBias[i] + dot(pu, qi)
			err := r.Score - pred

			e.userBias[u] += lr * (err - reg*e.userBias[u])
			e.itemBias[i] += lr * (err - reg*e.itemBias[i])
			for f := 0; f < nf; f++ {
				puf := pu[f]
				pu[f] += lr * (err*qi[f] - reg*puf)
				qi[f] += lr * (err*puf - reg*qi[f])
			}
		}
	}
	return nil
}

func (e *svdEngine) buildIndex(train []Rating) {
	userSet := make(map[int64]struct{})
	itemSet := make(map[string]struct{})
	for _, r := range train {
		userSet[r.UserID] = struct{}{}
		itemSet[r.ItemID] = struct{}{}
	}

	e.users = make([]int64, 0, len(userSet))
	for u := range userSet {
		e.users = append(e.users, u)
	}
	sort.Slice(e.users, func(i, j int) bool { return e.users[i] < e.users[j] })

	e.items = make([]string, 0, len(itemSet))
	for it := range itemSet {
		e.items = append(e.items, it)
	}
	sort.Strings(e.items)

	e.userIndex = make(map[int64]int, len(e.users))
	for i, u := range e.users {
		e.userIndex[u] = i
	}
	e.itemIndex = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.itemIndex[it] = i
	}
}

func (e *svdEngine) Predict(userID int64, itemID string) float64 {
	est := e.globalMean
	u, knownUser := e.userIndex[userID]
	i, knownItem := e.itemIndex[itemID]
	if knownUser {
		est += e.userBias[u]
	}
	if knownItem {
		est += e.itemBias[i]
	}
	if knownUser && knownItem {
		est += dot(e.userFactors[u], e.itemFactors[i])
	}
	return clamp(est, e.spec.ScaleMin, e.spec.ScaleMax)
}

func (e *svdEngine) KnowsUser(userID int64) bool {
	_, ok := e.userIndex[userID]
	return ok
}

func (e *svdEngine) Items() []string {
	return e.items
}

func randomFactors(rng *rand.Rand, n, nf int) [][]float64 {
	factors := make([][]float64, n)
	for i := range factors {
		row := make([]float64, nf)
		for f := range row {
			row[f] = rng.NormFloat64() * 0.1
		}
		factors[i] = row
	}
	return factors
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
