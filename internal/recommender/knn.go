package recommender

import (
	"math"
	"sort"
)

type neighbor struct {
	User int64
	Sim  float64
}

// knnEngine is a user-based neighborhood model. Similarity is Pearson
// correlation over co-rated items (requiring a minimum overlap), and a
// prediction is the target user's mean rating adjusted by the
// similarity-weighted deviations of the k nearest neighbors.
type knnEngine struct {
	spec Spec

	globalMean float64
	users      []int64
	items      []string
	userIndex  map[int64]int
	itemIndex  map[string]int
	ratings    []map[string]float64
	means      []float64
	neighbors  [][]neighbor
}

func newKNNEngine(spec Spec) *knnEngine {
	return &knnEngine{spec: spec}
}

func (e *knnEngine) Type() ModelType {
	return ModelTypeKNN
}

func (e *knnEngine) Fit(train []Rating) error {
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
	e.userIndex = make(map[int64]int, len(e.users))
	for i, u := range e.users {
		e.userIndex[u] = i
	}

	e.items = make([]string, 0, len(itemSet))
	for it := range itemSet {
		e.items = append(e.items, it)
	}
	sort.Strings(e.items)
	e.itemIndex = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.itemIndex[it] = i
	}

	e.ratings = make([]map[string]float64, len(e.users))
	for i := range e.ratings {
		e.ratings[i] = make(map[string]float64)
	}
	var sum float64
	for _, r := range train {
		e.ratings[e.userIndex[r.UserID]][r.ItemID] = r.Score
		sum += r.Score
	}
	if len(train) > 0 {
		e.globalMean = sum / float64(len(train))
	}

	e.means = make([]float64, len(e.users))
	for i, items := range e.ratings {
		var s float64
		for _, score := range items {
			s += score
		}
		if len(items) > 0 {
			e.means[i] = s / float64(len(items))
		}
	}

	e.computeNeighbors()
	return nil
}

func (e *knnEngine) computeNeighbors() {
	n := len(e.users)
	sims := make([][]neighbor, n)
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			sim, ok := e.pearson(u, v)
			if !ok {
				continue
			}
			sims[u] = append(sims[u], neighbor{User: e.users[v], Sim: sim})
			sims[v] = append(sims[v], neighbor{User: e.users[u], Sim: sim})
		}
	}

	e.neighbors = make([][]neighbor, n)
	for u := 0; u < n; u++ {
		list := sims[u]
		// Rank by |sim|; ties broken by user id so the neighbor window is
		// the same on every fit.
		sort.Slice(list, func(i, j int) bool {
			ai, aj := math.Abs(list[i].Sim), math.Abs(list[j].Sim)
			if ai != aj {
				return ai > aj
			}
			return list[i].User < list[j].User
		})
		if len(list) > e.spec.K {
			list = list[:e.spec.K]
		}
		e.neighbors[u] = list
	}
}

// pearson computes the correlation of two users' scores over co-rated items.
// It reports false when the overlap is below the configured minimum or the
// correlation is undefined.
func (e *knnEngine) pearson(u, v int) (float64, bool) {
	small, large := e.ratings[u], e.ratings[v]
	if len(large) < len(small) {
		small, large = large, small
	}

	var n int
	var sumU, sumV, sumUU, sumVV, sumUV float64
	for item, ru := range small {
		rv, ok := large[item]
		if !ok {
			continue
		}
		n++
		sumU += ru
		sumV += rv
		sumUU += ru * ru
		sumVV += rv * rv
		sumUV += ru * rv
	}
	minOverlap := e.spec.MinOverlap
	if minOverlap < 2 {
		minOverlap = 2
	}
	if n < minOverlap {
		return 0, false
	}

	fn := float64(n)
	num := sumUV - sumU*sumV/fn
	den := math.Sqrt((sumUU - sumU*sumU/fn) * (sumVV - sumV*sumV/fn))
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

func (e *knnEngine) Predict(userID int64, itemID string) float64 {
	u, knownUser := e.userIndex[userID]
	if !knownUser {
		return clamp(e.globalMean, e.spec.ScaleMin, e.spec.ScaleMax)
	}
	if score, rated := e.ratings[u][itemID]; rated {
		return clamp(score, e.spec.ScaleMin, e.spec.ScaleMax)
	}

	est := e.means[u]
	var num, den float64
	for _, nb := range e.neighbors[u] {
		v := e.userIndex[nb.User]
		rv, ok := e.ratings[v][itemID]
		if !ok {
			continue
		}
		num += nb.Sim * (rv - e.means[v])
		den += math.Abs(nb.Sim)
	}
	if den > 0 {
		est += num / den
	}
	return clamp(est, e.spec.ScaleMin, e.spec.ScaleMax)
}

func (e *knnEngine) KnowsUser(userID int64) bool {
	_, ok := e.userIndex[userID]
	return ok
}

func (e *knnEngine) Items() []string {
	return e.items
}
