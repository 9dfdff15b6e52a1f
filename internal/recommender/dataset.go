package recommender

import (
	"math/rand"
	"sort"
)

// Rating is one (user, book, score) observation pulled from the rating feed.
type Rating struct {
	UserID int64
	ItemID string
	Score  float64
}

// Snapshot is an immutable in-memory view of the rating feed taken at one
// point in time. It is built once per training or serving call and never
// mutated afterwards.
type Snapshot struct {
	ratings []Rating
	byUser  map[int64]map[string]float64
}

func NewSnapshot(ratings []Rating) *Snapshot {
	byUser := make(map[int64]map[string]float64)
	for _, r := range ratings {
		items, ok := byUser[r.UserID]
		if !ok {
			items = make(map[string]float64)
			byUser[r.UserID] = items
		}
		items[r.ItemID] = r.Score
	}
	return &Snapshot{ratings: ratings, byUser: byUser}
}

func (s *Snapshot) Len() int {
	return len(s.ratings)
}

func (s *Snapshot) Ratings() []Rating {
	return s.ratings
}

func (s *Snapshot) RatingCount(userID int64) int {
	return len(s.byUser[userID])
}

// RatedBy returns the set of items the user has rated in this snapshot.
func (s *Snapshot) RatedBy(userID int64) map[string]float64 {
	return s.byUser[userID]
}

// FilterActiveUsers keeps only ratings whose user has at least minRatings
// ratings in the snapshot. The result is in snapshot order.
func (s *Snapshot) FilterActiveUsers(minRatings int) []Rating {
	if minRatings <= 1 {
		out := make([]Rating, len(s.ratings))
		copy(out, s.ratings)
		return out
	}
	out := make([]Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		if len(s.byUser[r.UserID]) >= minRatings {
			out = append(out, r)
		}
	}
	return out
}

// minSplitSize is the smallest filtered set that still gets a hold-out split.
// Below this the model trains on everything and metrics stay nil.
const minSplitSize = 5

// Split partitions ratings into train and test sets using a seeded shuffle so
// the same input always produces the same partition. A set too small to split
// meaningfully is returned whole with a nil test set.
func Split(ratings []Rating, testFraction float64, seed int64) (train, test []Rating) {
	nTest := int(float64(len(ratings)) * testFraction)
	if testFraction <= 0 || len(ratings) < minSplitSize || nTest == 0 {
		train = make([]Rating, len(ratings))
		copy(train, ratings)
		return train, nil
	}

	// Shuffle over a stable ordering so the split does not depend on the
	// order rows came out of the store.
	shuffled := make([]Rating, len(ratings))
	copy(shuffled, ratings)
	sort.Slice(shuffled, func(i, j int) bool {
		if shuffled[i].UserID != shuffled[j].UserID {
			return shuffled[i].UserID < shuffled[j].UserID
		}
		return shuffled[i].ItemID < shuffled[j].ItemID
	})
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[nTest:], shuffled[:nTest]
}
