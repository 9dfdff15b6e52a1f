package recommender

// itemStat accumulates mean and volume for one item across a snapshot.
type itemStat struct {
	sum   float64
	count int
}

// PopularityIndex ranks items for users the trained model has never seen.
// The score blends an item's mean rating with its rating volume so a single
// five-star review does not outrank a well-reviewed staple.
type PopularityIndex struct {
	stats    map[string]itemStat
	items    []string
	maxCount int
}

// BuildPopularity aggregates per-item mean and count over a full snapshot.
func BuildPopularity(snap *Snapshot) *PopularityIndex {
	stats := make(map[string]itemStat)
	for _, r := range snap.Ratings() {
		st := stats[r.ItemID]
		st.sum += r.Score
		st.count++
		stats[r.ItemID] = st
	}

	idx := &PopularityIndex{stats: stats}
	for item, st := range stats {
		idx.items = append(idx.items, item)
		if st.count > idx.maxCount {
			idx.maxCount = st.count
		}
	}
	return idx
}

// Score is mean * (1 + weight * count/maxCount). weight=1 reproduces the
// historical formula; it is configurable because the blend is a heuristic,
// not a tuned constant.
func (p *PopularityIndex) Score(itemID string, weight float64) (float64, bool) {
	st, ok := p.stats[itemID]
	if !ok || st.count == 0 {
		return 0, false
	}
	mean := st.sum / float64(st.count)
	return mean * (1 + weight*float64(st.count)/float64(p.maxCount)), true
}

func (p *PopularityIndex) Items() []string {
	return p.items
}
