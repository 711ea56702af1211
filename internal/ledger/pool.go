package ledger

import "sort"

// Pool merges the recent purchases of a set of neighbors into a single
// comparison pool. Each neighbor contributes at most the last t entries of
// its history, the combined entries are sorted most-recent-first by sequence,
// and the pool is truncated to t entries overall. The two-stage cap bounds
// the work to O(neighbors * t) regardless of how active any one customer is.
func (l *Ledger) Pool(neighbors map[int64]struct{}, t int) []Purchase {
	if t <= 0 {
		return nil
	}

	pool := make([]Purchase, 0, len(neighbors)*t)
	for id := range neighbors {
		history := l.purchases[id]
		if len(history) > t {
			history = history[len(history)-t:]
		}
		pool = append(pool, history...)
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].Seq > pool[j].Seq })
	if len(pool) > t {
		pool = pool[:t]
	}
	return pool
}
