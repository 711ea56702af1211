// Package ledger tracks per-customer purchase history.
//
// Histories are append-only and ordered by the global decode sequence, so
// "most recent" is always a tail slice. Entries are never removed or
// reordered.
package ledger

import "time"

// Purchase is a single recorded purchase.
type Purchase struct {
	Seq       int64
	Timestamp time.Time
	Amount    float64
}

// Ledger maps customers to their ordered purchase histories.
//
// A Ledger is not safe for concurrent use; the pipeline serializes access.
type Ledger struct {
	purchases map[int64][]Purchase
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{purchases: make(map[int64][]Purchase)}
}

// Record appends a purchase to id's history.
func (l *Ledger) Record(id, seq int64, ts time.Time, amount float64) {
	l.purchases[id] = append(l.purchases[id], Purchase{Seq: seq, Timestamp: ts, Amount: amount})
}

// History returns id's purchases in append order. The returned slice is the
// ledger's own backing array; callers must not mutate it.
func (l *Ledger) History(id int64) []Purchase {
	return l.purchases[id]
}

// CustomerCount returns the number of customers with at least one purchase.
func (l *Ledger) CustomerCount() int {
	return len(l.purchases)
}
