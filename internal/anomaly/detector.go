// Package anomaly computes the purchase-flagging statistic: a stream
// purchase is anomalous when it exceeds the pooled network mean by more than
// a configurable number of population standard deviations.
package anomaly

import (
	"math"

	"github.com/mbd888/spendwatch/internal/ledger"
)

// MinPoolSize is the fewest pooled purchases detection will run against.
// Anything smaller has no meaningful spread and is skipped outright.
const MinPoolSize = 2

// Result carries the outcome of one evaluation.
type Result struct {
	Flagged bool
	Mean    float64
	Stddev  float64
}

// Evaluate computes the mean and population standard deviation (divisor = n)
// of the pool's amounts and flags amount iff it strictly exceeds
// mean + stdThreshold*stddev. The second return is false when the pool is too
// small for detection; callers must not flag in that case.
func Evaluate(pool []ledger.Purchase, amount, stdThreshold float64) (Result, bool) {
	if len(pool) < MinPoolSize {
		return Result{}, false
	}

	var sum float64
	for _, p := range pool {
		sum += p.Amount
	}
	mean := sum / float64(len(pool))

	var sqDiff float64
	for _, p := range pool {
		d := p.Amount - mean
		sqDiff += d * d
	}
	stddev := math.Sqrt(sqDiff / float64(len(pool)))

	return Result{
		Flagged: amount > mean+stdThreshold*stddev,
		Mean:    mean,
		Stddev:  stddev,
	}, true
}
