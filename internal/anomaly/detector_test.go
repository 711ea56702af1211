package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/spendwatch/internal/ledger"
)

var t0 = time.Date(2017, 6, 13, 11, 33, 1, 0, time.UTC)

func pool(amounts ...float64) []ledger.Purchase {
	out := make([]ledger.Purchase, len(amounts))
	for i, a := range amounts {
		out[i] = ledger.Purchase{Seq: int64(i), Timestamp: t0, Amount: a}
	}
	return out
}

func TestEvaluateFixtureStatistics(t *testing.T) {
	res, ok := Evaluate(pool(59.28, 11.20), 0, 3)
	require.True(t, ok)

	assert.Equal(t, "35.24", fmt.Sprintf("%.2f", res.Mean))
	assert.Equal(t, "24.04", fmt.Sprintf("%.2f", res.Stddev))
}

func TestEvaluateUsesPopulationStddev(t *testing.T) {
	// Divisor is n, not n-1: stddev of {2,4,4,4,5,5,7,9} is exactly 2.
	res, ok := Evaluate(pool(2, 4, 4, 4, 5, 5, 7, 9), 0, 3)
	require.True(t, ok)

	assert.InDelta(t, 5.0, res.Mean, 1e-12)
	assert.InDelta(t, 2.0, res.Stddev, 1e-12)
}

func TestEvaluateSkipsSmallPools(t *testing.T) {
	_, ok := Evaluate(nil, 100, 3)
	assert.False(t, ok)

	_, ok = Evaluate(pool(10), 100, 3)
	assert.False(t, ok)

	_, ok = Evaluate(pool(10, 20), 100, 3)
	assert.True(t, ok)
}

func TestEvaluateFlaggingIsStrict(t *testing.T) {
	// mean=5, stddev=2, S=3 → threshold 11
	p := pool(2, 4, 4, 4, 5, 5, 7, 9)

	res, ok := Evaluate(p, 11.0, 3)
	require.True(t, ok)
	assert.False(t, res.Flagged, "amount equal to mean+S*stddev must not flag")

	res, ok = Evaluate(p, 11.01, 3)
	require.True(t, ok)
	assert.True(t, res.Flagged, "one cent above the threshold must flag")
}

func TestEvaluateThresholdMultiplier(t *testing.T) {
	p := pool(2, 4, 4, 4, 5, 5, 7, 9) // mean=5, stddev=2

	res, ok := Evaluate(p, 8, 1) // threshold 7
	require.True(t, ok)
	assert.True(t, res.Flagged)

	res, ok = Evaluate(p, 8, 2) // threshold 9
	require.True(t, ok)
	assert.False(t, res.Flagged)
}
