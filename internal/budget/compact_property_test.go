package budget

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestShouldCompactProperty verifies the universal property
// "budget.utilization >= threshold => next turn runs compaction before
// issuing the main request", expressed here as ShouldCompact's contract
// (the turn engine's computeBudget/RunTurn step calls ShouldCompact before
// every model request — see internal/turn/engine.go — so ShouldCompact
// returning true is exactly "compaction runs before the main request").
// Grounded on the gopter ForAll/TestingRun pattern in
// goadesign-goa-ai's runtime/a2a/retry/retry_test.go.
func TestShouldCompactProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("utilization at or above threshold always triggers compaction", prop.ForAll(
		func(utilizationPct, thresholdPct int) bool {
			utilization := float64(utilizationPct) / 100.0
			threshold := float64(thresholdPct) / 100.0
			alloc := Allocation{Utilization: utilization}
			if utilization >= threshold {
				return ShouldCompact(alloc, threshold, false)
			}
			return true // not the case under test; vacuously satisfied
		},
		gen.IntRange(0, 200),
		gen.IntRange(1, 100),
	))

	properties.Property("utilization strictly below threshold never triggers compaction absent overflow", prop.ForAll(
		func(utilizationPct, thresholdPct int) bool {
			utilization := float64(utilizationPct) / 100.0
			threshold := float64(thresholdPct) / 100.0
			alloc := Allocation{Utilization: utilization}
			if utilization < threshold {
				return !ShouldCompact(alloc, threshold, false)
			}
			return true
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 100),
	))

	properties.Property("a previous context-window overflow always forces compaction regardless of utilization", prop.ForAll(
		func(utilizationPct int) bool {
			alloc := Allocation{Utilization: float64(utilizationPct) / 100.0}
			return ShouldCompact(alloc, DefaultCompactThreshold, true)
		},
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
