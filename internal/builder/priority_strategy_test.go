package builder

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stamina/internal/storage"
)

// fanOracle is the pre-termination scenario: s0 splits its mass over two
// light branches (a, b) and one heavy tomb (c); a and b both feed t.
// With pre-termination on, t is pre-terminated when a discovers it and
// un-pre-terminated when b's mass arrives.
func fanOracle(t *testing.T, bFeedsT bool) *testOracle {
	// x: 0=s0, 1=a, 2=b, 3=c, 4=t
	return newTestOracle(t, 4, 0, func(x int64) []xr {
		switch x {
		case 0:
			return []xr{{1, 5}, {2, 5}, {3, 90}}
		case 1:
			return []xr{{4, 1}}
		case 2:
			if bFeedsT {
				return []xr{{4, 1}}
			}
			return nil
		default:
			return nil
		}
	})
}

func priorityOptions() Options {
	opts := DefaultOptions()
	opts.ProbWin = 0.01
	return opts
}

// Testable property 6: after pre-termination and reversal, t's in-edges
// equal the edges it would have had with pre-termination off.
func TestPreTerminationReversibility(t *testing.T) {
	withPT := priorityOptions()
	withPT.Preterminate = true
	bPT, err := NewPriority(fanOracle(t, true), nil, withPT, nil)
	require.NoError(t, err)
	resPT, err := bPT.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resPT.PreTerminated, "t should have been un-pre-terminated")

	without := priorityOptions()
	bPlain, err := NewPriority(fanOracle(t, true), nil, without, nil)
	require.NoError(t, err)
	resPlain, err := bPlain.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(resPlain.Matrix, resPT.Matrix),
		"pre-termination must not change the final matrix when reversed")
}

// When the pre-terminated state never recovers, its deferred in-edges
// merge into the absorber and the state self-loops.
func TestPreTerminationMergesIntoAbsorber(t *testing.T) {
	opts := priorityOptions()
	opts.Preterminate = true
	o := fanOracle(t, false)
	b, err := NewPriority(o, nil, opts, nil)
	require.NoError(t, err)

	res, err := b.Build(context.Background())
	// The frontier runs dry with t's mass still escaped; the strategy
	// cannot refine further.
	require.ErrorIs(t, err, ErrBudgetExceeded)
	require.NotNil(t, res)

	tID, ok := res.Index.Get(o.state(4))
	require.True(t, ok)
	require.Contains(t, res.PreTerminated, tID)
	assert.Zero(t, o.expansions[4], "pre-terminated state must never expand")

	// t self-loops; a's held-back edge was redirected to the sink.
	cols, rates := res.Matrix.Row(tID)
	assert.Equal(t, []storage.StateID{tID}, cols)
	assert.Equal(t, []float64{1.0}, rates)

	aID, ok := res.Index.Get(o.state(1))
	require.True(t, ok)
	cols, rates = res.Matrix.Row(aID)
	assert.Equal(t, []storage.StateID{storage.AbsorbingID}, cols)
	assert.Equal(t, []float64{1.0}, rates)
}

// The priority strategy terminates on an unbounded chain once the
// shrinking window overtakes the escaping mass.
func TestPriorityTruncatesInfiniteChain(t *testing.T) {
	o := newTestOracle(t, 1_000_000, 0, halvingChain(1_000_000))
	opts := DefaultOptions()
	b, err := NewPriority(o, nil, opts, nil)
	require.NoError(t, err)

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, res.PiHat, opts.ProbWin)
	assert.NotEmpty(t, res.Perimeter)
	checkAbsorbingSoundness(t, o, res)
}

// On a finite model the priority strategy drains the frontier and
// produces the same matrix as the iterative strategy.
func TestPriorityMatchesIterativeOnFiniteModel(t *testing.T) {
	succ := func(x int64) []xr {
		switch x {
		case 0:
			return []xr{{1, 2.0}}
		case 1:
			return []xr{{2, 1.0}}
		default:
			return []xr{{0, 1.0}}
		}
	}
	bIter, err := NewIterative(newTestOracle(t, 2, 0, succ), nil, defaultTestOptions(), nil)
	require.NoError(t, err)
	resIter, err := bIter.Build(context.Background())
	require.NoError(t, err)

	bPrio, err := NewPriority(newTestOracle(t, 2, 0, succ), nil, DefaultOptions(), nil)
	require.NoError(t, err)
	resPrio, err := bPrio.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(resIter.Matrix, resPrio.Matrix))
	assert.InDelta(t, resIter.PiHat, resPrio.PiHat, 1e-12)
}
