package builder

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stamina/internal/property"
)

func propertyParseHelper(o *testOracle) (*property.Property, error) {
	return property.Parse("P=? [ true U[0,10] x >= 8 ]", o.vt)
}

// S6: on any finite model the iterative and re-exploring strategies
// produce identical matrices and identical pi-hat sequences.
func TestIterativeReExploringEquivalence(t *testing.T) {
	const maxX = 16
	opts := defaultTestOptions()
	opts.Kappa = 0.5

	bIter, err := NewIterative(newTestOracle(t, maxX, 0, halvingChain(maxX)), nil, opts, nil)
	require.NoError(t, err)
	resIter, err := bIter.Build(context.Background())
	require.NoError(t, err)

	bRe, err := NewReExploring(newTestOracle(t, maxX, 0, halvingChain(maxX)), nil, opts, nil)
	require.NoError(t, err)
	resRe, err := bRe.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(resIter.Matrix, resRe.Matrix))
	assert.Equal(t, resIter.NumStates(), resRe.NumStates())

	require.Equal(t, len(resIter.PiHatHistory), len(resRe.PiHatHistory))
	for i := range resIter.PiHatHistory {
		assert.InDelta(t, resIter.PiHatHistory[i], resRe.PiHatHistory[i], 1e-12,
			"pass %d pi-hat diverged", i+1)
	}
	assert.Equal(t, resIter.Perimeter, resRe.Perimeter)
	assert.Equal(t, resIter.DeadlockStates, resRe.DeadlockStates)
}

// The equivalence holds under property-based refinement too.
func TestEquivalenceWithProperty(t *testing.T) {
	const maxX = 60
	succ := func(x int64) []xr {
		if x >= maxX {
			return nil
		}
		return []xr{{x + 1, 1.0}}
	}
	opts := defaultTestOptions()

	oIter := newTestOracle(t, maxX, 0, succ)
	propIter, err := propertyParseHelper(oIter)
	require.NoError(t, err)
	bIter, err := NewIterative(oIter, propIter, opts, nil)
	require.NoError(t, err)
	resIter, err := bIter.Build(context.Background())
	require.NoError(t, err)

	oRe := newTestOracle(t, maxX, 0, succ)
	propRe, err := propertyParseHelper(oRe)
	require.NoError(t, err)
	bRe, err := NewReExploring(oRe, propRe, opts, nil)
	require.NoError(t, err)
	resRe, err := bRe.Build(context.Background())
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(resIter.Matrix, resRe.Matrix))
	assert.Equal(t, resIter.PropertyAbsorbed, resRe.PropertyAbsorbed)
}
