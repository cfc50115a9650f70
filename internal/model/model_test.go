package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const birthDeathYAML = `
name: birth-death
type: ctmc
species:
  - {name: x, initial: 2, lower: 0, upper: 10}
reactions:
  - {name: birth, rate: 1.5, update: {x: 1}}
  - {name: death, rate: 0.5, reactants: {x: 1}, update: {x: -1}}
`

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndExpand(t *testing.T) {
	m, err := Load(writeModel(t, birthDeathYAML), "")
	require.NoError(t, err)
	assert.Equal(t, "birth-death", m.Name)

	initial, err := m.InitialStates()
	require.NoError(t, err)
	require.Len(t, initial, 1)
	x, ok := m.Vars().GetByName(initial[0], "x")
	require.True(t, ok)
	assert.Equal(t, int64(2), x)

	behavior, err := m.Expand(initial[0])
	require.NoError(t, err)
	require.Len(t, behavior.Choices, 1)
	trs := behavior.Choices[0].Transitions
	require.Len(t, trs, 2)

	// birth at constant rate, death with mass-action propensity 0.5*2.
	assert.InDelta(t, 1.5, trs[0].Rate, 1e-12)
	assert.InDelta(t, 1.0, trs[1].Rate, 1e-12)
	assert.InDelta(t, 2.5, behavior.TotalRate(), 1e-12)
}

func TestExpandDeterministic(t *testing.T) {
	m, err := Load(writeModel(t, birthDeathYAML), "")
	require.NoError(t, err)
	initial, _ := m.InitialStates()

	a, err := m.Expand(initial[0])
	require.NoError(t, err)
	b, err := m.Expand(initial[0])
	require.NoError(t, err)
	require.Equal(t, len(a.Choices[0].Transitions), len(b.Choices[0].Transitions))
	for i := range a.Choices[0].Transitions {
		assert.Equal(t, a.Choices[0].Transitions[i].Rate, b.Choices[0].Transitions[i].Rate)
		assert.True(t, a.Choices[0].Transitions[i].State.Equal(b.Choices[0].Transitions[i].State))
	}
}

func TestBoundsDisableReactions(t *testing.T) {
	m, err := Load(writeModel(t, birthDeathYAML), "")
	require.NoError(t, err)

	// At the upper bound the birth reaction is disabled.
	top := m.Vars().NewState()
	m.Vars().Set(top, 0, 10)
	behavior, err := m.Expand(top)
	require.NoError(t, err)
	require.Len(t, behavior.Choices, 1)
	require.Len(t, behavior.Choices[0].Transitions, 1)
	x, _ := m.Vars().GetByName(behavior.Choices[0].Transitions[0].State, "x")
	assert.Equal(t, int64(9), x)

	// At zero the death propensity vanishes.
	bottom := m.Vars().NewState()
	behavior, err = m.Expand(bottom)
	require.NoError(t, err)
	require.Len(t, behavior.Choices[0].Transitions, 1)
}

func TestGuardsGateReactions(t *testing.T) {
	src := `
species:
  - {name: x, initial: 0, lower: 0, upper: 100}
reactions:
  - {name: grow, rate: 1.0, guard: "x <= 4", update: {x: 1}}
`
	m, err := Load(writeModel(t, src), "")
	require.NoError(t, err)

	cs := m.Vars().NewState()
	m.Vars().Set(cs, 0, 5)
	behavior, err := m.Expand(cs)
	require.NoError(t, err)
	assert.True(t, behavior.Empty())
	assert.True(t, behavior.Expanded)
}

func TestConstantsOverrideRates(t *testing.T) {
	m, err := Load(writeModel(t, birthDeathYAML), "birth=4.0")
	require.NoError(t, err)
	initial, _ := m.InitialStates()
	behavior, err := m.Expand(initial[0])
	require.NoError(t, err)
	assert.InDelta(t, 4.0, behavior.Choices[0].Transitions[0].Rate, 1e-12)
}

func TestCompileRejectsBadModels(t *testing.T) {
	cases := map[string]string{
		"non-ctmc": `
type: mdp
species: [{name: x, initial: 0, lower: 0, upper: 1}]
reactions: [{name: r, rate: 1.0, update: {x: 1}}]
`,
		"no species": `
type: ctmc
reactions: [{name: r, rate: 1.0, update: {x: 1}}]
`,
		"unknown species in update": `
species: [{name: x, initial: 0, lower: 0, upper: 1}]
reactions: [{name: r, rate: 1.0, update: {y: 1}}]
`,
		"nonpositive rate": `
species: [{name: x, initial: 0, lower: 0, upper: 1}]
reactions: [{name: r, rate: 0.0, update: {x: 1}}]
`,
		"initial out of bounds": `
species: [{name: x, initial: 9, lower: 0, upper: 5}]
reactions: [{name: r, rate: 1.0, update: {x: 1}}]
`,
	}
	for name, src := range cases {
		_, err := Load(writeModel(t, src), "")
		assert.Error(t, err, name)
	}
}

func TestNetworkExtraction(t *testing.T) {
	m, err := Load(writeModel(t, birthDeathYAML), "")
	require.NoError(t, err)
	n := m.Network()
	require.Equal(t, []string{"x"}, n.Species)
	require.Len(t, n.Reactions, 2)
	assert.Equal(t, []int64{1}, n.Reactions[0].Update)
	assert.Equal(t, []int64{-1}, n.Reactions[1].Update)
}
