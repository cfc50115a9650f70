package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars(t *testing.T) *VarTable {
	t.Helper()
	vt, err := NewVarTable([]VarDecl{
		{Name: "x", Kind: VarInt, Lower: 0, Upper: 100},
		{Name: "flag", Kind: VarBool},
		{Name: "y", Kind: VarInt, Lower: -5, Upper: 5},
	})
	require.NoError(t, err)
	return vt
}

func TestVarTablePackUnpack(t *testing.T) {
	vt := testVars(t)
	cs := vt.NewState()

	vt.Set(cs, 0, 42)
	vt.Set(cs, 1, 1)
	vt.Set(cs, 2, -3)

	assert.Equal(t, int64(42), vt.Get(cs, 0))
	assert.Equal(t, int64(1), vt.Get(cs, 1))
	assert.Equal(t, int64(-3), vt.Get(cs, 2))

	// Bounds are representable at both edges.
	vt.Set(cs, 0, 100)
	vt.Set(cs, 2, 5)
	assert.Equal(t, int64(100), vt.Get(cs, 0))
	assert.Equal(t, int64(5), vt.Get(cs, 2))
}

func TestVarTableWordSpanningLayout(t *testing.T) {
	// Enough wide variables to cross the 64-bit word boundary.
	decls := make([]VarDecl, 8)
	for i := range decls {
		decls[i] = VarDecl{Name: string(rune('a' + i)), Kind: VarInt, Lower: 0, Upper: 1000}
	}
	vt, err := NewVarTable(decls)
	require.NoError(t, err)
	require.Greater(t, vt.Words(), 1)

	cs := vt.NewState()
	for i := range decls {
		vt.Set(cs, i, int64(i*111))
	}
	for i := range decls {
		assert.Equal(t, int64(i*111), vt.Get(cs, i), "variable %d", i)
	}
}

func TestAbsorbingStateIsSentinel(t *testing.T) {
	vt := testVars(t)
	abs := vt.AbsorbingState()
	// Every variable decodes one below its lower bound.
	assert.Equal(t, int64(-1), vt.Get(abs, 0))
	assert.Equal(t, int64(-1), vt.Get(abs, 1))
	assert.Equal(t, int64(-6), vt.Get(abs, 2))

	real := vt.NewState()
	assert.False(t, abs.Equal(real))
}

func TestVarTableRejectsDuplicates(t *testing.T) {
	_, err := NewVarTable([]VarDecl{
		{Name: "x", Kind: VarInt, Lower: 0, Upper: 1},
		{Name: "x", Kind: VarInt, Lower: 0, Upper: 1},
	})
	require.Error(t, err)
}

func TestStateIndexIdempotence(t *testing.T) {
	vt := testVars(t)
	idx := NewStateIndex(vt.AbsorbingState())

	s1 := vt.NewState()
	vt.Set(s1, 0, 7)

	id1, wasNew := idx.FindOrAdd(s1)
	require.True(t, wasNew)
	require.NotEqual(t, AbsorbingID, id1)

	// Repeated lookups of an equal state return the same id.
	again := vt.NewState()
	vt.Set(again, 0, 7)
	id2, wasNew := idx.FindOrAdd(again)
	assert.False(t, wasNew)
	assert.Equal(t, id1, id2)

	got, ok := idx.Get(s1)
	require.True(t, ok)
	assert.Equal(t, id1, got)
	assert.True(t, idx.StateOf(id1).Equal(s1))
}

func TestStateIndexReservesAbsorbing(t *testing.T) {
	vt := testVars(t)
	idx := NewStateIndex(vt.AbsorbingState())
	require.Equal(t, 1, idx.Size())

	id, wasNew := idx.FindOrAdd(vt.AbsorbingState())
	assert.Equal(t, AbsorbingID, id)
	assert.False(t, wasNew)

	// The first real state receives id 1.
	id, _ = idx.FindOrAdd(vt.NewState())
	assert.Equal(t, StateID(1), id)
}

func TestStagingBufferOutOfOrderAndDuplicates(t *testing.T) {
	sb := NewStagingBuffer()
	sb.Add(2, 1, 0.5)
	sb.Add(0, 0, 1.0)
	sb.Add(1, 2, 0.3)
	sb.Add(1, 2, 0.7) // duplicate target, summed at finalize
	sb.Add(2, 0, 0.5)

	m := sb.Finalize(3)
	require.Equal(t, 3, m.NumRows())
	assert.InDelta(t, 1.0, m.Entry(0, 0), 1e-12)
	assert.InDelta(t, 1.0, m.Entry(1, 2), 1e-12)
	assert.InDelta(t, 0.5, m.Entry(2, 0), 1e-12)
	assert.InDelta(t, 0.5, m.Entry(2, 1), 1e-12)
	assert.Equal(t, 4, m.NNZ())

	// Columns sorted within the row.
	cols, _ := m.Row(2)
	assert.Equal(t, []StateID{0, 1}, cols)
}

func TestStagingBufferRewriteTarget(t *testing.T) {
	sb := NewStagingBuffer()
	sb.Add(3, 7, 2.5)
	require.True(t, sb.RewriteTarget(3, 7, AbsorbingID))
	require.False(t, sb.RewriteTarget(3, 7, AbsorbingID))

	m := sb.Finalize(4)
	assert.InDelta(t, 2.5, m.Entry(3, AbsorbingID), 1e-12)
	assert.Zero(t, m.Entry(3, 7))
}

func TestStagingBufferMerge(t *testing.T) {
	a := NewStagingBuffer()
	b := NewStagingBuffer()
	a.Add(0, 1, 1.0)
	b.Add(0, 1, 0.5)
	b.Add(2, 0, 0.25)

	a.Merge(b)
	assert.Zero(t, b.Len())

	m := a.Finalize(3)
	assert.InDelta(t, 1.5, m.Entry(0, 1), 1e-12)
	assert.InDelta(t, 0.25, m.Entry(2, 0), 1e-12)
}

func TestStagingBufferReset(t *testing.T) {
	sb := NewStagingBuffer()
	sb.Add(0, 1, 1.0)
	sb.Reset()
	assert.Zero(t, sb.Len())
	assert.False(t, sb.HasRow(0))
	m := sb.Finalize(2)
	assert.Zero(t, m.NNZ())
}
