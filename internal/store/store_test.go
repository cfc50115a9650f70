package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stamina/internal/builder"
	"stamina/internal/storage"
)

func sampleResult(t *testing.T) *builder.Result {
	t.Helper()
	vt, err := storage.NewVarTable([]storage.VarDecl{
		{Name: "x", Kind: storage.VarInt, Lower: 0, Upper: 5},
	})
	require.NoError(t, err)

	idx := storage.NewStateIndex(vt.AbsorbingState())
	for x := int64(0); x < 2; x++ {
		cs := vt.NewState()
		vt.Set(cs, 0, x)
		idx.FindOrAdd(cs)
	}

	sb := storage.NewStagingBuffer()
	sb.Add(0, 0, 1.0)
	sb.Add(1, 2, 0.5)
	sb.Add(2, 0, 1.0)

	return &builder.Result{
		RunID:         "run-1",
		Method:        builder.MethodPriority,
		Matrix:        sb.Finalize(3),
		Index:         idx,
		InitialStates: []storage.StateID{1},
		Perimeter:     []storage.StateID{2},
		PiHat:         1e-4,
		Iterations:    1,
	}
}

func openStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, "birth-death", sampleResult(t)))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "birth-death", runs[0].Model)
	assert.Equal(t, "priority", runs[0].Method)
	assert.Equal(t, 3, runs[0].States)
	assert.Equal(t, 3, runs[0].Transitions)
	assert.InDelta(t, 1e-4, runs[0].PiHat, 1e-12)
}

func TestTransitionsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, "m", sampleResult(t)))

	trs, err := s.Transitions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trs, 3)
	assert.Equal(t, storage.Transition{From: 0, To: 0, Rate: 1.0}, trs[0])
	assert.Equal(t, storage.Transition{From: 1, To: 2, Rate: 0.5}, trs[1])
	assert.Equal(t, storage.Transition{From: 2, To: 0, Rate: 1.0}, trs[2])
}

func TestDuplicateRunIDRejected(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveResult(ctx, "m", sampleResult(t)))
	assert.Error(t, s.SaveResult(ctx, "m", sampleResult(t)))
}

func TestEmptyStoreLists(t *testing.T) {
	s := openStore(t)
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}
