package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stamina/internal/property"
	"stamina/internal/storage"
)

type scored struct {
	id    int
	score float64
}

func newScoredQueue() *Queue[scored] {
	return NewQueue(func(a, b scored) bool {
		if a.score != b.score {
			return a.score < b.score
		}
		return a.id > b.id // lower id wins ties
	})
}

func TestQueueOrdersByScore(t *testing.T) {
	q := newScoredQueue()
	for _, s := range []scored{{1, 0.5}, {2, 2.0}, {3, 1.0}, {4, 0.1}} {
		q.Push(s)
	}
	var order []int
	for _, item := range q.Drain() {
		order = append(order, item.id)
	}
	assert.Equal(t, []int{2, 3, 1, 4}, order)
	assert.Zero(t, q.Len())
}

func TestQueueTieBreaksOnLowerID(t *testing.T) {
	q := newScoredQueue()
	q.Push(scored{7, 1.0})
	q.Push(scored{3, 1.0})
	q.Push(scored{5, 1.0})

	top, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, top.id)
}

func TestQueueRemove(t *testing.T) {
	q := newScoredQueue()
	for i := 0; i < 10; i++ {
		q.Push(scored{i, float64(i)})
	}
	require.True(t, q.Remove(func(s scored) bool { return s.id == 5 }))
	require.False(t, q.Remove(func(s scored) bool { return s.id == 5 }))

	for _, item := range q.Drain() {
		assert.NotEqual(t, 5, item.id)
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := newScoredQueue()
	_, ok := q.Pop()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
}

func eventSetup(t *testing.T) (*storage.VarTable, property.Node) {
	t.Helper()
	vt, err := storage.NewVarTable([]storage.VarDecl{
		{Name: "x", Kind: storage.VarInt, Lower: 0, Upper: 1000},
	})
	require.NoError(t, err)
	prop, err := property.Parse("P=? [ true U x >= 100 ]", vt)
	require.NoError(t, err)
	return vt, prop.Event
}

func stateAt(vt *storage.VarTable, x int64) storage.CompressedState {
	cs := vt.NewState()
	vt.Set(cs, 0, x)
	return cs
}

func TestRareEventFavorsBoundary(t *testing.T) {
	vt, tree := eventSetup(t)
	esp := NewEventStatePriority(EventRare, tree, 1.0)
	require.True(t, esp.Enabled())

	near := esp.Score(vt, stateAt(vt, 90))
	far := esp.Score(vt, stateAt(vt, 5))
	assert.Greater(t, near, far)
}

func TestCommonEventInvertsSign(t *testing.T) {
	vt, tree := eventSetup(t)
	esp := NewEventStatePriority(EventCommon, tree, 1.0)

	near := esp.Score(vt, stateAt(vt, 90))
	far := esp.Score(vt, stateAt(vt, 5))
	assert.Greater(t, far, near)
}

func TestUndefinedEventScoresZero(t *testing.T) {
	vt, tree := eventSetup(t)
	esp := NewEventStatePriority(EventUndefined, tree, 1.0)
	assert.False(t, esp.Enabled())
	assert.Zero(t, esp.Score(vt, stateAt(vt, 90)))
}

func TestParseEventKind(t *testing.T) {
	for s, want := range map[string]EventKind{
		"":       EventUndefined,
		"rare":   EventRare,
		"common": EventCommon,
	} {
		kind, ok := ParseEventKind(s)
		require.True(t, ok, s)
		assert.Equal(t, want, kind)
	}
	_, ok := ParseEventKind("bogus")
	assert.False(t, ok)
}
