package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProduction(t *testing.T) {
	l, err := ParseProduction("WW")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Count(Wood))
	assert.Empty(t, l.Choices)

	l, err = ParseProduction("W/S/O/C")
	require.NoError(t, err)
	require.Len(t, l.Choices, 1)
	assert.Equal(t, Group{Wood, Stone, Ore, Clay}, l.Choices[0])

	_, err = ParseProduction("2W")
	assert.ErrorIs(t, err, ErrMalformedCost)
}

func TestLedger_MergeAndCopy(t *testing.T) {
	a := NewLedger()
	a.Add(Wood, 1)
	a.AddChoice(Group{Clay, Ore})

	b := NewLedger()
	b.Add(Wood, 2)
	b.AddChoice(Group{Glass})

	a.Merge(b)
	assert.Equal(t, 3, a.Count(Wood))
	assert.Equal(t, 1, a.Count(Glass))
	assert.Len(t, a.Choices, 1)

	c := a.Copy()
	c.Add(Wood, 5)
	assert.Equal(t, 3, a.Count(Wood), "copy must not alias")
	assert.Equal(t, "WWWG C/O", a.String())
}

func TestLedger_Reduce(t *testing.T) {
	t.Run("plain counts", func(t *testing.T) {
		l := NewLedger()
		l.Add(Wood, 1)
		l.Add(Stone, 3)

		red := l.Reduce(MustParseCost("WWS").Requirement)
		assert.Equal(t, []Kind{Wood, Stone}, red.Used)
		assert.Equal(t, 1, red.Remaining.Need(Wood))
		assert.Equal(t, 0, red.Remaining.Need(Stone))
		assert.Empty(t, red.Open)
	})

	t.Run("forced choice is consumed", func(t *testing.T) {
		l := NewLedger()
		l.AddChoice(Group{Wood, Glass})

		red := l.Reduce(MustParseCost("WS").Requirement)
		assert.Equal(t, []Kind{Wood}, red.Used)
		assert.Equal(t, "S1", red.Remaining.Signature())
		assert.Empty(t, red.Open)
	})

	t.Run("forcing cascades to fixpoint", func(t *testing.T) {
		l := NewLedger()
		l.AddChoice(Group{Wood, Clay})
		l.AddChoice(Group{Clay, Ore})

		// W/C is ambiguous until C/O takes the clay.
		red := l.Reduce(MustParseCost("WC").Requirement)
		assert.Equal(t, []Kind{Wood, Clay}, red.Used)
		assert.True(t, red.Remaining.Empty())
		assert.Empty(t, red.Open)
	})

	t.Run("ambiguous choice stays open", func(t *testing.T) {
		l := NewLedger()
		l.AddChoice(Group{Wood, Clay})

		red := l.Reduce(MustParseCost("WC").Requirement)
		assert.Empty(t, red.Used)
		require.Len(t, red.Open, 1)
		assert.Equal(t, 2, red.Remaining.Total())
	})

	t.Run("irrelevant choice is dropped", func(t *testing.T) {
		l := NewLedger()
		l.AddChoice(Group{Loom, Glass})

		red := l.Reduce(MustParseCost("O").Requirement)
		assert.Empty(t, red.Used)
		assert.Empty(t, red.Open)
		assert.Equal(t, 1, red.Remaining.Need(Ore))
	})

	t.Run("nil ledger covers nothing", func(t *testing.T) {
		var l *Ledger
		red := l.Reduce(MustParseCost("OO").Requirement)
		assert.Equal(t, 2, red.Remaining.Need(Ore))
	})
}

func TestLedger_Available(t *testing.T) {
	l := NewLedger()
	l.Add(Wood, 1)
	l.AddChoice(Group{Wood, Clay})
	l.AddChoice(Group{Clay, Ore})

	assert.Equal(t, 2, l.Available(Wood, 3))
	assert.Equal(t, 1, l.Available(Wood, 1))
	assert.Equal(t, 2, l.Available(Clay, 2))
	assert.Equal(t, 0, l.Available(Glass, 1))
	assert.Equal(t, 0, l.Available(Wood, 0))
}
