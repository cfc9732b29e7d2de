package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCost(t *testing.T) {
	tests := []struct {
		input   string
		coins   int
		fixed   map[Kind]int
		choices []Group
	}{
		{"", 0, map[Kind]int{}, nil},
		{"1", 1, map[Kind]int{}, nil},
		{"W", 0, map[Kind]int{Wood: 1}, nil},
		{"WW", 0, map[Kind]int{Wood: 2}, nil},
		{"WPL", 0, map[Kind]int{Wood: 1, Papyrus: 1, Loom: 1}, nil},
		{"wpl", 0, map[Kind]int{Wood: 1, Papyrus: 1, Loom: 1}, nil},
		{"CCOGPL", 0, map[Kind]int{Clay: 2, Ore: 1, Glass: 1, Papyrus: 1, Loom: 1}, nil},
		{"W/CS", 0, map[Kind]int{Stone: 1}, []Group{{Wood, Clay}}},
		{"2 O O", 2, map[Kind]int{Ore: 2}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cost, err := ParseCost(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.coins, cost.Coins)
			assert.Equal(t, tt.fixed, cost.Requirement.Fixed)
			assert.Equal(t, tt.choices, cost.Requirement.Choices)
		})
	}
}

func TestParseCost_Malformed(t *testing.T) {
	for _, input := range []string{"WX", "W?", "W//C", "/W"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseCost(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedCost))
		})
	}
}

func TestCost_Free(t *testing.T) {
	assert.True(t, MustParseCost("").Free())
	assert.False(t, MustParseCost("1").Free())
	assert.False(t, MustParseCost("W").Free())
}

func TestRequirement_Signature(t *testing.T) {
	a := MustParseCost("WOW").Requirement
	b := MustParseCost("OWW").Requirement
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, "W2O1", a.Signature())

	c := MustParseCost("WO").Requirement
	assert.NotEqual(t, a.Signature(), c.Signature())
}

func TestRequirement_Expand(t *testing.T) {
	req := MustParseCost("S W/C").Requirement
	alts := req.Expand()
	require.Len(t, alts, 2)
	sigs := []string{alts[0].Signature(), alts[1].Signature()}
	assert.ElementsMatch(t, []string{"W1S1", "S1C1"}, sigs)

	plain := MustParseCost("SS").Requirement.Expand()
	require.Len(t, plain, 1)
	assert.Equal(t, "S2", plain[0].Signature())
}

func TestKind_Classes(t *testing.T) {
	for _, k := range RawKinds() {
		assert.True(t, k.IsRaw(), string(k))
		assert.False(t, k.IsManufactured(), string(k))
	}
	for _, k := range ManufacturedKinds() {
		assert.True(t, k.IsManufactured(), string(k))
		assert.False(t, k.IsRaw(), string(k))
	}
	assert.Len(t, AllKinds(), 7)
}
