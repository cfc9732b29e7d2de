package combo_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
)

const unlimited = 1000

func ledger(t *testing.T, productions ...string) *resource.Ledger {
	t.Helper()
	l := resource.NewLedger()
	for _, p := range productions {
		require.NoError(t, l.AddProduction(p))
	}
	return l
}

func study() resource.Requirement {
	return resource.MustParseCost("WPL").Requirement
}

func TestSolve_Study(t *testing.T) {
	rates := market.Default()

	t.Run("own resources cover everything", func(t *testing.T) {
		own := ledger(t, "G", "W", "P", "L")
		combos := combo.Solve(study(), own, combo.Neighbors{}, rates, 0)
		require.Len(t, combos, 1)
		assert.Equal(t, 0, combos[0].Total())
		assert.Equal(t, []resource.Kind{resource.Wood, resource.Loom, resource.Papyrus}, combos[0].Self.Resources)
	})

	t.Run("buys everything with cash", func(t *testing.T) {
		nb := combo.Neighbors{
			Clockwise:        ledger(t, "G", "W", "P"),
			CounterClockwise: ledger(t, "G", "L"),
		}
		combos := combo.Solve(study(), ledger(t, "G"), nb, rates, 6)
		require.Len(t, combos, 1)
		c := combos[0]
		assert.Equal(t, 6, c.Total())
		assert.Equal(t, []resource.Kind{resource.Wood, resource.Papyrus}, c.Clockwise.Resources)
		assert.Equal(t, 4, c.Clockwise.Cost)
		assert.Equal(t, []resource.Kind{resource.Loom}, c.CounterClockwise.Resources)
		assert.Equal(t, 2, c.CounterClockwise.Cost)
	})

	t.Run("blocked without resources or cash", func(t *testing.T) {
		nb := combo.Neighbors{Clockwise: ledger(t, "G"), CounterClockwise: ledger(t, "G")}
		combos := combo.Solve(study(), ledger(t, "G"), nb, rates, 0)
		assert.Empty(t, combos)
		assert.NotNil(t, combos)
	})

	t.Run("wonder stages plus one purchase", func(t *testing.T) {
		own := ledger(t, "G", "C/S/O/W", "L/G/P")
		nb := combo.Neighbors{
			Clockwise:        ledger(t, "G", "W", "P"),
			CounterClockwise: ledger(t, "G", "L"),
		}
		combos := combo.Solve(study(), own, nb, rates, 2)
		require.Len(t, combos, 2)
		for _, c := range combos {
			assert.Equal(t, 2, c.Total())
		}
		// Equal totals: the combo with the lower clockwise cost comes first.
		assert.Equal(t, []resource.Kind{resource.Loom}, combos[0].CounterClockwise.Resources)
		assert.Equal(t, []resource.Kind{resource.Papyrus}, combos[1].Clockwise.Resources)
	})

	t.Run("two either/or units resolve to one combo", func(t *testing.T) {
		own := ledger(t, "G", "C/S/O/W", "L/G/P", "L/G/P")
		combos := combo.Solve(study(), own, combo.Neighbors{}, rates, 0)
		require.Len(t, combos, 1)
		assert.Equal(t, 0, combos[0].Total())
	})
}

func TestSolve_DiscountedRates(t *testing.T) {
	rates := market.Compute([]market.Discount{{Goods: market.Raw, Direction: market.Clockwise}})
	nb := combo.Neighbors{
		Clockwise:        ledger(t, "O"),
		CounterClockwise: ledger(t, "O"),
	}

	combos := combo.Solve(resource.MustParseCost("O").Requirement, nil, nb, rates, unlimited)
	require.Len(t, combos, 2)
	assert.Equal(t, 1, combos[0].Clockwise.Cost)
	assert.Equal(t, 2, combos[1].CounterClockwise.Cost)
}

func TestSolve_SplitAcrossNeighbours(t *testing.T) {
	nb := combo.Neighbors{
		Clockwise:        ledger(t, "SS"),
		CounterClockwise: ledger(t, "S", "S/C"),
	}
	combos := combo.Solve(resource.MustParseCost("SS").Requirement, nil, nb, market.Default(), unlimited)

	// 2+0, 1+1 and 0+2: all cost 4.
	require.Len(t, combos, 3)
	assert.Equal(t, 0, combos[0].Clockwise.Cost)
	assert.Equal(t, 2, combos[1].Clockwise.Cost)
	assert.Equal(t, 4, combos[2].Clockwise.Cost)
}

func TestSolveCost_CoinCost(t *testing.T) {
	own := ledger(t, "W")

	combos := combo.SolveCost(resource.MustParseCost("1"), own, combo.Neighbors{}, market.Default(), 1)
	require.Len(t, combos, 1)
	assert.Equal(t, 1, combos[0].Self.Cost)
	assert.Equal(t, 1, combos[0].Total())

	assert.Empty(t, combo.SolveCost(resource.MustParseCost("1"), own, combo.Neighbors{}, market.Default(), 0))
}

func TestSolve_RequirementChoices(t *testing.T) {
	own := ledger(t, "C")
	combos := combo.Solve(resource.MustParseCost("W/C").Requirement, own, combo.Neighbors{}, market.Default(), 0)
	require.Len(t, combos, 1)
	assert.Equal(t, []resource.Kind{resource.Clay}, combos[0].Self.Resources)
}

func TestFree(t *testing.T) {
	free := combo.Free()
	require.Len(t, free, 1)
	assert.Equal(t, 0, free[0].Total())
	assert.NotNil(t, free[0].Self.Resources)
}

// randomCase builds a small requirement with own and neighbour production.
type randomCase struct {
	req  resource.Requirement
	own  *resource.Ledger
	cw   *resource.Ledger
	ccw  *resource.Ledger
	rate market.Rates
}

func newRandomCase(rng *rand.Rand) randomCase {
	kinds := resource.AllKinds()
	pick := func() resource.Kind { return kinds[rng.Intn(3)] } // W, S, C keep collisions likely

	req := resource.NewRequirement()
	for i := 0; i < 1+rng.Intn(4); i++ {
		req.Fixed[pick()]++
	}

	fill := func(plain, groups int) *resource.Ledger {
		l := resource.NewLedger()
		for i := 0; i < plain; i++ {
			l.Add(pick(), 1)
		}
		for i := 0; i < groups; i++ {
			a, b := pick(), pick()
			if a != b {
				l.AddChoice(resource.Group{a, b})
			}
		}
		return l
	}

	var discounts []market.Discount
	if rng.Intn(2) == 0 {
		discounts = append(discounts, market.Discount{Goods: market.Raw, Direction: market.CounterClockwise})
	}

	return randomCase{
		req:  req,
		own:  fill(rng.Intn(3), rng.Intn(3)),
		cw:   fill(rng.Intn(3), 0),
		ccw:  fill(rng.Intn(3), 0),
		rate: market.Compute(discounts),
	}
}

// feasible brute-forces every assignment of the own either/or units and
// checks the remainder against plain neighbour stock.
func (rc randomCase) feasible() bool {
	var try func(i int, rem map[resource.Kind]int) bool
	try = func(i int, rem map[resource.Kind]int) bool {
		if i == len(rc.own.Choices) {
			for k, n := range rem {
				short := n - rc.own.Count(k)
				if short > rc.cw.Count(k)+rc.ccw.Count(k) {
					return false
				}
			}
			return true
		}
		if try(i+1, rem) {
			return true
		}
		for _, k := range rc.own.Choices[i] {
			if rem[k] > 0 {
				rem[k]--
				ok := try(i+1, rem)
				rem[k]++
				if ok {
					return true
				}
			}
		}
		return false
	}
	rem := make(map[resource.Kind]int)
	for k, n := range rc.req.Fixed {
		rem[k] = n
	}
	return try(0, rem)
}

func TestSolve_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 300; i++ {
		rc := newRandomCase(rng)
		nb := combo.Neighbors{Clockwise: rc.cw, CounterClockwise: rc.ccw}
		all := combo.Solve(rc.req, rc.own, nb, rc.rate, unlimited)

		// Soundness: every combo's usage replays the requirement to empty.
		for _, c := range all {
			used := make(map[resource.Kind]int)
			for _, leg := range []combo.Payment{c.Self, c.Clockwise, c.CounterClockwise} {
				for _, k := range leg.Resources {
					used[k]++
				}
			}
			assert.Equal(t, rc.req.Fixed, used, "case %d: %s", i, c.Key())
		}

		// Completeness under an unlimited budget.
		assert.Equal(t, rc.feasible(), len(all) > 0, "case %d: req %s own %s", i, rc.req, rc.own)

		// Sorted and unique.
		keys := make(map[string]bool)
		for j, c := range all {
			assert.False(t, keys[c.Key()], "case %d: duplicate %s", i, c.Key())
			keys[c.Key()] = true
			if j > 0 {
				assert.LessOrEqual(t, all[j-1].Total(), c.Total(), "case %d: unsorted", i)
			}
		}

		// Budget: a limited solve is exactly the affordable subset.
		coins := rng.Intn(7)
		limited := combo.Solve(rc.req, rc.own, nb, rc.rate, coins)
		var affordable []string
		for _, c := range all {
			if c.Total() <= coins {
				affordable = append(affordable, c.Key())
			}
		}
		var got []string
		for _, c := range limited {
			assert.LessOrEqual(t, c.Total(), coins)
			got = append(got, c.Key())
		}
		assert.Equal(t, affordable, got, "case %d", i)
	}
}
