package game_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

// settlementCatalog gives every card of an age the same role so the deal
// order cannot change what a round settles:
//   - age I: free red cards worth one shield;
//   - age II: free yellow cards paying a coin per red card on the table and
//     a commercial point per own red card at game end;
//   - age III: free blue cards plus guilds worth a point per red card on
//     the table.
//
// Every wonder produces clay, and its first stage costs two clay.
func settlementCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	stages := []catalog.Stage{
		{Cost: "CC", Points: 2, Coins: 3, Science: true},
		{Cost: "CCC", Shields: 5},
	}
	cat := &catalog.Catalog{}
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		cat.Wonders = append(cat.Wonders, catalog.Wonder{
			Name:     name,
			Resource: resource.Clay,
			Sides:    map[catalog.Side][]catalog.Stage{catalog.SideA: stages, catalog.SideB: stages},
		})
	}

	for i := 1; i <= game.HandSize*3; i++ {
		cat.Cards = append(cat.Cards,
			catalog.Card{Name: fmt.Sprintf("Palisade %d", i), Age: 1, Players: 3, Color: catalog.Red, Shields: 1},
			catalog.Card{
				Name: fmt.Sprintf("Market %d", i), Age: 2, Players: 3, Color: catalog.Yellow,
				Income: &scoring.Rule{Count: []string{string(catalog.Red)}, Scope: scoring.ScopeAll, Rate: 1},
				Bonus: &scoring.Rule{Count: []string{string(catalog.Red)}, Scope: scoring.ScopeSelf, Rate: 1,
					Bucket: scoring.BucketCommercial},
			},
		)
	}
	for i := 1; i <= game.HandSize*3-5; i++ {
		cat.Cards = append(cat.Cards,
			catalog.Card{Name: fmt.Sprintf("Shrine %d", i), Age: 3, Players: 3, Color: catalog.Blue, Points: 1})
	}
	for i := 1; i <= 5; i++ {
		cat.Cards = append(cat.Cards, catalog.Card{
			Name: fmt.Sprintf("Guild %d", i), Age: 3, Color: catalog.Purple,
			Bonus: &scoring.Rule{Count: []string{string(catalog.Red)}, Scope: scoring.ScopeAll, Rate: 1,
				Bucket: scoring.BucketGuilds},
		})
	}
	require.NoError(t, cat.Validate())
	return cat
}

// playRound waits for every seat's hand, lets act submit for it and returns
// the hands as dealt.
func (tbl *table) playRound(t *testing.T, act func(i int, s *game.Seat, hand game.Hand)) []game.Hand {
	t.Helper()
	hands := make([]game.Hand, len(tbl.seats))
	for i, s := range tbl.seats {
		hands[i] = waitHand(t, s)
	}
	for i, s := range tbl.seats {
		act(i, s, hands[i])
	}
	return hands
}

func discardFirst(t *testing.T) func(int, *game.Seat, game.Hand) {
	return func(_ int, s *game.Seat, hand game.Hand) {
		require.NoError(t, s.SubmitDiscard(context.Background(), hand.Cards[0].Name))
	}
}

// aliceBuilds has alice play her first card for free while the others
// discard.
func aliceBuilds(t *testing.T) func(int, *game.Seat, game.Hand) {
	discard := discardFirst(t)
	return func(i int, s *game.Seat, hand game.Hand) {
		if i != 0 {
			discard(i, s, hand)
			return
		}
		require.NoError(t, s.SubmitPlay(context.Background(), hand.Cards[0].Name, combo.Free()[0]))
	}
}

func TestGame_BuildWonderStage(t *testing.T) {
	store := game.NewMemoryStore()
	tbl := newTableWith(t, settlementCatalog(t), store, game.DefaultRules())
	tbl.chooseSides(t)
	ctx := context.Background()
	alice := tbl.seats[0]

	var chosen combo.Combo
	tbl.playRound(t, func(i int, s *game.Seat, hand game.Hand) {
		if i != 0 {
			require.NoError(t, s.SubmitDiscard(ctx, hand.Cards[0].Name))
			return
		}
		combos, err := alice.RequestWonderCombos(ctx)
		require.NoError(t, err)
		// One clay of her own, one bought from either neighbour.
		require.Len(t, combos, 2)
		chosen = combos[0]
		assert.Equal(t, 2, chosen.Total())
		require.NoError(t, alice.SubmitBuildWonder(ctx, hand.Cards[0].Name, chosen))
	})

	info := tbl.player(t, "alice")
	assert.Equal(t, 1, info.StagesBuilt)
	assert.Equal(t, 2, info.WonderPoints)
	assert.Equal(t, 3-2+3, info.Coins)
	assert.Equal(t, []scoring.Symbol{scoring.AnySymbol}, info.Science)
	assert.Empty(t, info.CardsPlayed)
	assert.Equal(t, 6+chosen.Clockwise.Cost, tbl.player(t, "bob").Coins)
	assert.Equal(t, 6+chosen.CounterClockwise.Cost, tbl.player(t, "carol").Coins)

	snap, err := store.LoadGame(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Seats[0].StagesBuilt)
	assert.Equal(t, 2, snap.Seats[0].Score.WonderPoints)
	assert.Len(t, snap.Discarded, 2)

	// The next stage needs two bought clay at 2 coins each.
	combos, err := alice.RequestWonderCombos(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, combos)
	assert.Equal(t, 4, combos[0].Total())
}

func TestGame_AgeTwoPassesCounterClockwise(t *testing.T) {
	tbl := newTableWith(t, settlementCatalog(t), game.NewMemoryStore(), game.DefaultRules())
	tbl.chooseSides(t)

	for round := 0; round < game.RoundsPerAge; round++ {
		tbl.playRound(t, discardFirst(t))
	}
	require.Equal(t, game.State{Age: 2, Round: 1, Phase: game.PhasePlaying}, tbl.game.Summary().State)

	hands := tbl.playRound(t, discardFirst(t))

	// Age II passes counter-clockwise: seat i receives what seat i+1 kept.
	for i, s := range tbl.seats {
		next := waitHand(t, s)
		assert.Equal(t, 2, next.Age)
		assert.Equal(t, 2, next.Round)
		from := hands[(i+1)%len(hands)]
		assert.Equal(t, from.Cards[1:], next.Cards)
	}
}

func TestGame_MilitaryAtAgeEnd(t *testing.T) {
	store := game.NewMemoryStore()
	tbl := newTableWith(t, settlementCatalog(t), store, game.DefaultRules())
	tbl.chooseSides(t)
	ctx := context.Background()

	for round := 0; round < game.RoundsPerAge; round++ {
		tbl.playRound(t, aliceBuilds(t))
	}
	require.Equal(t, 2, tbl.game.Summary().State.Age)

	snap, err := store.LoadGame(ctx, "game-1")
	require.NoError(t, err)
	require.Len(t, snap.Military, 1)
	assert.Equal(t, []game.MilitaryResult{
		{PlayerID: "alice", Strength: 6, Delta: 2},
		{PlayerID: "bob", Strength: 0, Delta: -1, Defeats: 1},
		{PlayerID: "carol", Strength: 0, Delta: -1, Defeats: 1},
	}, snap.Military[0].Results)

	alice := tbl.player(t, "alice")
	assert.Equal(t, 6, alice.Shields)
	assert.Equal(t, 2, alice.Military)
	assert.Equal(t, 3, alice.Coins)

	bob := tbl.player(t, "bob")
	assert.Equal(t, -1, bob.Military)
	assert.Equal(t, 1, bob.Defeats)
	assert.Equal(t, 3+3*game.RoundsPerAge, bob.Coins)
}

func TestGame_IncomeAndBonusCards(t *testing.T) {
	tbl := newTableWith(t, settlementCatalog(t), game.NewMemoryStore(), game.DefaultRules())
	tbl.chooseSides(t)

	for round := 0; round < game.RoundsPerAge; round++ {
		tbl.playRound(t, aliceBuilds(t))
	}

	// Six red cards on the table pay six coins on top of the starting three.
	tbl.playRound(t, aliceBuilds(t))
	assert.Equal(t, 3+6, tbl.player(t, "alice").Coins)
	for round := 1; round < game.RoundsPerAge; round++ {
		tbl.playRound(t, discardFirst(t))
	}

	// Five guilds among the 21 dealt cards: at least one seat holds one.
	holder := -1
	tbl.playRound(t, func(i int, s *game.Seat, hand game.Hand) {
		for _, c := range hand.Cards {
			if holder < 0 && c.IsGuild() {
				holder = i
				require.NoError(t, s.SubmitPlay(context.Background(), c.Name, combo.Free()[0]))
				return
			}
		}
		require.NoError(t, s.SubmitDiscard(context.Background(), hand.Cards[0].Name))
	})
	require.GreaterOrEqual(t, holder, 0, "no guild dealt")
	for round := 1; round < game.RoundsPerAge; round++ {
		tbl.playRound(t, discardFirst(t))
	}

	ranking, ok := waitFor(t, tbl.seats[0], game.NotifyRanking).Data.([]scoring.Entry)
	require.True(t, ok)
	entries := make(map[string]scoring.Entry, len(ranking))
	for _, e := range ranking {
		entries[e.PlayerID] = e
	}

	ids := []string{"alice", "bob", "carol"}
	assert.Equal(t, 6, entries[ids[holder]].Breakdown.Guilds)
	assert.Equal(t, 6, entries["alice"].Breakdown.Commercial)
	// 1, 3 and 5 points from each neighbour across the three ages.
	assert.Equal(t, 2*(1+3+5), entries["alice"].Breakdown.Military)
	assert.Equal(t, -3, entries["bob"].Breakdown.Military)

	<-tbl.game.Done()
	assert.Equal(t, 6, tbl.player(t, ids[holder]).Guilds)
	assert.Equal(t, 6, tbl.player(t, "alice").Commercial)
}
