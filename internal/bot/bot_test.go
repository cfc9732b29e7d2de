package bot

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

func TestBots_PlayFullGame(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)

	store := game.NewMemoryStore()
	mgr := game.NewManager(cat, store, game.DefaultRules(), logger)
	mgr.SetBotLauncher(Launcher(0, logger))
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	ctx := context.Background()
	g, err := mgr.CreateGame(ctx, "bots only", "host", 4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := mgr.AddBot(ctx, g.ID, "host")
		require.NoError(t, err)
	}

	select {
	case <-g.Done():
	case <-time.After(20 * time.Second):
		t.Fatalf("bot game did not finish, state %s", g.Summary().State)
	}

	summary := g.Summary()
	assert.Equal(t, game.PhaseGameEnded, summary.State.Phase)
	require.Len(t, summary.Ranking, 4)
	assert.True(t, summary.Ranking[0].Winner)
	for _, p := range summary.Players {
		assert.GreaterOrEqual(t, p.Coins, 0, p.Name)
	}

	snap, err := store.LoadGame(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Rounds, game.Ages*game.RoundsPerAge)
}

func newRatingBot(style Style) *Bot {
	b := &Bot{style: style, seat: &game.Seat{PlayerID: "me"}}
	b.wonder = catalog.Wonder{
		Name:     "Gizah",
		Resource: resource.Stone,
		Sides: map[catalog.Side][]catalog.Stage{
			catalog.SideA: {{Cost: "SS"}, {Cost: "WWW"}, {Cost: "SSSS"}},
		},
	}
	b.side = catalog.SideA
	b.players = []game.PlayerInfo{
		{PlayerID: "me", Shields: 1, StagesBuilt: 1, Clockwise: "left", CounterClockwise: "right",
			Science: []scoring.Symbol{scoring.Compass, scoring.Compass}},
		{PlayerID: "left", Shields: 2},
		{PlayerID: "right", Shields: 1},
	}
	return b
}

func TestBot_Ratings(t *testing.T) {
	style := Style{Military: 2, Science: 1, Guild: 4, Wonder: 3, Resource: 2, Cultural: 1}
	b := newRatingBot(style)

	tests := []struct {
		name string
		card catalog.Card
		cost int
		want float64
	}{
		{"resource for remaining stages", catalog.Card{Color: catalog.Brown, Produces: "W/S"}, 0, 4},
		{"resource nobody needs", catalog.Card{Color: catalog.Gray, Produces: "G"}, 0, 0},
		{"cultural minus cost", catalog.Card{Color: catalog.Blue, Points: 5}, 2, 3},
		{"science already held", catalog.Card{Color: catalog.Green, Science: scoring.Compass}, 0, 3},
		{"military against neighbours", catalog.Card{Color: catalog.Red, Shields: 1}, 0, 3},
		{"guild", catalog.Card{Color: catalog.Purple}, 1, 3},
		{"commercial", catalog.Card{Color: catalog.Yellow}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := combo.Combo{Self: combo.Payment{Cost: tt.cost}}
			assert.InDelta(t, tt.want, b.rateCard(tt.card, c), 1e-9)
		})
	}
}

func TestBot_TrashPrefersWeightedColours(t *testing.T) {
	b := newRatingBot(Style{Science: 10})
	b.rng = newTestRand()

	hand := []catalog.Card{
		{Name: "Tavern", Color: catalog.Yellow},
		{Name: "Lab", Color: catalog.Green},
	}
	assert.Equal(t, "Lab", b.trash(hand).Name)
}

func newTestRand() *rand.Rand { return rand.New(rand.NewSource(1)) }
