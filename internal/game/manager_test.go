package game_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game"
)

func newTestManager(t *testing.T) *game.Manager {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	m := game.NewManager(cat, game.NewMemoryStore(), game.DefaultRules(), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func TestManager_CreateAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	g, err := m.CreateGame(ctx, "friday", "alice", 4)
	require.NoError(t, err)

	got, ok := m.GetGame(g.ID)
	require.True(t, ok)
	assert.Same(t, g, got)
	assert.Equal(t, 1, m.GetActiveGameCount())

	open := m.OpenGames()
	require.Len(t, open, 1)
	assert.Equal(t, "friday", open[0].Name)
	assert.Equal(t, 4, open[0].MaxPlayers)

	snap, err := m.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", snap.Game.CreatorID)

	_, err = m.CreateGame(ctx, "too big", "alice", 9)
	assert.ErrorIs(t, err, game.ErrInvalidAction)

	m.RemoveGame(g.ID)
	_, ok = m.GetGame(g.ID)
	assert.False(t, ok)
	assert.Empty(t, m.GetAllGames())
}

func TestManager_AddBot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	launched := make(chan *game.Seat, 3)
	m.SetBotLauncher(func(_ context.Context, s *game.Seat) { launched <- s })

	g, err := m.CreateGame(ctx, "bots", "alice", 3)
	require.NoError(t, err)

	_, err = m.AddBot(ctx, g.ID, "mallory")
	assert.ErrorIs(t, err, game.ErrInvalidAction)

	_, err = m.AddBot(ctx, "missing", "alice")
	assert.ErrorIs(t, err, game.ErrGameNotFound)

	bot, err := m.AddBot(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.True(t, bot.Bot)
	assert.Equal(t, "Bot 1", bot.Name)
	assert.Same(t, bot, <-launched)

	players := g.Summary().Players
	require.Len(t, players, 1)
	assert.True(t, players[0].Bot)
}

func TestManager_ForgetsFinishedGames(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	g, err := m.CreateGame(ctx, "short", "alice", 3)
	require.NoError(t, err)

	tbl := &table{game: g}
	for _, id := range []string{"alice", "bob", "carol"} {
		seat, err := g.Join(ctx, id, id)
		require.NoError(t, err)
		tbl.seats = append(tbl.seats, seat)
	}
	tbl.chooseSides(t)
	for round := 0; round < game.Ages*game.RoundsPerAge; round++ {
		tbl.playRound(t, discardFirst(t))
	}
	<-g.Done()

	require.Eventually(t, func() bool {
		_, ok := m.GetGame(g.ID)
		return !ok
	}, waitTimeout, 10*time.Millisecond)
	assert.Empty(t, m.GetAllGames())
	assert.Zero(t, m.GetActiveGameCount())

	snap, err := m.LoadSnapshot(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseGameEnded, snap.State.Phase)

	recent, err := m.RecentGames(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, g.ID, recent[0].ID)
}
