package game

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
)

// BotLauncher starts an automated player on a freshly seated bot.
type BotLauncher func(ctx context.Context, seat *Seat)

// Manager manages games
type Manager struct {
	games   map[string]*Game
	mu      sync.RWMutex
	logger  *zap.Logger
	catalog *catalog.Catalog
	store   Store
	rules   Rules

	launchBot BotLauncher
	ctx       context.Context
	cancel    context.CancelFunc
	running   sync.WaitGroup
}

// NewManager creates a new game manager. Game coordinators run until their
// game ends or Shutdown is called; a game that stops is dropped from the
// manager and stays available through the store.
func NewManager(cat *catalog.Catalog, store Store, rules Rules, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		games:   make(map[string]*Game),
		logger:  logger,
		catalog: cat,
		store:   store,
		rules:   rules,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetBotLauncher registers the function used to drive bot seats.
func (m *Manager) SetBotLauncher(launch BotLauncher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launchBot = launch
}

// CreateGame creates, persists and starts a new game
func (m *Manager) CreateGame(ctx context.Context, name, creatorID string, maxPlayers int) (*Game, error) {
	g, err := NewGame(Options{
		Name:       name,
		CreatorID:  creatorID,
		MaxPlayers: maxPlayers,
		Catalog:    m.catalog,
		Store:      m.store,
		Rules:      m.rules,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveGame(ctx, g.Record()); err != nil {
		return nil, persistErr("save game", err)
	}

	m.mu.Lock()
	m.games[g.ID] = g
	m.mu.Unlock()

	m.running.Add(1)
	go func() {
		defer m.running.Done()
		g.Run(m.ctx)
		m.RemoveGame(g.ID)
	}()

	m.logger.Info("game created",
		zap.String("game_id", g.ID),
		zap.String("name", g.Name),
		zap.String("creator", creatorID),
		zap.Int("max_players", maxPlayers),
	)
	return g, nil
}

// GetGame retrieves a game by ID
func (m *Manager) GetGame(gameID string) (*Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.games[gameID]
	return g, ok
}

// RemoveGame removes a game
func (m *Manager) RemoveGame(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.games, gameID)

	m.logger.Info("game removed", zap.String("game_id", gameID))
}

// GetAllGames returns all games, oldest first
func (m *Manager) GetAllGames() []*Game {
	m.mu.RLock()
	defer m.mu.RUnlock()

	games := make([]*Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.Before(games[j].CreatedAt)
	})
	return games
}

// GetActiveGameCount returns the count of games that have not ended
func (m *Manager) GetActiveGameCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, g := range m.games {
		if g.Summary().State.Phase != PhaseGameEnded {
			count++
		}
	}
	return count
}

// OpenGames returns summaries of games still accepting players.
func (m *Manager) OpenGames() []Summary {
	var open []Summary
	for _, g := range m.GetAllGames() {
		if s := g.Summary(); s.State.Phase == PhaseNew {
			open = append(open, s)
		}
	}
	return open
}

// AddBot seats a bot in a game and starts driving it.
func (m *Manager) AddBot(ctx context.Context, gameID, requesterID string) (*Seat, error) {
	g, ok := m.GetGame(gameID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	seat, err := g.AddBot(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	launch := m.launchBot
	m.mu.RUnlock()
	if launch != nil {
		go launch(m.ctx, seat)
	} else {
		m.logger.Warn("bot seated without a launcher", zap.String("game_id", gameID))
	}
	return seat, nil
}

// LoadSnapshot reads a game's durable record from the store.
func (m *Manager) LoadSnapshot(ctx context.Context, gameID string) (*Snapshot, error) {
	return m.store.LoadGame(ctx, gameID)
}

// RecentGames lists stored games, including finished ones, newest first.
func (m *Manager) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	return m.store.ListGames(ctx, limit)
}

// Shutdown stops every game coordinator and waits for them to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	stopped := make(chan struct{})
	go func() {
		m.running.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.logger.Info("game manager stopped")
	return nil
}
