package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

// Event kinds recorded in game_events.
const (
	eventState    = "state"
	eventWonders  = "wonders"
	eventHands    = "hands"
	eventSides    = "sides"
	eventRound    = "round"
	eventMilitary = "military"
	eventFinal    = "final"
)

// GameStore is the Postgres game.Store. Every write folds into the game's
// snapshot row and upserts one event row keyed by kind, age and round, in a
// single transaction, so retried writes are idempotent.
type GameStore struct {
	db *DB
}

// NewGameStore creates a store on db.
func NewGameStore(db *DB) *GameStore {
	return &GameStore{db: db}
}

var _ game.Store = (*GameStore)(nil)

// SaveGame implements game.Store.
func (s *GameStore) SaveGame(ctx context.Context, g game.GameRecord) error {
	snap := game.Snapshot{Game: g, State: game.State{Phase: game.PhaseNew}, UpdatedAt: time.Now()}
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO games (id, name, creator_id, max_players, phase, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			creator_id = EXCLUDED.creator_id,
			max_players = EXCLUDED.max_players,
			snapshot = jsonb_set(games.snapshot, '{game}', EXCLUDED.snapshot->'game'),
			updated_at = now()
	`, g.ID, g.Name, g.CreatorID, g.MaxPlayers, snap.State.Phase.String(), snap, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", g.ID, err)
	}
	return nil
}

// SaveState implements game.Store.
func (s *GameStore) SaveState(ctx context.Context, gameID string, st game.State) error {
	return s.update(ctx, gameID, eventState, st.Age, st.Round, st, func(snap *game.Snapshot) {
		snap.State = st
	})
}

// SaveWonders implements game.Store.
func (s *GameStore) SaveWonders(ctx context.Context, gameID string, seats []game.SeatSnapshot) error {
	return s.update(ctx, gameID, eventWonders, 0, 0, seats, func(snap *game.Snapshot) {
		snap.ApplyWonders(seats)
	})
}

// SaveHands implements game.Store.
func (s *GameStore) SaveHands(ctx context.Context, gameID string, age int, hands map[string][]string) error {
	return s.update(ctx, gameID, eventHands, age, 0, hands, func(snap *game.Snapshot) {
		snap.ApplyHands(age, hands)
	})
}

// SaveSideChoices implements game.Store.
func (s *GameStore) SaveSideChoices(ctx context.Context, gameID string, sides map[string]catalog.Side) error {
	return s.update(ctx, gameID, eventSides, 0, 0, sides, func(snap *game.Snapshot) {
		snap.ApplySides(sides)
	})
}

// SaveRound implements game.Store.
func (s *GameStore) SaveRound(ctx context.Context, r game.RoundRecord) error {
	return s.update(ctx, r.GameID, eventRound, r.Age, r.Round, r, func(snap *game.Snapshot) {
		snap.ApplyRound(r)
	})
}

// SaveMilitary implements game.Store.
func (s *GameStore) SaveMilitary(ctx context.Context, m game.MilitaryRecord) error {
	return s.update(ctx, m.GameID, eventMilitary, m.Age, 0, m, func(snap *game.Snapshot) {
		snap.ApplyMilitary(m)
	})
}

// SaveFinalScores implements game.Store.
func (s *GameStore) SaveFinalScores(ctx context.Context, gameID string, ranking []scoring.Entry) error {
	return s.update(ctx, gameID, eventFinal, 0, 0, ranking, func(snap *game.Snapshot) {
		snap.ApplyFinal(ranking)
	})
}

// LoadGame implements game.Store.
func (s *GameStore) LoadGame(ctx context.Context, gameID string) (*game.Snapshot, error) {
	var snap game.Snapshot
	err := s.db.Pool.QueryRow(ctx, `SELECT snapshot FROM games WHERE id = $1`, gameID).Scan(&snap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", game.ErrGameNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}
	return &snap, nil
}

// Ping implements game.Store.
func (s *GameStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ListGames implements game.Store.
func (s *GameStore) ListGames(ctx context.Context, limit int) ([]game.GameRecord, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, name, creator_id, max_players, created_at
		FROM games
		ORDER BY updated_at DESC
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var records []game.GameRecord
	for rows.Next() {
		var r game.GameRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatorID, &r.MaxPlayers, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *GameStore) update(ctx context.Context, gameID, kind string, age, round int, payload interface{}, apply func(*game.Snapshot)) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.db.logger.Warn("rollback failed", zap.String("game_id", gameID), zap.Error(rbErr))
		}
	}()

	var snap game.Snapshot
	err = tx.QueryRow(ctx, `SELECT snapshot FROM games WHERE id = $1 FOR UPDATE`, gameID).Scan(&snap)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", game.ErrGameNotFound, gameID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock game %s: %w", gameID, err)
	}

	apply(&snap)
	snap.UpdatedAt = time.Now()

	if _, err := tx.Exec(ctx, `
		UPDATE games SET snapshot = $2, phase = $3, updated_at = now() WHERE id = $1
	`, gameID, snap, snap.State.Phase.String()); err != nil {
		return fmt.Errorf("failed to update game %s: %w", gameID, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game_events (game_id, kind, age, round, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (game_id, kind, age, round) DO UPDATE SET payload = EXCLUDED.payload, created_at = now()
	`, gameID, kind, age, round, payload); err != nil {
		return fmt.Errorf("failed to record %s event for %s: %w", kind, gameID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s for %s: %w", kind, gameID, err)
	}
	return nil
}
