package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

// Store is the durable record of a game. Every write is idempotent for the
// same game and position, and the coordinator commits a transition only
// after its write succeeds.
type Store interface {
	SaveGame(ctx context.Context, game GameRecord) error
	SaveState(ctx context.Context, gameID string, state State) error
	SaveWonders(ctx context.Context, gameID string, seats []SeatSnapshot) error
	SaveHands(ctx context.Context, gameID string, age int, hands map[string][]string) error
	SaveSideChoices(ctx context.Context, gameID string, sides map[string]catalog.Side) error
	SaveRound(ctx context.Context, round RoundRecord) error
	SaveMilitary(ctx context.Context, military MilitaryRecord) error
	SaveFinalScores(ctx context.Context, gameID string, ranking []scoring.Entry) error
	LoadGame(ctx context.Context, gameID string) (*Snapshot, error)
	// ListGames returns up to limit games, most recently updated first.
	ListGames(ctx context.Context, limit int) ([]GameRecord, error)
	Ping(ctx context.Context) error
}

// GameRecord describes a created game.
type GameRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatorID  string    `json:"creatorId"`
	MaxPlayers int       `json:"maxPlayers"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SeatSnapshot is the durable view of one seat.
type SeatSnapshot struct {
	PlayerID    string             `json:"playerId"`
	Name        string             `json:"name"`
	Bot         bool               `json:"bot,omitempty"`
	Wonder      string             `json:"wonder"`
	Side        catalog.Side       `json:"side,omitempty"`
	StagesBuilt int                `json:"stagesBuilt"`
	Hand        []string           `json:"hand"`
	Played      []string           `json:"played"`
	Score       scoring.ScoreState `json:"score"`
}

// PlayKind is the kind of a pending play.
type PlayKind string

const (
	PlayCard    PlayKind = "play"
	PlayWonder  PlayKind = "wonder"
	PlayDiscard PlayKind = "discard"
)

// PendingPlay is a seat's submitted, unrevealed choice for the round.
type PendingPlay struct {
	Kind  PlayKind    `json:"kind"`
	Card  string      `json:"card"`
	Combo combo.Combo `json:"combo"`
}

// PlayRecord is a revealed play.
type PlayRecord struct {
	PlayerID string `json:"playerId"`
	PendingPlay
}

// RoundRecord is the batched settlement of one round: the plays, the seats
// after settlement and hand rotation, and the state that follows.
type RoundRecord struct {
	GameID    string         `json:"gameId"`
	Age       int            `json:"age"`
	Round     int            `json:"round"`
	Plays     []PlayRecord   `json:"plays"`
	Seats     []SeatSnapshot `json:"seats"`
	Discarded []string       `json:"discarded"`
	Next      State          `json:"next"`
}

// MilitaryResult is one seat's conflict outcome for an age.
type MilitaryResult struct {
	PlayerID string `json:"playerId"`
	Strength int    `json:"strength"`
	Delta    int    `json:"delta"`
	Defeats  int    `json:"defeats"`
}

// MilitaryRecord is the settlement of an age's conflicts.
type MilitaryRecord struct {
	GameID  string           `json:"gameId"`
	Age     int              `json:"age"`
	Results []MilitaryResult `json:"results"`
	Seats   []SeatSnapshot   `json:"seats"`
	Next    State            `json:"next"`
}

// Snapshot is everything a store knows about a game.
type Snapshot struct {
	Game      GameRecord                  `json:"game"`
	State     State                       `json:"state"`
	Seats     []SeatSnapshot              `json:"seats"`
	Hands     map[int]map[string][]string `json:"hands,omitempty"`
	Discarded []string                    `json:"discarded"`
	Rounds    []RoundRecord               `json:"rounds,omitempty"`
	Military  []MilitaryRecord            `json:"military,omitempty"`
	Ranking   []scoring.Entry             `json:"ranking,omitempty"`
	UpdatedAt time.Time                   `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Seats = cloneSeats(s.Seats)
	c.Discarded = append([]string(nil), s.Discarded...)
	c.Rounds = append([]RoundRecord(nil), s.Rounds...)
	c.Military = append([]MilitaryRecord(nil), s.Military...)
	c.Ranking = append([]scoring.Entry(nil), s.Ranking...)
	if s.Hands != nil {
		c.Hands = make(map[int]map[string][]string, len(s.Hands))
		for age, hands := range s.Hands {
			c.Hands[age] = make(map[string][]string, len(hands))
			for id, h := range hands {
				c.Hands[age][id] = append([]string(nil), h...)
			}
		}
	}
	return &c
}

// ApplyRound folds a round record into the snapshot, replacing an earlier
// record for the same round.
func (s *Snapshot) ApplyRound(r RoundRecord) {
	s.State = r.Next
	s.Seats = cloneSeats(r.Seats)
	for i, existing := range s.Rounds {
		if existing.Age == r.Age && existing.Round == r.Round {
			s.Rounds[i] = r
			s.rebuildDiscards()
			return
		}
	}
	s.Rounds = append(s.Rounds, r)
	sort.SliceStable(s.Rounds, func(i, j int) bool {
		if s.Rounds[i].Age != s.Rounds[j].Age {
			return s.Rounds[i].Age < s.Rounds[j].Age
		}
		return s.Rounds[i].Round < s.Rounds[j].Round
	})
	s.rebuildDiscards()
}

// ApplyMilitary folds an age's conflict settlement into the snapshot.
func (s *Snapshot) ApplyMilitary(m MilitaryRecord) {
	s.State = m.Next
	s.Seats = cloneSeats(m.Seats)
	for i, existing := range s.Military {
		if existing.Age == m.Age {
			s.Military[i] = m
			return
		}
	}
	s.Military = append(s.Military, m)
}

// ApplyWonders records seat order and wonder assignment.
func (s *Snapshot) ApplyWonders(seats []SeatSnapshot) {
	s.Seats = cloneSeats(seats)
}

// ApplySides records side choices.
func (s *Snapshot) ApplySides(sides map[string]catalog.Side) {
	for i := range s.Seats {
		if side, ok := sides[s.Seats[i].PlayerID]; ok {
			s.Seats[i].Side = side
		}
	}
}

// ApplyHands records the hands dealt for an age.
func (s *Snapshot) ApplyHands(age int, hands map[string][]string) {
	if s.Hands == nil {
		s.Hands = make(map[int]map[string][]string)
	}
	dealt := make(map[string][]string, len(hands))
	for id, h := range hands {
		dealt[id] = append([]string(nil), h...)
	}
	s.Hands[age] = dealt
}

// ApplyFinal records the final ranking and ends the game.
func (s *Snapshot) ApplyFinal(ranking []scoring.Entry) {
	s.Ranking = append([]scoring.Entry(nil), ranking...)
	s.State.Phase = PhaseGameEnded
}

func (s *Snapshot) rebuildDiscards() {
	s.Discarded = nil
	for _, r := range s.Rounds {
		s.Discarded = append(s.Discarded, r.Discarded...)
	}
}

func cloneSeats(seats []SeatSnapshot) []SeatSnapshot {
	out := make([]SeatSnapshot, len(seats))
	for i, st := range seats {
		out[i] = st
		out[i].Hand = append([]string(nil), st.Hand...)
		out[i].Played = append([]string(nil), st.Played...)
		out[i].Score = st.Score.Clone()
	}
	return out
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]*Snapshot)}
}

func (m *MemoryStore) update(gameID string, fn func(*Snapshot)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.games[gameID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	fn(snap)
	snap.UpdatedAt = time.Now()
	return nil
}

// SaveGame implements Store.
func (m *MemoryStore) SaveGame(_ context.Context, g GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap, ok := m.games[g.ID]; ok {
		snap.Game = g
		return nil
	}
	m.games[g.ID] = &Snapshot{Game: g, State: State{Phase: PhaseNew}, UpdatedAt: time.Now()}
	return nil
}

// SaveState implements Store.
func (m *MemoryStore) SaveState(_ context.Context, gameID string, st State) error {
	return m.update(gameID, func(s *Snapshot) { s.State = st })
}

// SaveWonders implements Store.
func (m *MemoryStore) SaveWonders(_ context.Context, gameID string, seats []SeatSnapshot) error {
	return m.update(gameID, func(s *Snapshot) { s.ApplyWonders(seats) })
}

// SaveHands implements Store.
func (m *MemoryStore) SaveHands(_ context.Context, gameID string, age int, hands map[string][]string) error {
	return m.update(gameID, func(s *Snapshot) { s.ApplyHands(age, hands) })
}

// SaveSideChoices implements Store.
func (m *MemoryStore) SaveSideChoices(_ context.Context, gameID string, sides map[string]catalog.Side) error {
	return m.update(gameID, func(s *Snapshot) { s.ApplySides(sides) })
}

// SaveRound implements Store.
func (m *MemoryStore) SaveRound(_ context.Context, r RoundRecord) error {
	return m.update(r.GameID, func(s *Snapshot) { s.ApplyRound(r) })
}

// SaveMilitary implements Store.
func (m *MemoryStore) SaveMilitary(_ context.Context, r MilitaryRecord) error {
	return m.update(r.GameID, func(s *Snapshot) { s.ApplyMilitary(r) })
}

// SaveFinalScores implements Store.
func (m *MemoryStore) SaveFinalScores(_ context.Context, gameID string, ranking []scoring.Entry) error {
	return m.update(gameID, func(s *Snapshot) { s.ApplyFinal(ranking) })
}

// LoadGame implements Store.
func (m *MemoryStore) LoadGame(_ context.Context, gameID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	return snap.Clone(), nil
}

// ListGames implements Store.
func (m *MemoryStore) ListGames(_ context.Context, limit int) ([]GameRecord, error) {
	type entry struct {
		record  GameRecord
		updated time.Time
	}
	m.mu.RLock()
	entries := make([]entry, 0, len(m.games))
	for _, snap := range m.games {
		entries = append(entries, entry{record: snap.Game, updated: snap.UpdatedAt})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].updated.After(entries[j].updated) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	records := make([]GameRecord, len(entries))
	for i, e := range entries {
		records[i] = e.record
	}
	return records, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error { return nil }
