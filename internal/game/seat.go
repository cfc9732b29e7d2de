package game

import (
	"context"
	"fmt"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

const notificationBuffer = 256

// Seat is a player's handle on a running game. Actions are served by the
// game's coordinator; notifications arrive on Notifications until the game
// stops, when the channel is closed.
type Seat struct {
	PlayerID string
	Name     string
	Bot      bool

	game   *Game
	notify chan Notification
}

func newSeatHandle(g *Game, playerID, name string, bot bool) *Seat {
	return &Seat{
		PlayerID: playerID,
		Name:     name,
		Bot:      bot,
		game:     g,
		notify:   make(chan Notification, notificationBuffer),
	}
}

// GameID returns the ID of the seat's game.
func (s *Seat) GameID() string { return s.game.ID }

// Notifications returns the seat's inbound message stream.
func (s *Seat) Notifications() <-chan Notification { return s.notify }

// ChooseWonderSide picks side a or b of the seat's wonder.
func (s *Seat) ChooseWonderSide(ctx context.Context, side catalog.Side) error {
	_, err := s.game.submit(ctx, &action{kind: actionChooseSide, playerID: s.PlayerID, side: side})
	return err
}

// SubmitPlay plays a card from hand using one of its combos.
func (s *Seat) SubmitPlay(ctx context.Context, card string, c combo.Combo) error {
	_, err := s.game.submit(ctx, &action{kind: actionPlay, playerID: s.PlayerID, card: card, combo: c})
	return err
}

// SubmitBuildWonder spends a card from hand on the next wonder stage.
func (s *Seat) SubmitBuildWonder(ctx context.Context, card string, c combo.Combo) error {
	_, err := s.game.submit(ctx, &action{kind: actionBuildWonder, playerID: s.PlayerID, card: card, combo: c})
	return err
}

// SubmitDiscard discards a card from hand for coins.
func (s *Seat) SubmitDiscard(ctx context.Context, card string) error {
	_, err := s.game.submit(ctx, &action{kind: actionDiscard, playerID: s.PlayerID, card: card})
	return err
}

// RequestCombos returns every affordable way to play card this round.
func (s *Seat) RequestCombos(ctx context.Context, card string) ([]combo.Combo, error) {
	res, err := s.game.submit(ctx, &action{kind: actionCombos, playerID: s.PlayerID, card: card})
	return res.combos, err
}

// RequestWonderCombos returns every affordable way to build the next stage.
func (s *Seat) RequestWonderCombos(ctx context.Context) ([]combo.Combo, error) {
	res, err := s.game.submit(ctx, &action{kind: actionWonderCombos, playerID: s.PlayerID})
	return res.combos, err
}

// board is the part of a seat that changes during settlement.
type board struct {
	Hand   []catalog.Card
	Played []catalog.Card
	Built  int
	Score  scoring.ScoreState
}

func (b board) clone() board {
	return board{
		Hand:   append([]catalog.Card(nil), b.Hand...),
		Played: append([]catalog.Card(nil), b.Played...),
		Built:  b.Built,
		Score:  b.Score.Clone(),
	}
}

func (b board) cardIndex(name string) int {
	for i, c := range b.Hand {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (b *board) take(name string) (catalog.Card, bool) {
	i := b.cardIndex(name)
	if i < 0 {
		return catalog.Card{}, false
	}
	card := b.Hand[i]
	b.Hand = append(b.Hand[:i:i], b.Hand[i+1:]...)
	return card, true
}

func (b board) hasPlayed(name string) bool {
	for _, c := range b.Played {
		if c.Name == name {
			return true
		}
	}
	return false
}

// seat is the coordinator's private record of a player.
type seat struct {
	board

	handle     *Seat
	wonder     catalog.Wonder
	side       catalog.Side
	sideChosen bool

	// combos caches solver output for the current round.
	combos map[string][]combo.Combo
}

func (s *seat) id() string   { return s.handle.PlayerID }
func (s *seat) name() string { return s.handle.Name }

func (s *seat) ref() SeatRef {
	return SeatRef{PlayerID: s.handle.PlayerID, Name: s.handle.Name, Bot: s.handle.Bot}
}

func (s *seat) stages() []catalog.Stage {
	return s.wonder.Sides[s.side]
}

func (s *seat) builtStages(b board) []catalog.Stage {
	stages := s.stages()
	if b.Built > len(stages) {
		return stages
	}
	return stages[:b.Built]
}

func (s *seat) nextStage(b board) (catalog.Stage, bool) {
	stages := s.stages()
	if b.Built >= len(stages) {
		return catalog.Stage{}, false
	}
	return stages[b.Built], true
}

// ledger is everything the seat produces: wonder base resource, resource
// cards of any colour and built resource stages.
func (s *seat) ledger(b board) (*resource.Ledger, error) {
	l := resource.NewLedger()
	l.Add(s.wonder.Resource, 1)
	for _, c := range b.Played {
		if c.Produces == "" {
			continue
		}
		if err := l.AddProduction(c.Produces); err != nil {
			return nil, fmt.Errorf("%w: card %s: %v", ErrScoringInconsistency, c.Name, err)
		}
	}
	for _, st := range s.builtStages(b) {
		if st.Produces == "" {
			continue
		}
		if err := l.AddProduction(st.Produces); err != nil {
			return nil, fmt.Errorf("%w: wonder %s: %v", ErrScoringInconsistency, s.wonder.Name, err)
		}
	}
	return l, nil
}

// sellable is what neighbours may buy: wonder base resource plus brown and
// gray cards.
func (s *seat) sellable(b board) (*resource.Ledger, error) {
	l := resource.NewLedger()
	l.Add(s.wonder.Resource, 1)
	for _, c := range b.Played {
		if !c.Sellable() || c.Produces == "" {
			continue
		}
		if err := l.AddProduction(c.Produces); err != nil {
			return nil, fmt.Errorf("%w: card %s: %v", ErrScoringInconsistency, c.Name, err)
		}
	}
	return l, nil
}

func (s *seat) rates(b board) market.Rates {
	var discounts []market.Discount
	for _, c := range b.Played {
		discounts = append(discounts, c.Trade...)
	}
	for _, st := range s.builtStages(b) {
		discounts = append(discounts, st.Trade...)
	}
	return market.Compute(discounts)
}

func (s *seat) shields(b board) int {
	total := 0
	for _, c := range b.Played {
		total += c.Shields
	}
	for _, st := range s.builtStages(b) {
		total += st.Shields
	}
	return total
}

// tally counts the seat's board for income and bonus rules.
func (s *seat) tally(b board) scoring.Tally {
	t := scoring.Tally{
		scoring.CountWonder:  b.Built,
		scoring.CountDefeats: b.Score.Defeats,
	}
	for _, c := range b.Played {
		t[string(c.Color)]++
	}
	return t
}

// chainFree reports whether a previously played card makes card free.
func (b board) chainFree(card catalog.Card) bool {
	for _, c := range b.Played {
		if card.ChainsFrom(c.Name) {
			return true
		}
	}
	return false
}

func (s *seat) info(b board, cw, ccw *seat, submitted bool) PlayerInfo {
	return PlayerInfo{
		PlayerID:         s.id(),
		Name:             s.name(),
		Bot:              s.handle.Bot,
		Wonder:           s.wonder.Name,
		Side:             s.side,
		WonderResource:   s.wonder.Resource,
		StagesBuilt:      b.Built,
		StagesTotal:      len(s.stages()),
		Coins:            b.Score.Coins,
		Shields:          s.shields(b),
		Military:         b.Score.Military,
		Defeats:          b.Score.Defeats,
		Cultural:         b.Score.Cultural,
		Commercial:       b.Score.Commercial,
		Guilds:           b.Score.Guilds,
		WonderPoints:     b.Score.WonderPoints,
		Science:          append([]scoring.Symbol{}, b.Score.Science...),
		ScienceScore:     scoring.ScienceScore(b.Score.Science),
		CardsPlayed:      cardNames(b.Played),
		Clockwise:        cw.id(),
		CounterClockwise: ccw.id(),
		Submitted:        submitted,
	}
}

func (s *seat) snapshot(b board) SeatSnapshot {
	return SeatSnapshot{
		PlayerID:    s.id(),
		Name:        s.name(),
		Bot:         s.handle.Bot,
		Wonder:      s.wonder.Name,
		Side:        s.side,
		StagesBuilt: b.Built,
		Hand:        cardNames(b.Hand),
		Played:      cardNames(b.Played),
		Score:       b.Score.Clone(),
	}
}

func cardNames(cards []catalog.Card) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}
