package game

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

const wonderComboKey = "#wonder"

func (g *Game) submitPlay(ctx context.Context, playerID string, p PendingPlay) error {
	if err := g.requirePhase(PhasePlaying); err != nil {
		return err
	}
	i, err := g.seated(playerID)
	if err != nil {
		return err
	}
	if _, ok := g.pending[playerID]; ok {
		return fmt.Errorf("%w: already submitted this round", ErrInvalidAction)
	}
	s := g.seats[i]
	idx := s.cardIndex(p.Card)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not in hand", ErrInvalidAction, p.Card)
	}
	card := s.Hand[idx]

	var combos []combo.Combo
	switch p.Kind {
	case PlayCard:
		if s.hasPlayed(card.Name) {
			return fmt.Errorf("%w: %s already built", ErrInvalidAction, card.Name)
		}
		if combos, err = g.cardCombos(i, card); err != nil {
			return err
		}
	case PlayWonder:
		if _, ok := s.nextStage(s.board); !ok {
			return fmt.Errorf("%w: wonder is complete", ErrInvalidAction)
		}
		if combos, err = g.wonderCombos(i); err != nil {
			return err
		}
	case PlayDiscard:
		p.Combo = combo.Combo{}
	default:
		return fmt.Errorf("%w: unknown play %q", ErrInvalidAction, p.Kind)
	}

	if p.Kind != PlayDiscard {
		matched := false
		for _, c := range combos {
			if c.Equal(p.Combo) {
				p.Combo = c
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: combo is not affordable for %s", ErrInvalidAction, card.Name)
		}
	}

	g.pending[playerID] = p
	g.logger.Debug("play submitted",
		zap.String("player_id", playerID),
		zap.String("kind", string(p.Kind)),
		zap.Int("pending", len(g.pending)),
	)
	g.publish()

	if len(g.pending) == len(g.seats) {
		g.resolveRound(ctx)
	}
	return nil
}

// cardCombos lists the ways seat i can pay for card this round.
func (g *Game) cardCombos(i int, card catalog.Card) ([]combo.Combo, error) {
	s := g.seats[i]
	if cached, ok := s.combos[card.Name]; ok {
		return cached, nil
	}

	var combos []combo.Combo
	switch {
	case s.hasPlayed(card.Name):
		combos = []combo.Combo{}
	case card.Cost == "" || s.chainFree(card):
		combos = combo.Free()
	default:
		cost, err := card.ParsedCost()
		if err != nil {
			return nil, fmt.Errorf("%w: card %s: %v", ErrScoringInconsistency, card.Name, err)
		}
		if combos, err = g.solve(i, cost); err != nil {
			return nil, err
		}
	}
	s.combos[card.Name] = combos
	return combos, nil
}

// wonderCombos lists the ways seat i can pay for its next stage.
func (g *Game) wonderCombos(i int) ([]combo.Combo, error) {
	s := g.seats[i]
	if cached, ok := s.combos[wonderComboKey]; ok {
		return cached, nil
	}
	stage, ok := s.nextStage(s.board)
	if !ok {
		s.combos[wonderComboKey] = []combo.Combo{}
		return s.combos[wonderComboKey], nil
	}
	cost, err := resource.ParseCost(stage.Cost)
	if err != nil {
		return nil, fmt.Errorf("%w: wonder %s: %v", ErrScoringInconsistency, s.wonder.Name, err)
	}
	combos, err := g.solve(i, cost)
	if err != nil {
		return nil, err
	}
	s.combos[wonderComboKey] = combos
	return combos, nil
}

// solve runs the combo solver for seat i against its neighbours' sellable
// production and its current coins.
func (g *Game) solve(i int, cost resource.Cost) ([]combo.Combo, error) {
	s := g.seats[i]
	own, err := s.ledger(s.board)
	if err != nil {
		return nil, err
	}
	cw, ccw := g.neighbours(i)
	nb := combo.Neighbors{}
	if nb.Clockwise, err = g.seats[cw].sellable(g.seats[cw].board); err != nil {
		return nil, err
	}
	if nb.CounterClockwise, err = g.seats[ccw].sellable(g.seats[ccw].board); err != nil {
		return nil, err
	}
	return combo.SolveCost(cost, own, nb, s.rates(s.board), s.Score.Coins), nil
}

func (g *Game) requestCombos(playerID, cardName string) ([]combo.Combo, error) {
	if err := g.requirePhase(PhasePlaying); err != nil {
		return nil, err
	}
	i, err := g.seated(playerID)
	if err != nil {
		return nil, err
	}
	s := g.seats[i]
	idx := s.cardIndex(cardName)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s is not in hand", ErrInvalidAction, cardName)
	}
	combos, err := g.cardCombos(i, s.Hand[idx])
	if err != nil {
		return nil, err
	}
	g.send(s, NotifyPlayCombos, Combos{Card: cardName, Combos: combos})
	return combos, nil
}

func (g *Game) requestWonderCombos(playerID string) ([]combo.Combo, error) {
	if err := g.requirePhase(PhasePlaying); err != nil {
		return nil, err
	}
	i, err := g.seated(playerID)
	if err != nil {
		return nil, err
	}
	combos, err := g.wonderCombos(i)
	if err != nil {
		return nil, err
	}
	s := g.seats[i]
	g.send(s, NotifyWonderCombos, Combos{Stage: s.Built + 1, Combos: combos})
	return combos, nil
}

// resolveRound settles every pending play as one batch. Payments are
// checked against balances from before the round, and nothing is committed
// until the round record is saved.
func (g *Game) resolveRound(ctx context.Context) {
	g.stopTimer()
	g.state.Phase = PhaseRoundResolving
	n := len(g.seats)

	boards := make([]board, n)
	for i, s := range g.seats {
		boards[i] = s.board.clone()
	}

	var (
		plays     = make([]PlayRecord, 0, n)
		played    = make([]*catalog.Card, n)
		discarded []catalog.Card
	)
	for i, s := range g.seats {
		p := g.pending[s.id()]
		plays = append(plays, PlayRecord{PlayerID: s.id(), PendingPlay: p})
		card, ok := boards[i].take(p.Card)
		if !ok {
			g.abort(fmt.Errorf("%w: %s lost %s during resolution", ErrScoringInconsistency, s.id(), p.Card))
			return
		}

		cw, ccw := g.neighbours(i)
		switch p.Kind {
		case PlayCard:
			g.pay(boards, i, cw, ccw, p.Combo)
			boards[i].Played = append(boards[i].Played, card)
			if card.Color == catalog.Blue {
				boards[i].Score.Cultural += card.Points
			}
			if card.Science != "" {
				boards[i].Score.Science = append(boards[i].Score.Science, card.Science)
			}
			boards[i].Score.Coins += card.Coins
			played[i] = &card
		case PlayWonder:
			g.pay(boards, i, cw, ccw, p.Combo)
			stage, _ := s.nextStage(boards[i])
			boards[i].Built++
			boards[i].Score.WonderPoints += stage.Points
			boards[i].Score.Coins += stage.Coins
			if stage.Science {
				boards[i].Score.Science = append(boards[i].Score.Science, scoring.AnySymbol)
			}
		case PlayDiscard:
			boards[i].Score.Coins += g.rules.DiscardBonus
			discarded = append(discarded, card)
		}
	}

	// Income cards count the table after every card of the round is placed.
	for i, card := range played {
		if card == nil || card.Income == nil {
			continue
		}
		cw, ccw := g.neighbours(i)
		boards[i].Score.Coins += card.Income.Apply(
			g.seats[i].tally(boards[i]),
			g.seats[cw].tally(boards[cw]),
			g.seats[ccw].tally(boards[ccw]),
		)
	}

	next := g.state.next()
	if next.Phase == PhasePlaying {
		g.rotate(boards)
	} else {
		for i := range boards {
			discarded = append(discarded, boards[i].Hand...)
			boards[i].Hand = nil
		}
	}

	record := RoundRecord{
		GameID:    g.ID,
		Age:       g.state.Age,
		Round:     g.state.Round,
		Plays:     plays,
		Seats:     make([]SeatSnapshot, n),
		Discarded: cardNames(discarded),
		Next:      next,
	}
	for i, s := range g.seats {
		record.Seats[i] = s.snapshot(boards[i])
	}
	if err := g.store.SaveRound(ctx, record); err != nil {
		g.fault(PhasePlaying, persistErr("save round", err), g.resolveRound)
		return
	}

	for i, s := range g.seats {
		s.board = boards[i]
	}
	g.discard = append(g.discard, discarded...)
	g.state = next
	g.logger.Info("round resolved",
		zap.Int("age", record.Age),
		zap.Int("round", record.Round),
		zap.String("next", next.String()),
	)

	if next.Phase == PhaseAgeResolving {
		g.resolveAge(ctx)
		return
	}
	g.startRound()
}

// pay moves a combo's coins from seat i to its neighbours.
func (g *Game) pay(boards []board, i, cw, ccw int, c combo.Combo) {
	boards[i].Score.Coins -= c.Total()
	boards[cw].Score.Coins += c.Clockwise.Cost
	boards[ccw].Score.Coins += c.CounterClockwise.Cost
}

// rotate passes every remaining hand to the next seat in the age's
// direction.
func (g *Game) rotate(boards []board) {
	n := len(boards)
	hands := make([][]catalog.Card, n)
	for i := range boards {
		dest := clockwiseOf(i, n)
		if PassDirection(g.state.Age) == market.CounterClockwise {
			dest = counterClockwiseOf(i, n)
		}
		hands[dest] = boards[i].Hand
	}
	for i := range boards {
		boards[i].Hand = hands[i]
	}
}

// resolveAge settles military conflicts and opens the next age or ends the
// game.
func (g *Game) resolveAge(ctx context.Context) {
	g.state.Phase = PhaseAgeResolving
	age := g.state.Age

	strengths := make([]int, len(g.seats))
	for i, s := range g.seats {
		strengths[i] = s.shields(s.board)
	}
	settled, err := scoring.SettleMilitary(age, strengths)
	if err != nil {
		g.abort(fmt.Errorf("%w: %v", ErrScoringInconsistency, err))
		return
	}

	boards := make([]board, len(g.seats))
	results := make([]MilitaryResult, len(g.seats))
	for i, s := range g.seats {
		boards[i] = s.board.clone()
		boards[i].Score.Military += settled[i].Delta
		boards[i].Score.Defeats += settled[i].Defeats
		results[i] = MilitaryResult{
			PlayerID: s.id(),
			Strength: strengths[i],
			Delta:    settled[i].Delta,
			Defeats:  settled[i].Defeats,
		}
	}

	// After the last age the state stays here until final scores commit.
	next := g.state
	if age < Ages {
		next = State{Age: age + 1, Round: 1, Phase: PhasePlaying}
	}
	record := MilitaryRecord{
		GameID:  g.ID,
		Age:     age,
		Results: results,
		Seats:   make([]SeatSnapshot, len(g.seats)),
		Next:    next,
	}
	for i, s := range g.seats {
		record.Seats[i] = s.snapshot(boards[i])
	}
	if err := g.store.SaveMilitary(ctx, record); err != nil {
		g.fault(PhaseAgeResolving, persistErr("save military", err), g.resolveAge)
		return
	}

	for i, s := range g.seats {
		s.board = boards[i]
	}
	g.logger.Info("age resolved", zap.Int("age", age))

	if age < Ages {
		g.state = next
		g.startAge()
		return
	}
	g.endGame(ctx)
}

// endGame applies end-game bonus cards, ranks the table and ends the game.
func (g *Game) endGame(ctx context.Context) {
	n := len(g.seats)
	boards := make([]board, n)
	for i, s := range g.seats {
		boards[i] = s.board.clone()
	}
	tallies := make([]scoring.Tally, n)
	for i, s := range g.seats {
		tallies[i] = s.tally(boards[i])
	}

	entries := make([]scoring.Entry, n)
	for i, s := range g.seats {
		cw, ccw := g.neighbours(i)
		for _, card := range boards[i].Played {
			if card.Bonus == nil {
				continue
			}
			points := card.Bonus.Apply(tallies[i], tallies[cw], tallies[ccw])
			boards[i].Score.Credit(card.Bonus.Bucket, points)
		}
		entries[i] = scoring.NewEntry(s.id(), s.name(), boards[i].Score)
	}
	ranking := scoring.Rank(entries)

	if err := g.store.SaveFinalScores(ctx, g.ID, ranking); err != nil {
		g.fault(PhaseAgeResolving, persistErr("save final scores", err), g.endGame)
		return
	}

	for i, s := range g.seats {
		s.board = boards[i]
	}
	g.ranking = ranking
	g.state.Phase = PhaseGameEnded
	g.publish()

	g.broadcast(NotifyPlayersInfo, g.playersInfo())
	g.broadcast(NotifyRanking, ranking)

	var winners []string
	for _, e := range ranking {
		if e.Winner {
			winners = append(winners, e.PlayerID)
		}
	}
	g.logger.Info("game ended", zap.Strings("winners", winners))
}

// handleTimeout discards the first card of every seat that has not played
// when the round deadline passes.
func (g *Game) handleTimeout(ctx context.Context) {
	if g.state.Phase != PhasePlaying {
		return
	}
	for _, s := range g.seats {
		if _, ok := g.pending[s.id()]; ok || len(s.Hand) == 0 {
			continue
		}
		g.pending[s.id()] = PendingPlay{Kind: PlayDiscard, Card: s.Hand[0].Name}
		g.logger.Warn("round deadline passed, discarding for player",
			zap.String("player_id", s.id()),
			zap.String("card", s.Hand[0].Name),
		)
	}
	if len(g.pending) == len(g.seats) {
		g.resolveRound(ctx)
	}
}
