package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
)

// requirePhase rejects actions outside want, distinguishing a faulted game.
func (g *Game) requirePhase(want Phase) error {
	switch {
	case g.state.Phase == want:
		return nil
	case g.state.Phase == PhaseFaulted && g.aborted:
		return fmt.Errorf("%w: game was aborted", ErrScoringInconsistency)
	case g.state.Phase == PhaseFaulted:
		return fmt.Errorf("%w: game is faulted", ErrPersistence)
	}
	return fmt.Errorf("%w: game is %s, expected %s", ErrInvalidAction, g.state.Phase, want)
}

func (g *Game) seated(playerID string) (int, error) {
	i := g.seatIndex(playerID)
	if i < 0 {
		return -1, fmt.Errorf("%w: player %s is not seated", ErrInvalidAction, playerID)
	}
	return i, nil
}

func (g *Game) join(ctx context.Context, playerID, name string, bot bool) (*Seat, error) {
	if err := g.requirePhase(PhaseNew); err != nil {
		return nil, err
	}
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidAction)
	}
	if g.seatIndex(playerID) >= 0 {
		return nil, fmt.Errorf("%w: player %s already joined", ErrInvalidAction, playerID)
	}
	if name == "" {
		name = playerID
	}

	handle := newSeatHandle(g, playerID, name, bot)
	s := &seat{
		handle: handle,
		combos: make(map[string][]combo.Combo),
	}
	s.Score.Coins = g.rules.StartingCoins
	g.seats = append(g.seats, s)

	players := make([]SeatRef, len(g.seats))
	for i, other := range g.seats {
		players[i] = other.ref()
	}
	g.send(s, NotifyJoinGame, GameInfo{
		ID:         g.ID,
		Name:       g.Name,
		CreatorID:  g.CreatorID,
		MaxPlayers: g.MaxPlayers,
		Players:    players,
	})
	for _, other := range g.seats[:len(g.seats)-1] {
		g.send(other, NotifyNewPlayer, s.ref())
	}

	g.logger.Info("player joined",
		zap.String("player_id", playerID),
		zap.Bool("bot", bot),
		zap.Int("seats", len(g.seats)),
	)
	g.publish()

	if len(g.seats) == g.MaxPlayers {
		if err := g.assign(); err != nil {
			g.abort(err)
			return handle, nil
		}
		g.start(ctx)
	}
	return handle, nil
}

func (g *Game) addBot(ctx context.Context, requesterID string) (*Seat, error) {
	if err := g.requirePhase(PhaseNew); err != nil {
		return nil, err
	}
	if requesterID != g.CreatorID {
		return nil, fmt.Errorf("%w: only the game creator can add bots", ErrInvalidAction)
	}
	bots := 0
	for _, s := range g.seats {
		if s.handle.Bot {
			bots++
		}
	}
	return g.join(ctx, uuid.New().String(), fmt.Sprintf("Bot %d", bots+1), true)
}

// assign shuffles wonders onto seats and deals every age.
func (g *Game) assign() error {
	n := len(g.seats)
	wonders := append([]catalog.Wonder(nil), g.catalog.Wonders...)
	if len(wonders) < n {
		return fmt.Errorf("%w: %d wonders for %d players", ErrScoringInconsistency, len(wonders), n)
	}
	g.rng.Shuffle(len(wonders), func(i, j int) { wonders[i], wonders[j] = wonders[j], wonders[i] })
	for i, s := range g.seats {
		s.wonder = wonders[i]
	}

	g.dealt = make(map[int][][]catalog.Card, Ages)
	for age := 1; age <= Ages; age++ {
		hands, err := g.deal(age)
		if err != nil {
			return err
		}
		g.dealt[age] = hands
	}
	return nil
}

// deal shuffles an age's deck and splits it into one hand per seat. Age III
// adds two more guilds than there are players.
func (g *Game) deal(age int) ([][]catalog.Card, error) {
	n := len(g.seats)
	deck := g.catalog.Deck(age, n)
	if age == Ages {
		guilds := g.catalog.Guilds()
		g.rng.Shuffle(len(guilds), func(i, j int) { guilds[i], guilds[j] = guilds[j], guilds[i] })
		if len(guilds) > n+2 {
			guilds = guilds[:n+2]
		}
		deck = append(deck, guilds...)
	}
	if len(deck) < HandSize*n {
		return nil, fmt.Errorf("%w: age %d deck has %d cards for %d players", ErrScoringInconsistency, age, len(deck), n)
	}
	g.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	hands := make([][]catalog.Card, n)
	for i := range hands {
		hands[i] = append([]catalog.Card(nil), deck[i*HandSize:(i+1)*HandSize]...)
	}
	return hands, nil
}

// start persists the assignment and offers each seat its wonder.
func (g *Game) start(ctx context.Context) {
	g.state.Phase = PhaseWonderAssignment

	seats := make([]SeatSnapshot, len(g.seats))
	for i, s := range g.seats {
		seats[i] = s.snapshot(s.board)
	}
	if err := g.store.SaveWonders(ctx, g.ID, seats); err != nil {
		g.fault(PhaseWonderAssignment, persistErr("save wonders", err), g.start)
		return
	}
	for age := 1; age <= Ages; age++ {
		if err := g.store.SaveHands(ctx, g.ID, age, g.handNames(g.dealt[age])); err != nil {
			g.fault(PhaseWonderAssignment, persistErr("save hands", err), g.start)
			return
		}
	}
	next := State{Phase: PhaseWonderSideChoice}
	if err := g.store.SaveState(ctx, g.ID, next); err != nil {
		g.fault(PhaseWonderAssignment, persistErr("save state", err), g.start)
		return
	}

	g.state = next
	for _, s := range g.seats {
		g.send(s, NotifyWonderOption, WonderOption{Wonder: s.wonder})
	}
	g.logger.Info("wonders assigned", zap.Int("players", len(g.seats)))
	g.publish()
}

func (g *Game) handNames(hands [][]catalog.Card) map[string][]string {
	names := make(map[string][]string, len(hands))
	for i, h := range hands {
		names[g.seats[i].id()] = cardNames(h)
	}
	return names
}

func (g *Game) chooseSide(ctx context.Context, playerID string, side catalog.Side) error {
	if err := g.requirePhase(PhaseWonderSideChoice); err != nil {
		return err
	}
	i, err := g.seated(playerID)
	if err != nil {
		return err
	}
	s := g.seats[i]
	if s.sideChosen {
		return fmt.Errorf("%w: side already chosen", ErrInvalidAction)
	}
	if _, ok := s.wonder.Stages(side); !ok {
		return fmt.Errorf("%w: side %q is not offered for %s", ErrInvalidAction, side, s.wonder.Name)
	}

	s.side = side
	s.sideChosen = true
	g.broadcast(NotifySideChosen, SideChosen{PlayerID: playerID, Wonder: s.wonder.Name, Side: side})
	g.logger.Info("wonder side chosen",
		zap.String("player_id", playerID),
		zap.String("wonder", s.wonder.Name),
		zap.String("side", string(side)),
	)
	g.publish()

	for _, other := range g.seats {
		if !other.sideChosen {
			return nil
		}
	}
	g.beginPlay(ctx)
	return nil
}

// beginPlay persists the side choices and opens age I.
func (g *Game) beginPlay(ctx context.Context) {
	sides := make(map[string]catalog.Side, len(g.seats))
	for _, s := range g.seats {
		sides[s.id()] = s.side
	}
	if err := g.store.SaveSideChoices(ctx, g.ID, sides); err != nil {
		g.fault(PhaseWonderSideChoice, persistErr("save side choices", err), g.beginPlay)
		return
	}
	next := State{Age: 1, Round: 1, Phase: PhasePlaying}
	if err := g.store.SaveState(ctx, g.ID, next); err != nil {
		g.fault(PhaseWonderSideChoice, persistErr("save state", err), g.beginPlay)
		return
	}

	g.state = next
	g.startAge()
}

// startAge hands out the age's dealt cards and announces the play order.
func (g *Game) startAge() {
	age := g.state.Age
	for i, s := range g.seats {
		s.Hand = append([]catalog.Card(nil), g.dealt[age][i]...)
	}

	first := g.seatIndex(g.CreatorID)
	if first < 0 {
		first = 0
	}
	order := make([]SeatRef, 0, len(g.seats))
	for k := 0; k < len(g.seats); k++ {
		order = append(order, g.seats[(first+k)%len(g.seats)].ref())
	}
	g.broadcast(NotifyPlayOrder, PlayOrder{Age: age, Players: order, Direction: PassDirection(age)})
	g.logger.Info("age started", zap.Int("age", age))
	g.startRound()
}

// startRound opens a round: clears pending plays and sends every seat the
// public table view and its own hand.
func (g *Game) startRound() {
	g.pending = make(map[string]PendingPlay, len(g.seats))
	for _, s := range g.seats {
		s.combos = make(map[string][]combo.Combo)
	}
	g.publish()

	g.broadcast(NotifyPlayersInfo, g.playersInfo())
	for _, s := range g.seats {
		g.send(s, NotifyHand, Hand{
			Age:   g.state.Age,
			Round: g.state.Round,
			Cards: append([]catalog.Card(nil), s.Hand...),
		})
	}

	if g.rules.RoundTimeout > 0 {
		g.stopTimer()
		g.timer = time.NewTimer(g.rules.RoundTimeout)
	}
	g.logger.Debug("round started", zap.Int("age", g.state.Age), zap.Int("round", g.state.Round))
}
