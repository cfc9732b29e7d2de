package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

const actionQueueSize = 100

// Rules are the tunable table rules.
type Rules struct {
	StartingCoins int
	DiscardBonus  int
	// RoundTimeout force-discards for seats that have not submitted when it
	// fires. Zero waits indefinitely.
	RoundTimeout time.Duration
}

// DefaultRules returns the base game rules.
func DefaultRules() Rules {
	return Rules{StartingCoins: 3, DiscardBonus: 3}
}

// Options configure a new game.
type Options struct {
	ID         string
	Name       string
	CreatorID  string
	MaxPlayers int
	Catalog    *catalog.Catalog
	Store      Store
	Rules      Rules
	// Seed makes shuffles reproducible; zero seeds from the clock.
	Seed   int64
	Logger *zap.Logger
}

// Game is one session. A single coordinator goroutine (Run) owns all game
// state; players interact through Seat handles.
type Game struct {
	ID         string
	Name       string
	CreatorID  string
	MaxPlayers int
	CreatedAt  time.Time

	catalog *catalog.Catalog
	store   Store
	rules   Rules
	logger  *zap.Logger
	rng     *rand.Rand

	actions chan *action
	done    chan struct{}

	// Owned by the coordinator goroutine.
	state   State
	seats   []*seat
	pending map[string]PendingPlay
	dealt   map[int][][]catalog.Card
	discard []catalog.Card
	ranking []scoring.Entry
	timer   *time.Timer

	// Set while faulted: the phase to return to and the step to retry.
	faultedFrom Phase
	retry       func(ctx context.Context)
	aborted     bool

	viewMu sync.RWMutex
	view   Summary
}

// Summary is a consistent read-only view of a game for listings.
type Summary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CreatorID  string          `json:"creatorId"`
	MaxPlayers int             `json:"maxPlayers"`
	CreatedAt  time.Time       `json:"createdAt"`
	State      State           `json:"state"`
	Players    []PlayerInfo    `json:"players"`
	Ranking    []scoring.Entry `json:"ranking,omitempty"`
}

// NewGame validates options and creates a game in PhaseNew. Call Run to
// start its coordinator.
func NewGame(opts Options) (*Game, error) {
	if opts.MaxPlayers < MinPlayers || opts.MaxPlayers > MaxPlayers {
		return nil, fmt.Errorf("%w: max players must be between %d and %d", ErrInvalidAction, MinPlayers, MaxPlayers)
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Name == "" {
		opts.Name = "Game " + opts.ID[:8]
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := &Game{
		ID:         opts.ID,
		Name:       opts.Name,
		CreatorID:  opts.CreatorID,
		MaxPlayers: opts.MaxPlayers,
		CreatedAt:  time.Now(),
		catalog:    opts.Catalog,
		store:      opts.Store,
		rules:      opts.Rules,
		logger:     opts.Logger.With(zap.String("game_id", opts.ID)),
		rng:        rand.New(rand.NewSource(seed)),
		actions:    make(chan *action, actionQueueSize),
		done:       make(chan struct{}),
		state:      State{Phase: PhaseNew},
		pending:    make(map[string]PendingPlay),
	}
	g.publish()
	return g, nil
}

// Record returns the game's durable description.
func (g *Game) Record() GameRecord {
	return GameRecord{
		ID:         g.ID,
		Name:       g.Name,
		CreatorID:  g.CreatorID,
		MaxPlayers: g.MaxPlayers,
		CreatedAt:  g.CreatedAt,
	}
}

// Done is closed when the coordinator stops.
func (g *Game) Done() <-chan struct{} { return g.done }

// Summary returns the latest published view.
func (g *Game) Summary() Summary {
	g.viewMu.RLock()
	defer g.viewMu.RUnlock()
	return g.view
}

// Join seats a player. The game starts when the last seat is filled.
func (g *Game) Join(ctx context.Context, playerID, name string) (*Seat, error) {
	res, err := g.submit(ctx, &action{kind: actionJoin, playerID: playerID, name: name})
	return res.seat, err
}

// AddBot seats a bot on behalf of the creator.
func (g *Game) AddBot(ctx context.Context, requesterID string) (*Seat, error) {
	res, err := g.submit(ctx, &action{kind: actionAddBot, playerID: requesterID})
	return res.seat, err
}

// Recover resumes a faulted game once the store is reachable again.
func (g *Game) Recover(ctx context.Context) error {
	_, err := g.submit(ctx, &action{kind: actionRecover})
	return err
}

type actionKind int

const (
	actionJoin actionKind = iota
	actionAddBot
	actionChooseSide
	actionPlay
	actionBuildWonder
	actionDiscard
	actionCombos
	actionWonderCombos
	actionRecover
)

var actionNames = map[actionKind]string{
	actionJoin:         "joinGame",
	actionAddBot:       "addBot",
	actionChooseSide:   "chooseWonderSide",
	actionPlay:         "playCard",
	actionBuildWonder:  "buildWonder",
	actionDiscard:      "discard",
	actionCombos:       "requestCombos",
	actionWonderCombos: "requestWonderCombos",
	actionRecover:      "recover",
}

func (k actionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ACTION_%d", int(k))
}

type action struct {
	kind     actionKind
	playerID string
	name     string
	card     string
	side     catalog.Side
	combo    combo.Combo
	reply    chan result
}

type result struct {
	seat   *Seat
	combos []combo.Combo
	err    error
}

// submit queues an action for the coordinator and waits for its reply.
func (g *Game) submit(ctx context.Context, a *action) (result, error) {
	a.reply = make(chan result, 1)

	select {
	case g.actions <- a:
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-g.done:
		return result{}, fmt.Errorf("%w: %s", ErrGameClosed, g.ID)
	}

	select {
	case res := <-a.reply:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-g.done:
		return result{}, fmt.Errorf("%w: %s", ErrGameClosed, g.ID)
	}
}

// Run is the coordinator loop. It returns when ctx is cancelled, when the
// game ends, or when it is aborted.
func (g *Game) Run(ctx context.Context) {
	defer g.shutdown()

	g.logger.Info("game coordinator started", zap.Int("max_players", g.MaxPlayers))
	for {
		var timeout <-chan time.Time
		if g.timer != nil {
			timeout = g.timer.C
		}

		select {
		case <-ctx.Done():
			g.logger.Info("game coordinator cancelled", zap.String("state", g.state.String()))
			return
		case a := <-g.actions:
			a.reply <- g.handle(ctx, a)
		case <-timeout:
			g.timer = nil
			g.handleTimeout(ctx)
		}

		if g.state.Phase == PhaseGameEnded || g.aborted {
			return
		}
	}
}

func (g *Game) shutdown() {
	g.stopTimer()
	close(g.done)
	for _, s := range g.seats {
		close(s.handle.notify)
	}
	g.logger.Info("game coordinator stopped", zap.String("state", g.state.String()))
}

// handle routes an action and reports failures to the originating seat.
func (g *Game) handle(ctx context.Context, a *action) result {
	var res result
	switch a.kind {
	case actionJoin:
		res.seat, res.err = g.join(ctx, a.playerID, a.name, false)
	case actionAddBot:
		res.seat, res.err = g.addBot(ctx, a.playerID)
	case actionChooseSide:
		res.err = g.chooseSide(ctx, a.playerID, a.side)
	case actionPlay:
		res.err = g.submitPlay(ctx, a.playerID, PendingPlay{Kind: PlayCard, Card: a.card, Combo: a.combo})
	case actionBuildWonder:
		res.err = g.submitPlay(ctx, a.playerID, PendingPlay{Kind: PlayWonder, Card: a.card, Combo: a.combo})
	case actionDiscard:
		res.err = g.submitPlay(ctx, a.playerID, PendingPlay{Kind: PlayDiscard, Card: a.card})
	case actionCombos:
		res.combos, res.err = g.requestCombos(a.playerID, a.card)
	case actionWonderCombos:
		res.combos, res.err = g.requestWonderCombos(a.playerID)
	case actionRecover:
		res.err = g.recover(ctx)
	default:
		res.err = fmt.Errorf("%w: unknown action %s", ErrInvalidAction, a.kind)
	}

	if res.err != nil && errors.Is(res.err, ErrScoringInconsistency) && !g.aborted {
		g.abort(res.err)
	}
	if res.err != nil {
		g.logger.Debug("action rejected",
			zap.String("action", a.kind.String()),
			zap.String("player_id", a.playerID),
			zap.Error(res.err),
		)
		if i := g.seatIndex(a.playerID); i >= 0 {
			g.send(g.seats[i], NotifyError, ErrorMessage{Action: a.kind.String(), Message: res.err.Error()})
		}
	}
	return res
}

func (g *Game) seatIndex(playerID string) int {
	for i, s := range g.seats {
		if s.id() == playerID {
			return i
		}
	}
	return -1
}

func (g *Game) neighbours(i int) (cw, ccw int) {
	n := len(g.seats)
	return clockwiseOf(i, n), counterClockwiseOf(i, n)
}

// send delivers a notification without ever blocking the coordinator.
func (g *Game) send(s *seat, typ NotificationType, data interface{}) {
	n := Notification{
		Type:      typ,
		GameID:    g.ID,
		PlayerID:  s.id(),
		Timestamp: time.Now(),
		Data:      data,
	}
	select {
	case s.handle.notify <- n:
	default:
		g.logger.Warn("notification dropped, seat not reading",
			zap.String("player_id", s.id()),
			zap.String("type", string(typ)),
		)
	}
}

func (g *Game) broadcast(typ NotificationType, data interface{}) {
	for _, s := range g.seats {
		g.send(s, typ, data)
	}
}

// publish refreshes the view returned by Summary.
func (g *Game) publish() {
	view := Summary{
		ID:         g.ID,
		Name:       g.Name,
		CreatorID:  g.CreatorID,
		MaxPlayers: g.MaxPlayers,
		CreatedAt:  g.CreatedAt,
		State:      g.state,
		Players:    g.playersInfo(),
		Ranking:    append([]scoring.Entry(nil), g.ranking...),
	}

	g.viewMu.Lock()
	g.view = view
	g.viewMu.Unlock()
}

func (g *Game) playersInfo() []PlayerInfo {
	infos := make([]PlayerInfo, len(g.seats))
	for i, s := range g.seats {
		cw, ccw := g.neighbours(i)
		_, submitted := g.pending[s.id()]
		infos[i] = s.info(s.board, g.seats[cw], g.seats[ccw], submitted)
	}
	return infos
}

func (g *Game) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// fault stops the game after a failed durable write. Nothing from the
// failed transition has been committed; retry re-runs it after recovery.
func (g *Game) fault(from Phase, err error, retry func(ctx context.Context)) {
	g.stopTimer()
	g.faultedFrom = from
	g.retry = retry
	g.state.Phase = PhaseFaulted
	g.logger.Error("game faulted", zap.String("resume_phase", from.String()), zap.Error(err))
	g.broadcast(NotifyGameFault, Fault{Message: err.Error()})
	g.publish()
}

// abort ends the game after inconsistent rule data.
func (g *Game) abort(err error) {
	g.stopTimer()
	g.aborted = true
	g.state.Phase = PhaseFaulted
	g.logger.Error("game aborted", zap.Error(err))
	g.broadcast(NotifyGameFault, Fault{Message: err.Error(), Fatal: true})
	g.publish()
}

func (g *Game) recover(ctx context.Context) error {
	if g.state.Phase != PhaseFaulted {
		return fmt.Errorf("%w: game is not faulted", ErrInvalidAction)
	}
	if g.aborted {
		return fmt.Errorf("%w: game was aborted", ErrScoringInconsistency)
	}
	if err := g.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: store unavailable: %v", ErrPersistence, err)
	}

	g.logger.Info("game recovering", zap.String("resume_phase", g.faultedFrom.String()))
	g.state.Phase = g.faultedFrom
	retry := g.retry
	g.retry = nil
	g.publish()
	if retry != nil {
		retry(ctx)
	}
	return nil
}

// persistErr wraps a store failure.
func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
