package bot

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
)

// Style weighs the kinds of play a bot prefers.
type Style struct {
	Name     string
	Military float64
	Science  float64
	Guild    float64
	Wonder   float64
	Resource float64
	Cultural float64
}

// Styles are the built-in play styles.
var Styles = []Style{
	{Name: "builder", Military: 2, Science: 0.6, Guild: 5, Wonder: 7, Resource: 4, Cultural: 1},
	{Name: "warmonger", Military: 5, Science: 1, Guild: 4, Wonder: 5, Resource: 2, Cultural: 0.25},
	{Name: "scientist", Military: 3, Science: 3, Guild: 1, Wonder: 3, Resource: 2, Cultural: 1},
}

// Bot drives one seat from its notification stream.
type Bot struct {
	seat   *game.Seat
	style  Style
	delay  time.Duration
	rng    *rand.Rand
	logger *zap.Logger

	wonder  catalog.Wonder
	side    catalog.Side
	players []game.PlayerInfo
}

// New creates a bot for seat. Delay is how long it "thinks" before each play.
func New(seat *game.Seat, style Style, delay time.Duration, seed int64, logger *zap.Logger) *Bot {
	return &Bot{
		seat:   seat,
		style:  style,
		delay:  delay,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With(zap.String("game_id", seat.GameID()), zap.String("bot", seat.Name)),
	}
}

// Launcher returns a game.BotLauncher that gives each bot a random style.
func Launcher(delay time.Duration, logger *zap.Logger) game.BotLauncher {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(ctx context.Context, seat *game.Seat) {
		mu.Lock()
		style := Styles[rng.Intn(len(Styles))]
		seed := rng.Int63()
		mu.Unlock()

		New(seat, style, delay, seed, logger).Run(ctx)
	}
}

// Run reacts to notifications until the game stops or ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("bot started", zap.String("style", b.style.Name))
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-b.seat.Notifications():
			if !ok {
				b.logger.Info("bot stopped")
				return
			}
			b.handle(ctx, n)
		}
	}
}

func (b *Bot) handle(ctx context.Context, n game.Notification) {
	switch data := n.Data.(type) {
	case game.WonderOption:
		b.wonder = data.Wonder
		b.side = catalog.SideA
		if b.rng.Intn(2) == 1 {
			b.side = catalog.SideB
		}
		if err := b.seat.ChooseWonderSide(ctx, b.side); err != nil {
			b.logger.Warn("side choice rejected", zap.Error(err))
		}
	case []game.PlayerInfo:
		b.players = data
	case game.Hand:
		if !b.think(ctx) {
			return
		}
		b.play(ctx, data.Cards)
	}
}

func (b *Bot) think(ctx context.Context) bool {
	if b.delay <= 0 {
		return true
	}
	select {
	case <-time.After(b.delay):
		return true
	case <-ctx.Done():
		return false
	}
}

type plan struct {
	kind   game.PlayKind
	card   catalog.Card
	combo  combo.Combo
	rating float64
}

// play rates every affordable card and the next wonder stage, then submits
// the best, discarding when nothing beats doing nothing.
func (b *Bot) play(ctx context.Context, hand []catalog.Card) {
	if len(hand) == 0 {
		return
	}
	best := plan{kind: game.PlayDiscard}

	for _, card := range hand {
		combos, err := b.seat.RequestCombos(ctx, card.Name)
		if err != nil || len(combos) == 0 {
			continue
		}
		if p := (plan{kind: game.PlayCard, card: card, combo: combos[0], rating: b.rateCard(card, combos[0])}); p.rating > best.rating {
			best = p
		}
	}

	if combos, err := b.seat.RequestWonderCombos(ctx); err == nil && len(combos) > 0 {
		rating := b.style.Wonder - float64(combos[0].Total())
		if rating > best.rating {
			best = plan{kind: game.PlayWonder, combo: combos[0], rating: rating}
		}
	}

	var err error
	switch best.kind {
	case game.PlayCard:
		err = b.seat.SubmitPlay(ctx, best.card.Name, best.combo)
	case game.PlayWonder:
		err = b.seat.SubmitBuildWonder(ctx, b.trash(hand).Name, best.combo)
	default:
		err = b.seat.SubmitDiscard(ctx, b.trash(hand).Name)
	}
	if err != nil {
		b.logger.Warn("play rejected, discarding", zap.String("kind", string(best.kind)), zap.Error(err))
		if err := b.seat.SubmitDiscard(ctx, hand[0].Name); err != nil {
			b.logger.Warn("discard rejected", zap.Error(err))
		}
		return
	}
	b.logger.Debug("bot played",
		zap.String("kind", string(best.kind)),
		zap.String("card", best.card.Name),
		zap.Float64("rating", best.rating),
	)
}

func (b *Bot) rateCard(card catalog.Card, c combo.Combo) float64 {
	rating := -float64(c.Total())
	switch card.Color {
	case catalog.Brown, catalog.Gray:
		rating += b.rateResource(card)
	case catalog.Blue:
		rating += float64(card.Points) * b.style.Cultural
	case catalog.Green:
		rating += b.rateScience(card)
	case catalog.Red:
		rating += b.rateMilitary()
	case catalog.Purple:
		rating += b.style.Guild
	default:
		rating++
	}
	return rating
}

// rateResource counts the kinds card produces that unbuilt stages still
// need.
func (b *Bot) rateResource(card catalog.Card) float64 {
	produced, err := resource.ParseProduction(card.Produces)
	if err != nil {
		return 0
	}
	me := b.me()
	stages := b.wonder.Sides[b.side]
	built := 0
	if me != nil {
		built = me.StagesBuilt
	}

	matches := 0
	for i := built; i < len(stages); i++ {
		cost, err := resource.ParseCost(stages[i].Cost)
		if err != nil {
			continue
		}
		for _, k := range cost.Requirement.Kinds() {
			if produced.Count(k) > 0 || producesChoice(produced, k) {
				matches++
			}
		}
	}
	return float64(matches) * b.style.Resource
}

func producesChoice(l *resource.Ledger, k resource.Kind) bool {
	for _, g := range l.Choices {
		if g.Contains(k) {
			return true
		}
	}
	return false
}

// rateScience favours symbols the bot holds few of.
func (b *Bot) rateScience(card catalog.Card) float64 {
	held := 0
	if me := b.me(); me != nil {
		for _, s := range me.Science {
			if s == card.Science {
				held++
			}
		}
	}
	return float64(5-held) * b.style.Science
}

// rateMilitary favours shields when a neighbour is at least as strong.
func (b *Bot) rateMilitary() float64 {
	me := b.me()
	if me == nil {
		return b.style.Military
	}
	rating := 0.0
	for _, id := range []string{me.Clockwise, me.CounterClockwise} {
		n := b.player(id)
		if n == nil {
			continue
		}
		switch {
		case n.Shields > me.Shields:
			rating += b.style.Military
		case n.Shields == me.Shields:
			rating += b.style.Military / 2
		}
	}
	return rating
}

var trashWeight = map[catalog.Color]func(Style) float64{
	catalog.Red:    func(s Style) float64 { return 3 * s.Military },
	catalog.Gray:   func(s Style) float64 { return s.Resource },
	catalog.Brown:  func(s Style) float64 { return s.Resource },
	catalog.Purple: func(s Style) float64 { return 2 * s.Guild },
	catalog.Green:  func(s Style) float64 { return 9 * s.Science },
	catalog.Blue:   func(s Style) float64 { return 5 * s.Cultural },
}

// trash picks the card to give up for a discard or wonder stage.
func (b *Bot) trash(hand []catalog.Card) catalog.Card {
	best, bestRating := hand[0], 0.0
	for _, card := range hand {
		rating := b.rng.Float64() * 10
		if w, ok := trashWeight[card.Color]; ok {
			rating += w(b.style)
		}
		if rating > bestRating {
			best, bestRating = card, rating
		}
	}
	return best
}

func (b *Bot) me() *game.PlayerInfo {
	return b.player(b.seat.PlayerID)
}

func (b *Bot) player(id string) *game.PlayerInfo {
	for i := range b.players {
		if b.players[i].PlayerID == id {
			return &b.players[i]
		}
	}
	return nil
}
