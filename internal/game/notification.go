package game

import (
	"time"

	"github.com/boardgames/wonders-server-go/internal/catalog"
	"github.com/boardgames/wonders-server-go/internal/game/combo"
	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

// NotificationType names an engine-to-player message.
type NotificationType string

const (
	NotifyJoinGame     NotificationType = "joinGame"
	NotifyNewPlayer    NotificationType = "newPlayer"
	NotifyWonderOption NotificationType = "wonderOption"
	NotifySideChosen   NotificationType = "sideChosen"
	NotifyPlayOrder    NotificationType = "playOrder"
	NotifyHand         NotificationType = "hand"
	NotifyPlayersInfo  NotificationType = "playersInfo"
	NotifyPlayCombos   NotificationType = "playCombos"
	NotifyWonderCombos NotificationType = "wonderCombos"
	NotifyRanking      NotificationType = "ranking"
	NotifyError        NotificationType = "error"
	NotifyGameFault    NotificationType = "gameFault"
)

// Notification is a message delivered on a seat's notification channel.
type Notification struct {
	Type      NotificationType `json:"type"`
	GameID    string           `json:"gameId"`
	PlayerID  string           `json:"playerId,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Data      interface{}      `json:"data"`
}

// SeatRef identifies a seated player.
type SeatRef struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Bot      bool   `json:"bot,omitempty"`
}

// GameInfo is sent to a player when they join.
type GameInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatorID  string    `json:"creatorId"`
	MaxPlayers int       `json:"maxPlayers"`
	Players    []SeatRef `json:"players"`
}

// WonderOption offers a seat its wonder and both sides.
type WonderOption struct {
	Wonder catalog.Wonder `json:"wonder"`
}

// SideChosen announces a seat's side choice.
type SideChosen struct {
	PlayerID string       `json:"playerId"`
	Wonder   string       `json:"wonder"`
	Side     catalog.Side `json:"side"`
}

// PlayOrder lists seats clockwise starting from the creator, with the
// direction hands travel this age.
type PlayOrder struct {
	Age       int              `json:"age"`
	Players   []SeatRef        `json:"players"`
	Direction market.Direction `json:"direction"`
}

// Hand is a seat's current hand.
type Hand struct {
	Age   int            `json:"age"`
	Round int            `json:"round"`
	Cards []catalog.Card `json:"cards"`
}

// PlayerInfo is the read-only public view of one seat.
type PlayerInfo struct {
	PlayerID         string           `json:"playerId"`
	Name             string           `json:"name"`
	Bot              bool             `json:"bot,omitempty"`
	Wonder           string           `json:"wonder"`
	Side             catalog.Side     `json:"side"`
	WonderResource   resource.Kind    `json:"wonderResource"`
	StagesBuilt      int              `json:"stagesBuilt"`
	StagesTotal      int              `json:"stagesTotal"`
	Coins            int              `json:"coins"`
	Shields          int              `json:"shields"`
	Military         int              `json:"military"`
	Defeats          int              `json:"defeats"`
	Cultural         int              `json:"cultural"`
	Commercial       int              `json:"commercial"`
	Guilds           int              `json:"guilds"`
	WonderPoints     int              `json:"wonderPoints"`
	Science          []scoring.Symbol `json:"science"`
	ScienceScore     int              `json:"scienceScore"`
	CardsPlayed      []string         `json:"cardsPlayed"`
	Clockwise        string           `json:"clockwisePlayer"`
	CounterClockwise string           `json:"counterClockwisePlayer"`
	Submitted        bool             `json:"submitted"`
}

// Combos answers a combo request.
type Combos struct {
	Card   string        `json:"card,omitempty"`
	Stage  int           `json:"stage,omitempty"`
	Combos []combo.Combo `json:"combos"`
}

// ErrorMessage reports a rejected action to the seat that sent it.
type ErrorMessage struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Fault reports that the game stopped accepting actions.
type Fault struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}
