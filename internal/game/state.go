package game

import (
	"fmt"

	"github.com/boardgames/wonders-server-go/internal/game/market"
)

const (
	// Ages is the number of ages in a game.
	Ages = 3
	// RoundsPerAge is the number of simultaneous plays per age.
	RoundsPerAge = 6
	// HandSize is the number of cards dealt to each seat per age.
	HandSize = 7

	MinPlayers = 3
	MaxPlayers = 7
)

// Phase is the coordinator's position in the game lifecycle.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseWonderAssignment
	PhaseWonderSideChoice
	PhasePlaying
	PhaseRoundResolving
	PhaseAgeResolving
	PhaseGameEnded
	PhaseFaulted
)

var phaseNames = map[Phase]string{
	PhaseNew:              "NEW",
	PhaseWonderAssignment: "WONDER_ASSIGNMENT",
	PhaseWonderSideChoice: "WONDER_SIDE_CHOICE",
	PhasePlaying:          "PLAYING",
	PhaseRoundResolving:   "ROUND_RESOLVING",
	PhaseAgeResolving:     "AGE_RESOLVING",
	PhaseGameEnded:        "GAME_ENDED",
	PhaseFaulted:          "FAULTED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// State is the game's position: age, round and phase.
type State struct {
	Age   int   `json:"age"`
	Round int   `json:"round"`
	Phase Phase `json:"phase"`
}

func (s State) String() string {
	return fmt.Sprintf("%s(age=%d, round=%d)", s.Phase, s.Age, s.Round)
}

// PassDirection is where hands travel at the end of a round: clockwise in
// ages I and III, counter-clockwise in age II.
func PassDirection(age int) market.Direction {
	if age == 2 {
		return market.CounterClockwise
	}
	return market.Clockwise
}

// next returns the state that follows a resolved round.
func (s State) next() State {
	if s.Round < RoundsPerAge {
		return State{Age: s.Age, Round: s.Round + 1, Phase: PhasePlaying}
	}
	return State{Age: s.Age, Round: s.Round, Phase: PhaseAgeResolving}
}

// clockwiseOf returns the seat index clockwise of i at a table of n.
func clockwiseOf(i, n int) int { return (i + 1) % n }

// counterClockwiseOf returns the seat index counter-clockwise of i.
func counterClockwiseOf(i, n int) int { return (i - 1 + n) % n }
