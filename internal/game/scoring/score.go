package scoring

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownAge is returned for an age outside 1..3.
var ErrUnknownAge = errors.New("unknown age")

// CoinsPerPoint is how many coins are worth one point at game end.
const CoinsPerPoint = 3

// ScoreState is a seat's running score.
type ScoreState struct {
	Coins        int      `json:"coins"`
	Military     int      `json:"military"`
	Defeats      int      `json:"defeats"`
	Cultural     int      `json:"cultural"`
	Science      []Symbol `json:"science"`
	Commercial   int      `json:"commercial"`
	Guilds       int      `json:"guilds"`
	WonderPoints int      `json:"wonderPoints"`
}

// Clone returns a deep copy.
func (s ScoreState) Clone() ScoreState {
	c := s
	c.Science = append([]Symbol(nil), s.Science...)
	return c
}

// Breakdown itemises a final score.
type Breakdown struct {
	Military   int `json:"military"`
	Treasury   int `json:"treasury"`
	Wonder     int `json:"wonder"`
	Cultural   int `json:"cultural"`
	Science    int `json:"science"`
	Commercial int `json:"commercial"`
	Guilds     int `json:"guilds"`
}

// Total sums the breakdown.
func (b Breakdown) Total() int {
	return b.Military + b.Treasury + b.Wonder + b.Cultural + b.Science + b.Commercial + b.Guilds
}

// Final computes the end-of-game breakdown for a seat.
func Final(s ScoreState) Breakdown {
	return Breakdown{
		Military:   s.Military,
		Treasury:   s.Coins / CoinsPerPoint,
		Wonder:     s.WonderPoints,
		Cultural:   s.Cultural,
		Science:    ScienceScore(s.Science),
		Commercial: s.Commercial,
		Guilds:     s.Guilds,
	}
}

// Entry is one row of the final ranking.
type Entry struct {
	PlayerID  string    `json:"playerId"`
	Name      string    `json:"name"`
	Score     int       `json:"score"`
	Coins     int       `json:"coins"`
	Winner    bool      `json:"winner"`
	Breakdown Breakdown `json:"breakdown"`
}

// NewEntry scores a seat.
func NewEntry(playerID, name string, s ScoreState) Entry {
	b := Final(s)
	return Entry{
		PlayerID:  playerID,
		Name:      name,
		Score:     b.Total(),
		Coins:     s.Coins,
		Breakdown: b,
	}
}

// Rank orders entries by score then coins, both descending, and flags every
// entry tied with the leader on both as a winner.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Coins > ranked[j].Coins
	})
	for i := range ranked {
		ranked[i].Winner = ranked[i].Score == ranked[0].Score && ranked[i].Coins == ranked[0].Coins
	}
	return ranked
}

// MilitaryPoints returns the victory points for winning a conflict in age.
func MilitaryPoints(age int) (int, error) {
	switch age {
	case 1:
		return 1, nil
	case 2:
		return 3, nil
	case 3:
		return 5, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownAge, age)
}

// DefeatPenalty is applied per conflict lost.
const DefeatPenalty = -1

// MilitaryResult is one seat's outcome of an age's conflicts.
type MilitaryResult struct {
	Seat    int `json:"seat"`
	Delta   int `json:"delta"`
	Defeats int `json:"defeats"`
}

// SettleMilitary compares every seat with both neighbours on the ring;
// seat i's clockwise neighbour is i+1. A strictly stronger seat gains the
// age's points, a strictly weaker one loses one point, a tie does nothing.
func SettleMilitary(age int, strengths []int) ([]MilitaryResult, error) {
	win, err := MilitaryPoints(age)
	if err != nil {
		return nil, err
	}

	n := len(strengths)
	results := make([]MilitaryResult, n)
	for i := range strengths {
		results[i].Seat = i
		if n < 2 {
			continue
		}
		for _, j := range []int{(i + 1) % n, (i - 1 + n) % n} {
			switch {
			case strengths[i] > strengths[j]:
				results[i].Delta += win
			case strengths[i] < strengths[j]:
				results[i].Delta += DefeatPenalty
				results[i].Defeats++
			}
		}
	}
	return results, nil
}
