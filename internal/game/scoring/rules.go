package scoring

import "fmt"

// Scope selects whose boards a rule counts.
type Scope string

const (
	ScopeSelf      Scope = "self"
	ScopeNeighbors Scope = "neighbors"
	ScopeAll       Scope = "all"
)

// Bucket is the score field an end-game rule credits.
type Bucket string

const (
	BucketGuilds     Bucket = "guilds"
	BucketCommercial Bucket = "commercial"
)

// Special tally keys besides card colours.
const (
	CountWonder  = "wonder"
	CountDefeats = "defeats"
)

// Tally counts what a board shows: cards per colour, built wonder stages
// under CountWonder and defeat tokens under CountDefeats.
type Tally map[string]int

// Rule pays Rate per counted item. It is used both for immediate coins when
// a card is played and for end-game points.
type Rule struct {
	Count  []string `yaml:"count" json:"count"`
	Scope  Scope    `yaml:"scope" json:"scope"`
	Rate   int      `yaml:"rate" json:"rate"`
	Bucket Bucket   `yaml:"bucket,omitempty" json:"bucket,omitempty"`
}

// Validate checks the rule's enumerations.
func (r Rule) Validate() error {
	if len(r.Count) == 0 {
		return fmt.Errorf("rule counts nothing")
	}
	switch r.Scope {
	case ScopeSelf, ScopeNeighbors, ScopeAll:
	default:
		return fmt.Errorf("unknown scope %q", r.Scope)
	}
	switch r.Bucket {
	case "", BucketGuilds, BucketCommercial:
	default:
		return fmt.Errorf("unknown bucket %q", r.Bucket)
	}
	return nil
}

// Apply evaluates the rule for a seat and its two neighbours.
func (r Rule) Apply(self, clockwise, counterClockwise Tally) int {
	var boards []Tally
	switch r.Scope {
	case ScopeSelf:
		boards = []Tally{self}
	case ScopeNeighbors:
		boards = []Tally{clockwise, counterClockwise}
	case ScopeAll:
		boards = []Tally{self, clockwise, counterClockwise}
	}

	total := 0
	for _, b := range boards {
		for _, key := range r.Count {
			total += b[key]
		}
	}
	return total * r.Rate
}

// Credit adds points to the rule's bucket.
func (s *ScoreState) Credit(bucket Bucket, points int) {
	switch bucket {
	case BucketCommercial:
		s.Commercial += points
	default:
		s.Guilds += points
	}
}
