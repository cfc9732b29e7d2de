package scoring

import "fmt"

// Symbol is a science symbol carried by green cards and some wonder stages.
type Symbol string

const (
	Compass Symbol = "&"
	Gear    Symbol = "@"
	Tablet  Symbol = "#"
	// AnySymbol counts as whichever symbol scores best.
	AnySymbol Symbol = "&/@/#"
)

// SetBonus is awarded per complete set of the three symbols.
const SetBonus = 7

// ParseSymbol validates a symbol string.
func ParseSymbol(s string) (Symbol, error) {
	switch sym := Symbol(s); sym {
	case Compass, Gear, Tablet, AnySymbol:
		return sym, nil
	}
	return "", fmt.Errorf("unknown science symbol %q", s)
}

// ScienceScore returns the sum of squared symbol counts plus SetBonus per
// complete set, assigning wildcards to maximise the total.
func ScienceScore(symbols []Symbol) int {
	var counts [3]int
	wild := 0
	for _, s := range symbols {
		switch s {
		case Compass:
			counts[0]++
		case Gear:
			counts[1]++
		case Tablet:
			counts[2]++
		case AnySymbol:
			wild++
		}
	}

	best := 0
	for a := 0; a <= wild; a++ {
		for b := 0; a+b <= wild; b++ {
			c := wild - a - b
			if score := scienceFor(counts[0]+a, counts[1]+b, counts[2]+c); score > best {
				best = score
			}
		}
	}
	return best
}

func scienceFor(compass, gear, tablet int) int {
	sets := compass
	if gear < sets {
		sets = gear
	}
	if tablet < sets {
		sets = tablet
	}
	return compass*compass + gear*gear + tablet*tablet + SetBonus*sets
}
