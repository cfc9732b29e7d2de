package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Ledger is what a seat produces each turn: plain counts plus either/or
// units. Ledgers are derived from played cards and built stages; they are
// never mutated by spending.
type Ledger struct {
	Fixed   map[Kind]int
	Choices []Group
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Fixed: make(map[Kind]int)}
}

// ParseProduction parses a production string such as "W", "WW", "W/C" or
// "W/S/O/C" into a ledger.
func ParseProduction(value string) (*Ledger, error) {
	l := NewLedger()
	if err := l.AddProduction(value); err != nil {
		return nil, err
	}
	return l, nil
}

// AddProduction adds the resources described by value.
func (l *Ledger) AddProduction(value string) error {
	cost, err := ParseCost(value)
	if err != nil {
		return err
	}
	if cost.Coins > 0 {
		return fmt.Errorf("%w: production %q contains coins", ErrMalformedCost, value)
	}
	for k, n := range cost.Requirement.Fixed {
		l.Add(k, n)
	}
	for _, g := range cost.Requirement.Choices {
		l.AddChoice(g)
	}
	return nil
}

// Add adds n units of k.
func (l *Ledger) Add(k Kind, n int) {
	if n <= 0 {
		return
	}
	if l.Fixed == nil {
		l.Fixed = make(map[Kind]int)
	}
	l.Fixed[k] += n
}

// AddChoice adds one either/or unit. Single-kind groups become plain units.
func (l *Ledger) AddChoice(g Group) {
	switch len(g) {
	case 0:
		return
	case 1:
		l.Add(g[0], 1)
	default:
		l.Choices = append(l.Choices, append(Group(nil), g...))
	}
}

// Merge adds everything other produces.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	for k, n := range other.Fixed {
		l.Add(k, n)
	}
	for _, g := range other.Choices {
		l.AddChoice(g)
	}
}

// Copy returns a deep copy of the ledger.
func (l *Ledger) Copy() *Ledger {
	c := NewLedger()
	c.Merge(l)
	return c
}

// Count returns the plain count of k.
func (l *Ledger) Count(k Kind) int {
	if l == nil {
		return 0
	}
	return l.Fixed[k]
}

// String renders the ledger canonically, e.g. "WWS W/C".
func (l *Ledger) String() string {
	if l == nil {
		return ""
	}
	var parts []string
	if s := (Requirement{Fixed: l.Fixed}).String(); s != "" {
		parts = append(parts, s)
	}
	groups := make([]string, len(l.Choices))
	for i, g := range l.Choices {
		groups[i] = g.String()
	}
	sort.Strings(groups)
	parts = append(parts, groups...)
	return strings.Join(parts, " ")
}

// Reduction is the result of applying a ledger against a plain requirement.
type Reduction struct {
	// Remaining is what the ledger could not cover.
	Remaining Requirement
	// Used lists the units the ledger contributed, in canonical order.
	Used []Kind
	// Open are the ledger's either/or units that could still serve two or
	// more remaining kinds; they need an explicit assignment.
	Open []Group
}

// Reduce subtracts the ledger's plain counts from req and then consumes
// every either/or unit that can serve exactly one still-required kind,
// repeating until nothing more is forced. req's own choices are ignored;
// expand them first.
func (l *Ledger) Reduce(req Requirement) Reduction {
	rem := Requirement{Fixed: req.Clone().Fixed}
	var used []Kind

	if l != nil {
		for _, k := range rem.Kinds() {
			take := rem.Fixed[k]
			if have := l.Fixed[k]; have < take {
				take = have
			}
			for i := 0; i < take; i++ {
				rem.Take(k)
				used = append(used, k)
			}
		}
	}

	var groups []Group
	if l != nil {
		groups = l.Choices
	}
	forced, open := Resolve(rem, groups)
	used = append(used, forced...)
	SortKinds(used)

	return Reduction{Remaining: rem, Used: used, Open: open}
}

// Resolve consumes forced either/or units against rem in place. A unit is
// forced when exactly one of its kinds is still required; units serving
// nothing are dropped. It returns the consumed kinds and the units left
// ambiguous.
func Resolve(rem Requirement, groups []Group) (used []Kind, open []Group) {
	pending := append([]Group(nil), groups...)
	for {
		changed := false
		next := pending[:0:0]
		for _, g := range pending {
			relevant := relevantKinds(rem, g)
			switch len(relevant) {
			case 0:
				changed = true
			case 1:
				rem.Take(relevant[0])
				used = append(used, relevant[0])
				changed = true
			default:
				next = append(next, g)
			}
		}
		pending = next
		if !changed {
			return used, pending
		}
	}
}

// Available returns how many units of k, up to need, the ledger can supply
// when asked for k alone.
func (l *Ledger) Available(k Kind, need int) int {
	if need <= 0 {
		return 0
	}
	req := NewRequirement()
	req.Fixed[k] = need
	return len(l.Reduce(req).Used)
}

func relevantKinds(rem Requirement, g Group) []Kind {
	var out []Kind
	for _, k := range g {
		if rem.Need(k) > 0 {
			out = append(out, k)
		}
	}
	return out
}
