package resource

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Kind is a single resource type, identified by its one-letter code.
type Kind string

const (
	Wood    Kind = "W"
	Stone   Kind = "S"
	Clay    Kind = "C"
	Ore     Kind = "O"
	Loom    Kind = "L"
	Glass   Kind = "G"
	Papyrus Kind = "P"
)

// ErrMalformedCost is returned when a cost or production string cannot be parsed.
var ErrMalformedCost = errors.New("malformed cost")

var (
	rawKinds          = []Kind{Wood, Stone, Clay, Ore}
	manufacturedKinds = []Kind{Loom, Glass, Papyrus}
	kindOrder         = map[Kind]int{Wood: 0, Stone: 1, Clay: 2, Ore: 3, Loom: 4, Glass: 5, Papyrus: 6}

	// A token is either a coin amount or one letter optionally followed by
	// "/letter" alternatives, e.g. "3", "W", "W/C", "L/G/P".
	tokenPattern = regexp.MustCompile(`[0-9]+|[A-Za-z](?:/[A-Za-z])*`)
)

// RawKinds returns the raw materials (brown card goods).
func RawKinds() []Kind { return append([]Kind(nil), rawKinds...) }

// ManufacturedKinds returns the manufactured goods (gray card goods).
func ManufacturedKinds() []Kind { return append([]Kind(nil), manufacturedKinds...) }

// AllKinds returns every resource kind in canonical order.
func AllKinds() []Kind { return append(RawKinds(), manufacturedKinds...) }

// ParseKind converts a one-letter code into a Kind.
func ParseKind(code string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.TrimSpace(code)))
	_, ok := kindOrder[k]
	return k, ok
}

// IsRaw reports whether k is a raw material.
func (k Kind) IsRaw() bool {
	switch k {
	case Wood, Stone, Clay, Ore:
		return true
	}
	return false
}

// IsManufactured reports whether k is a manufactured good.
func (k Kind) IsManufactured() bool {
	switch k {
	case Loom, Glass, Papyrus:
		return true
	}
	return false
}

// SortKinds orders kinds canonically (raw first, then manufactured).
func SortKinds(kinds []Kind) {
	sort.SliceStable(kinds, func(i, j int) bool {
		return kindOrder[kinds[i]] < kindOrder[kinds[j]]
	})
}

// Group is an either/or unit: exactly one of its kinds is provided or required.
type Group []Kind

// String renders the group as "W/C".
func (g Group) String() string {
	parts := make([]string, len(g))
	for i, k := range g {
		parts[i] = string(k)
	}
	return strings.Join(parts, "/")
}

// Contains reports whether the group offers k.
func (g Group) Contains(k Kind) bool {
	for _, gk := range g {
		if gk == k {
			return true
		}
	}
	return false
}

// Cost is a parsed card or stage cost: coins plus a resource requirement.
type Cost struct {
	Coins       int
	Requirement Requirement
}

// Free reports whether nothing at all has to be paid.
func (c Cost) Free() bool {
	return c.Coins == 0 && c.Requirement.Empty()
}

// String returns the canonical cost string.
func (c Cost) String() string {
	var b strings.Builder
	if c.Coins > 0 {
		b.WriteString(strconv.Itoa(c.Coins))
	}
	b.WriteString(c.Requirement.String())
	return b.String()
}

// ParseCost parses a cost string such as "", "1", "WW", "WPL" or "W/CS".
// Digits add coins, letters add one required unit, and a slash joins
// letters into a single either/or unit. Whitespace is ignored.
func ParseCost(costStr string) (Cost, error) {
	cost := Cost{Requirement: NewRequirement()}
	compact := strings.Join(strings.Fields(costStr), "")
	if compact == "" {
		return cost, nil
	}

	if rest := tokenPattern.ReplaceAllString(compact, ""); rest != "" {
		return Cost{}, fmt.Errorf("%w: unexpected %q in %q", ErrMalformedCost, rest, costStr)
	}

	for _, token := range tokenPattern.FindAllString(compact, -1) {
		if n, err := strconv.Atoi(token); err == nil {
			cost.Coins += n
			continue
		}
		group, err := parseGroup(token)
		if err != nil {
			return Cost{}, fmt.Errorf("%w: %q: %v", ErrMalformedCost, costStr, err)
		}
		if len(group) == 1 {
			cost.Requirement.Fixed[group[0]]++
		} else {
			cost.Requirement.Choices = append(cost.Requirement.Choices, group)
		}
	}

	return cost, nil
}

// MustParseCost is ParseCost for static data; it panics on error.
func MustParseCost(costStr string) Cost {
	c, err := ParseCost(costStr)
	if err != nil {
		panic(err)
	}
	return c
}

func parseGroup(token string) (Group, error) {
	parts := strings.Split(token, "/")
	group := make(Group, 0, len(parts))
	seen := make(map[Kind]bool, len(parts))
	for _, p := range parts {
		k, ok := ParseKind(p)
		if !ok {
			return nil, fmt.Errorf("unknown resource %q", p)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		group = append(group, k)
	}
	return group, nil
}

// Requirement is an unresolved multiset of resources still owed. A kind
// appearing in Fixed may also appear in Choices; Choices units are
// satisfied by providing any one of their kinds.
type Requirement struct {
	Fixed   map[Kind]int
	Choices []Group
}

// NewRequirement returns an empty requirement.
func NewRequirement() Requirement {
	return Requirement{Fixed: make(map[Kind]int)}
}

// Clone returns a deep copy.
func (r Requirement) Clone() Requirement {
	c := Requirement{Fixed: make(map[Kind]int, len(r.Fixed))}
	for k, n := range r.Fixed {
		if n > 0 {
			c.Fixed[k] = n
		}
	}
	if len(r.Choices) > 0 {
		c.Choices = make([]Group, len(r.Choices))
		copy(c.Choices, r.Choices)
	}
	return c
}

// Need returns the plain count still owed for k.
func (r Requirement) Need(k Kind) int {
	return r.Fixed[k]
}

// Empty reports whether nothing is owed.
func (r Requirement) Empty() bool {
	return r.Total() == 0
}

// Total returns the number of units owed, counting each either/or unit once.
func (r Requirement) Total() int {
	total := len(r.Choices)
	for _, n := range r.Fixed {
		if n > 0 {
			total += n
		}
	}
	return total
}

// Kinds returns the kinds with a positive plain count, in canonical order.
func (r Requirement) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.Fixed))
	for k, n := range r.Fixed {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	SortKinds(kinds)
	return kinds
}

// Take decrements k by one and reports whether it was owed.
func (r Requirement) Take(k Kind) bool {
	if r.Fixed[k] <= 0 {
		return false
	}
	r.Fixed[k]--
	if r.Fixed[k] == 0 {
		delete(r.Fixed, k)
	}
	return true
}

// Expand resolves the requirement's own either/or units into every plain
// requirement they can stand for. A requirement without choices expands
// to itself.
func (r Requirement) Expand() []Requirement {
	out := []Requirement{{Fixed: r.Clone().Fixed}}
	for _, g := range r.Choices {
		next := make([]Requirement, 0, len(out)*len(g))
		seen := make(map[string]bool)
		for _, base := range out {
			for _, k := range g {
				alt := base.Clone()
				alt.Fixed[k]++
				if sig := alt.Signature(); !seen[sig] {
					seen[sig] = true
					next = append(next, alt)
				}
			}
		}
		out = next
	}
	return out
}

// Signature is a canonical string identifying the requirement, used as a
// memoisation key. Equal requirements have equal signatures.
func (r Requirement) Signature() string {
	var b strings.Builder
	for _, k := range r.Kinds() {
		b.WriteString(string(k))
		b.WriteString(strconv.Itoa(r.Fixed[k]))
	}
	if len(r.Choices) > 0 {
		groups := make([]string, len(r.Choices))
		for i, g := range r.Choices {
			sorted := append(Group(nil), g...)
			SortKinds(sorted)
			groups[i] = sorted.String()
		}
		sort.Strings(groups)
		b.WriteString("|")
		b.WriteString(strings.Join(groups, ","))
	}
	return b.String()
}

// String renders the requirement as a cost string ("WWS", "W/C").
func (r Requirement) String() string {
	var b strings.Builder
	for _, k := range r.Kinds() {
		b.WriteString(strings.Repeat(string(k), r.Fixed[k]))
	}
	for _, g := range r.Choices {
		b.WriteString(g.String())
	}
	return b.String()
}
