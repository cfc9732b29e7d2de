package combo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
)

// Payment is one leg of a combo: the resources taken from a source and the
// coins paid for them.
type Payment struct {
	Resources []resource.Kind `json:"resources"`
	Cost      int             `json:"cost"`
}

// Combo is one distinct way to pay for a card or wonder stage. Self lists
// the seat's own resources used and any coin cost paid to the bank; the
// neighbour legs list purchased units and what they cost.
type Combo struct {
	Self             Payment `json:"self"`
	Clockwise        Payment `json:"clockwise"`
	CounterClockwise Payment `json:"counterClockwise"`
}

// Total returns the coins the combo costs the buyer.
func (c Combo) Total() int {
	return c.Self.Cost + c.Clockwise.Cost + c.CounterClockwise.Cost
}

// Key identifies the combo structurally: resource multiset and cost per leg.
func (c Combo) Key() string {
	return fmt.Sprintf("self:%s/%d|cw:%s/%d|ccw:%s/%d",
		kindsString(c.Self.Resources), c.Self.Cost,
		kindsString(c.Clockwise.Resources), c.Clockwise.Cost,
		kindsString(c.CounterClockwise.Resources), c.CounterClockwise.Cost)
}

// Equal reports structural equality.
func (c Combo) Equal(other Combo) bool {
	return c.Key() == other.Key()
}

// Contains reports whether combos holds a combo equal to c.
func Contains(combos []Combo, c Combo) bool {
	key := c.Key()
	for _, candidate := range combos {
		if candidate.Key() == key {
			return true
		}
	}
	return false
}

// Free returns the single zero-cost combo used for free and chained cards.
func Free() []Combo {
	return []Combo{normalize(Combo{})}
}

// Neighbors holds what each neighbour is able to sell.
type Neighbors struct {
	Clockwise        *resource.Ledger
	CounterClockwise *resource.Ledger
}

// SolveCost is Solve for a full cost: the coin part is paid to the bank
// from the same budget and recorded on the Self leg.
func SolveCost(cost resource.Cost, own *resource.Ledger, nb Neighbors, rates market.Rates, coins int) []Combo {
	if cost.Coins > coins {
		return []Combo{}
	}
	combos := Solve(cost.Requirement, own, nb, rates, coins-cost.Coins)
	for i := range combos {
		combos[i].Self.Cost += cost.Coins
	}
	return combos
}

// Solve enumerates every distinct way to satisfy req from the seat's own
// ledger plus purchases from its neighbours, keeping only combos that cost
// at most coins. The result is sorted by total cost and has no duplicates;
// an empty result means the requirement cannot be met.
func Solve(req resource.Requirement, own *resource.Ledger, nb Neighbors, rates market.Rates, coins int) []Combo {
	out := []Combo{}
	if coins < 0 {
		return out
	}

	seen := make(map[string]bool)
	for _, plain := range req.Expand() {
		s := &search{
			plain:   plain,
			own:     own,
			nb:      nb,
			rates:   rates,
			budget:  coins,
			visited: make(map[string]bool),
			leaves:  make(map[string]bool),
		}
		for _, c := range s.run() {
			c = normalize(c)
			if key := c.Key(); !seen[key] {
				seen[key] = true
				out = append(out, c)
			}
		}
	}

	Sort(out)
	return out
}

// Sort orders combos by total cost, then by lower clockwise cost, then by
// their canonical key.
func Sort(combos []Combo) {
	sort.SliceStable(combos, func(i, j int) bool {
		a, b := combos[i], combos[j]
		if a.Total() != b.Total() {
			return a.Total() < b.Total()
		}
		if a.Clockwise.Cost != b.Clockwise.Cost {
			return a.Clockwise.Cost < b.Clockwise.Cost
		}
		return a.Key() < b.Key()
	})
}

// node is a partial assignment of the seat's own either/or units.
type node struct {
	rem  resource.Requirement
	open []resource.Group
}

func (n node) key() string {
	groups := make([]string, len(n.open))
	for i, g := range n.open {
		groups[i] = g.String()
	}
	return n.rem.Signature() + "#" + strings.Join(groups, ",")
}

type search struct {
	plain  resource.Requirement
	own    *resource.Ledger
	nb     Neighbors
	rates  market.Rates
	budget int

	visited map[string]bool
	leaves  map[string]bool
}

// run walks the assignment tree with an explicit stack. Each branch assigns
// the first ambiguous unit to one still-required kind and re-resolves the
// forced units; nodes are memoised on residual requirement plus open units.
func (s *search) run() []Combo {
	start := s.own.Reduce(s.plain)
	stack := []node{{rem: start.Remaining, open: start.Open}}

	var combos []Combo
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := n.key()
		if s.visited[key] {
			continue
		}
		s.visited[key] = true

		if n.rem.Empty() || len(n.open) == 0 {
			sig := n.rem.Signature()
			if s.leaves[sig] {
				continue
			}
			s.leaves[sig] = true
			combos = append(combos, s.purchase(n.rem)...)
			continue
		}

		g, rest := n.open[0], n.open[1:]
		for _, k := range g {
			if n.rem.Need(k) == 0 {
				continue
			}
			rem := n.rem.Clone()
			rem.Take(k)
			_, open := resource.Resolve(rem, rest)
			stack = append(stack, node{rem: rem, open: open})
		}
	}
	return combos
}

// split is how many units of one kind come from each neighbour.
type split struct {
	kind resource.Kind
	cw   int
	ccw  int
}

// purchase prices the residual requirement of a leaf against both
// neighbours and returns every affordable split.
func (s *search) purchase(rem resource.Requirement) []Combo {
	self := s.selfUsage(rem)

	kinds := rem.Kinds()
	options := make([][]split, 0, len(kinds))
	for _, k := range kinds {
		need := rem.Need(k)
		availCW := s.nb.Clockwise.Available(k, need)
		availCCW := s.nb.CounterClockwise.Available(k, need)
		if availCW+availCCW < need {
			return nil
		}

		var opts []split
		for i := 0; i <= availCW && i <= need; i++ {
			if need-i <= availCCW {
				opts = append(opts, split{kind: k, cw: i, ccw: need - i})
			}
		}
		options = append(options, opts)
	}

	partials := []Combo{{Self: Payment{Resources: self}}}
	for _, opts := range options {
		var next []Combo
		for _, c := range partials {
			for _, o := range opts {
				nc := c
				nc.Clockwise = extend(c.Clockwise, o.kind, o.cw, s.rates.Rate(market.Clockwise, o.kind))
				nc.CounterClockwise = extend(c.CounterClockwise, o.kind, o.ccw, s.rates.Rate(market.CounterClockwise, o.kind))
				if nc.Total() > s.budget {
					continue
				}
				next = append(next, nc)
			}
		}
		partials = next
		if len(partials) == 0 {
			return nil
		}
	}
	return partials
}

// selfUsage is what the seat's own ledger contributed: the plain
// requirement minus the residual.
func (s *search) selfUsage(rem resource.Requirement) []resource.Kind {
	var used []resource.Kind
	for _, k := range s.plain.Kinds() {
		for i := rem.Need(k); i < s.plain.Need(k); i++ {
			used = append(used, k)
		}
	}
	return used
}

func extend(p Payment, k resource.Kind, n, rate int) Payment {
	if n == 0 {
		return p
	}
	res := make([]resource.Kind, 0, len(p.Resources)+n)
	res = append(res, p.Resources...)
	for i := 0; i < n; i++ {
		res = append(res, k)
	}
	return Payment{Resources: res, Cost: p.Cost + n*rate}
}

func normalize(c Combo) Combo {
	for _, p := range []*Payment{&c.Self, &c.Clockwise, &c.CounterClockwise} {
		if p.Resources == nil {
			p.Resources = []resource.Kind{}
		}
		resource.SortKinds(p.Resources)
	}
	return c
}

func kindsString(kinds []resource.Kind) string {
	sorted := append([]resource.Kind(nil), kinds...)
	resource.SortKinds(sorted)
	var b strings.Builder
	for _, k := range sorted {
		b.WriteString(string(k))
	}
	return b.String()
}
