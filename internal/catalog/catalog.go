package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/boardgames/wonders-server-go/internal/game/market"
	"github.com/boardgames/wonders-server-go/internal/game/resource"
	"github.com/boardgames/wonders-server-go/internal/game/scoring"
)

//go:embed cards.yaml
var defaultData []byte

// Color is a card's colour, which decides how it is scored.
type Color string

const (
	Brown  Color = "brown"
	Gray   Color = "gray"
	Blue   Color = "blue"
	Green  Color = "green"
	Red    Color = "red"
	Yellow Color = "yellow"
	Purple Color = "purple"
)

// Valid reports whether c is a known colour.
func (c Color) Valid() bool {
	switch c {
	case Brown, Gray, Blue, Green, Red, Yellow, Purple:
		return true
	}
	return false
}

// Card is a playable card.
type Card struct {
	Name     string            `yaml:"name" json:"name"`
	Age      int               `yaml:"age" json:"age"`
	Players  int               `yaml:"players" json:"players"`
	Color    Color             `yaml:"color" json:"color"`
	Cost     string            `yaml:"cost,omitempty" json:"cost,omitempty"`
	Produces string            `yaml:"produces,omitempty" json:"produces,omitempty"`
	Points   int               `yaml:"points,omitempty" json:"points,omitempty"`
	Shields  int               `yaml:"shields,omitempty" json:"shields,omitempty"`
	Science  scoring.Symbol    `yaml:"science,omitempty" json:"science,omitempty"`
	Coins    int               `yaml:"coins,omitempty" json:"coins,omitempty"`
	Income   *scoring.Rule     `yaml:"income,omitempty" json:"income,omitempty"`
	Bonus    *scoring.Rule     `yaml:"bonus,omitempty" json:"bonus,omitempty"`
	Trade    []market.Discount `yaml:"trade,omitempty" json:"trade,omitempty"`
	FreeFrom []string          `yaml:"free_from,omitempty" json:"freeFrom,omitempty"`
}

// IsGuild reports whether the card is drawn from the guild pool.
func (c Card) IsGuild() bool { return c.Color == Purple }

// Sellable reports whether neighbours may buy what the card produces.
func (c Card) Sellable() bool { return c.Color == Brown || c.Color == Gray }

// ParsedCost returns the card's parsed cost.
func (c Card) ParsedCost() (resource.Cost, error) {
	return resource.ParseCost(c.Cost)
}

// ChainsFrom reports whether owning a card named name makes c free.
func (c Card) ChainsFrom(name string) bool {
	for _, f := range c.FreeFrom {
		if f == name {
			return true
		}
	}
	return false
}

// Side names a wonder board side.
type Side string

const (
	SideA Side = "a"
	SideB Side = "b"
)

// Stage is one buildable wonder stage.
type Stage struct {
	Cost     string            `yaml:"cost" json:"cost"`
	Points   int               `yaml:"points,omitempty" json:"points,omitempty"`
	Coins    int               `yaml:"coins,omitempty" json:"coins,omitempty"`
	Shields  int               `yaml:"shields,omitempty" json:"shields,omitempty"`
	Science  bool              `yaml:"science,omitempty" json:"science,omitempty"`
	Produces string            `yaml:"produces,omitempty" json:"produces,omitempty"`
	Trade    []market.Discount `yaml:"trade,omitempty" json:"trade,omitempty"`
	Custom   string            `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// Wonder is a wonder board with its base resource and both sides.
type Wonder struct {
	Name     string           `yaml:"name" json:"name"`
	Resource resource.Kind    `yaml:"resource" json:"resource"`
	Sides    map[Side][]Stage `yaml:"sides" json:"sides"`
}

// Stages returns the stages of side s.
func (w Wonder) Stages(s Side) ([]Stage, bool) {
	stages, ok := w.Sides[s]
	return stages, ok
}

// Catalog is the full set of cards and wonders.
type Catalog struct {
	Cards   []Card   `yaml:"cards" json:"cards"`
	Wonders []Wonder `yaml:"wonders" json:"wonders"`
}

// Default returns the embedded base game catalog.
func Default() (*Catalog, error) {
	return Parse(defaultData)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every card and wonder for parseable costs, production and
// effects, and that chain predecessors exist.
func (c *Catalog) Validate() error {
	names := make(map[string]bool)
	for _, card := range c.Cards {
		names[card.Name] = true
	}

	for _, card := range c.Cards {
		if card.Name == "" {
			return fmt.Errorf("card without a name")
		}
		if card.Age < 1 || card.Age > 3 {
			return fmt.Errorf("card %s: age %d out of range", card.Name, card.Age)
		}
		if !card.Color.Valid() {
			return fmt.Errorf("card %s: unknown color %q", card.Name, card.Color)
		}
		if !card.IsGuild() && card.Players < 3 {
			return fmt.Errorf("card %s: players %d below minimum", card.Name, card.Players)
		}
		if _, err := resource.ParseCost(card.Cost); err != nil {
			return fmt.Errorf("card %s: %w", card.Name, err)
		}
		if card.Produces != "" {
			if _, err := resource.ParseProduction(card.Produces); err != nil {
				return fmt.Errorf("card %s: %w", card.Name, err)
			}
		}
		if card.Science != "" {
			if _, err := scoring.ParseSymbol(string(card.Science)); err != nil {
				return fmt.Errorf("card %s: %w", card.Name, err)
			}
		}
		for _, rule := range []*scoring.Rule{card.Income, card.Bonus} {
			if rule == nil {
				continue
			}
			if err := rule.Validate(); err != nil {
				return fmt.Errorf("card %s: %w", card.Name, err)
			}
		}
		if err := validateTrade(card.Trade); err != nil {
			return fmt.Errorf("card %s: %w", card.Name, err)
		}
		for _, pred := range card.FreeFrom {
			if !names[pred] {
				return fmt.Errorf("card %s: chains from unknown card %q", card.Name, pred)
			}
		}
	}

	for _, w := range c.Wonders {
		if _, ok := resource.ParseKind(string(w.Resource)); !ok {
			return fmt.Errorf("wonder %s: unknown resource %q", w.Name, w.Resource)
		}
		for _, side := range []Side{SideA, SideB} {
			stages, ok := w.Sides[side]
			if !ok || len(stages) == 0 {
				return fmt.Errorf("wonder %s: side %s has no stages", w.Name, side)
			}
			for i, st := range stages {
				if _, err := resource.ParseCost(st.Cost); err != nil {
					return fmt.Errorf("wonder %s stage %d: %w", w.Name, i+1, err)
				}
				if st.Produces != "" {
					if _, err := resource.ParseProduction(st.Produces); err != nil {
						return fmt.Errorf("wonder %s stage %d: %w", w.Name, i+1, err)
					}
				}
				if err := validateTrade(st.Trade); err != nil {
					return fmt.Errorf("wonder %s stage %d: %w", w.Name, i+1, err)
				}
			}
		}
	}
	return nil
}

func validateTrade(discounts []market.Discount) error {
	for _, d := range discounts {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Deck returns the non-guild cards of age used at a table of players.
func (c *Catalog) Deck(age, players int) []Card {
	var deck []Card
	for _, card := range c.Cards {
		if card.Age == age && !card.IsGuild() && card.Players <= players {
			deck = append(deck, card)
		}
	}
	return deck
}

// Guilds returns every guild card.
func (c *Catalog) Guilds() []Card {
	var guilds []Card
	for _, card := range c.Cards {
		if card.IsGuild() {
			guilds = append(guilds, card)
		}
	}
	return guilds
}

// Card looks a card up by name.
func (c *Catalog) Card(name string) (Card, bool) {
	for _, card := range c.Cards {
		if card.Name == name {
			return card, true
		}
	}
	return Card{}, false
}

// Wonder looks a wonder up by name.
func (c *Catalog) Wonder(name string) (Wonder, bool) {
	for _, w := range c.Wonders {
		if w.Name == name {
			return w, true
		}
	}
	return Wonder{}, false
}

// CardNames returns the distinct card names, sorted.
func (c *Catalog) CardNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, card := range c.Cards {
		if !seen[card.Name] {
			seen[card.Name] = true
			names = append(names, card.Name)
		}
	}
	sort.Strings(names)
	return names
}
