package market

import (
	"fmt"

	"github.com/boardgames/wonders-server-go/internal/game/resource"
)

const (
	// BaseRate is the price of one unit bought from a neighbour.
	BaseRate = 2
	// DiscountRate replaces BaseRate where a trade discount applies.
	DiscountRate = 1
)

// Direction identifies a neighbour relative to the buying seat.
type Direction string

const (
	Clockwise        Direction = "clockwise"
	CounterClockwise Direction = "counterClockwise"
	Both             Direction = "both"
)

// Goods selects which resource class a discount covers.
type Goods string

const (
	Raw          Goods = "raw"
	Manufactured Goods = "manufactured"
)

// Discount lowers the price of one goods class from one or both neighbours.
type Discount struct {
	Goods     Goods     `yaml:"goods" json:"goods"`
	Direction Direction `yaml:"direction" json:"direction"`
}

// Validate checks the discount's enumerations.
func (d Discount) Validate() error {
	switch d.Goods {
	case Raw, Manufactured:
	default:
		return fmt.Errorf("unknown goods class %q", d.Goods)
	}
	switch d.Direction {
	case Clockwise, CounterClockwise, Both:
	default:
		return fmt.Errorf("unknown direction %q", d.Direction)
	}
	return nil
}

// AppliesTo reports whether the discount covers buying k from dir.
func (d Discount) AppliesTo(dir Direction, k resource.Kind) bool {
	if d.Direction != Both && d.Direction != dir {
		return false
	}
	switch d.Goods {
	case Raw:
		return k.IsRaw()
	case Manufactured:
		return k.IsManufactured()
	}
	return false
}

// Rates holds the per-unit price of every kind from each neighbour.
type Rates struct {
	Clockwise        map[resource.Kind]int `json:"clockwise"`
	CounterClockwise map[resource.Kind]int `json:"counterClockwise"`
}

// Default returns rates with no discounts applied.
func Default() Rates {
	r := Rates{
		Clockwise:        make(map[resource.Kind]int),
		CounterClockwise: make(map[resource.Kind]int),
	}
	for _, k := range resource.AllKinds() {
		r.Clockwise[k] = BaseRate
		r.CounterClockwise[k] = BaseRate
	}
	return r
}

// Compute derives a seat's rates from the discounts its played cards and
// built stages grant. Discounts do not stack below DiscountRate.
func Compute(discounts []Discount) Rates {
	r := Default()
	for _, d := range discounts {
		for _, k := range resource.AllKinds() {
			if d.AppliesTo(Clockwise, k) {
				r.Clockwise[k] = DiscountRate
			}
			if d.AppliesTo(CounterClockwise, k) {
				r.CounterClockwise[k] = DiscountRate
			}
		}
	}
	return r
}

// Rate returns the unit price of k from dir.
func (r Rates) Rate(dir Direction, k resource.Kind) int {
	var table map[resource.Kind]int
	switch dir {
	case Clockwise:
		table = r.Clockwise
	case CounterClockwise:
		table = r.CounterClockwise
	}
	if rate, ok := table[k]; ok {
		return rate
	}
	return BaseRate
}
