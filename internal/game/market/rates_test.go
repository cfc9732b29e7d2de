package market

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boardgames/wonders-server-go/internal/game/resource"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		discounts []Discount
		dir       Direction
		kind      resource.Kind
		want      int
	}{
		{"no discounts", nil, Clockwise, resource.Wood, BaseRate},
		{"raw clockwise", []Discount{{Raw, Clockwise}}, Clockwise, resource.Ore, DiscountRate},
		{"raw clockwise leaves other side", []Discount{{Raw, Clockwise}}, CounterClockwise, resource.Ore, BaseRate},
		{"raw does not cover manufactured", []Discount{{Raw, Both}}, Clockwise, resource.Glass, BaseRate},
		{"manufactured both sides", []Discount{{Manufactured, Both}}, CounterClockwise, resource.Papyrus, DiscountRate},
		{"stacked discounts stay at floor", []Discount{{Raw, Clockwise}, {Raw, Both}}, Clockwise, resource.Clay, DiscountRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rates := Compute(tt.discounts)
			assert.Equal(t, tt.want, rates.Rate(tt.dir, tt.kind))
		})
	}
}

func TestRates_UnknownDirection(t *testing.T) {
	assert.Equal(t, BaseRate, Default().Rate(Both, resource.Wood))
}

func TestDiscount_Validate(t *testing.T) {
	assert.NoError(t, Discount{Raw, Both}.Validate())
	assert.Error(t, Discount{"luxury", Both}.Validate())
	assert.Error(t, Discount{Raw, "up"}.Validate())
}
