package client

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Greeks is a summed risk profile, already scaled by position size.
type Greeks struct {
	Delta decimal.Decimal
	Gamma decimal.Decimal
	Vega  decimal.Decimal
	Theta decimal.Decimal
}

// Portfolio aggregates already-fetched position data. It performs no I/O;
// feed it the result of FetchPositions.
type Portfolio struct {
	positions []Position
}

func NewPortfolio(positions []Position) *Portfolio {
	scaled := make([]Position, len(positions))
	for i, p := range positions {
		p.Delta = p.Delta.Mul(p.Amount)
		p.Gamma = p.Gamma.Mul(p.Amount)
		p.Vega = p.Vega.Mul(p.Amount)
		p.Theta = p.Theta.Mul(p.Amount)
		scaled[i] = p
	}
	return &Portfolio{positions: scaled}
}

// OpenPositions returns non-flat positions on instruments of the given
// underlying currency (empty currency matches all).
func (p *Portfolio) OpenPositions(currency string) []Position {
	currency = strings.ToUpper(currency)
	var out []Position
	for _, pos := range p.positions {
		if pos.Amount.IsZero() {
			continue
		}
		if currency != "" && !strings.Contains(pos.InstrumentName, currency) {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// TotalGreeks sums the size-scaled greeks of the open positions for a
// currency.
func (p *Portfolio) TotalGreeks(currency string) Greeks {
	var g Greeks
	for _, pos := range p.OpenPositions(currency) {
		g.Delta = g.Delta.Add(pos.Delta)
		g.Gamma = g.Gamma.Add(pos.Gamma)
		g.Vega = g.Vega.Add(pos.Vega)
		g.Theta = g.Theta.Add(pos.Theta)
	}
	return g
}

// NetNotional sums |amount| * mark price over open positions.
func (p *Portfolio) NetNotional(currency string) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.OpenPositions(currency) {
		total = total.Add(pos.Amount.Abs().Mul(pos.MarkPrice))
	}
	return total
}
