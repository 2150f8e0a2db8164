package client

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testPositions() []Position {
	return []Position{
		{
			InstrumentName: "ETH-PERP",
			Amount:         dec("2"),
			MarkPrice:      dec("2000"),
			Delta:          dec("1"),
		},
		{
			InstrumentName: "ETH-20240119-2000-C",
			Amount:         dec("-10"),
			MarkPrice:      dec("55"),
			Delta:          dec("0.5"),
			Gamma:          dec("0.002"),
			Vega:           dec("1.2"),
			Theta:          dec("-2.5"),
		},
		{
			InstrumentName: "BTC-PERP",
			Amount:         dec("0.1"),
			MarkPrice:      dec("40000"),
			Delta:          dec("1"),
		},
		{
			InstrumentName: "BTC-20240119-45000-P",
			Amount:         dec("0"), // flat, must be ignored
			MarkPrice:      dec("900"),
			Delta:          dec("-0.4"),
		},
	}
}

func TestOpenPositionsFilters(t *testing.T) {
	p := NewPortfolio(testPositions())

	all := p.OpenPositions("")
	if len(all) != 3 {
		t.Fatalf("open positions = %d, want 3 (flat excluded)", len(all))
	}

	eth := p.OpenPositions("eth")
	if len(eth) != 2 {
		t.Fatalf("ETH positions = %d, want 2", len(eth))
	}
	for _, pos := range eth {
		if pos.InstrumentName[:3] != "ETH" {
			t.Errorf("non-ETH position %s in ETH filter", pos.InstrumentName)
		}
	}
}

func TestTotalGreeksScaledBySize(t *testing.T) {
	p := NewPortfolio(testPositions())
	g := p.TotalGreeks("ETH")

	// 2 * 1 (perp) + (-10) * 0.5 (short calls) = -3
	if !g.Delta.Equal(dec("-3")) {
		t.Errorf("delta = %s, want -3", g.Delta)
	}
	// Only the option leg carries the remaining greeks, scaled by -10.
	if !g.Gamma.Equal(dec("-0.02")) {
		t.Errorf("gamma = %s, want -0.02", g.Gamma)
	}
	if !g.Vega.Equal(dec("-12")) {
		t.Errorf("vega = %s, want -12", g.Vega)
	}
	if !g.Theta.Equal(dec("25")) {
		t.Errorf("theta = %s, want 25", g.Theta)
	}
}

func TestNetNotional(t *testing.T) {
	p := NewPortfolio(testPositions())

	// |2|*2000 + |-10|*55 = 4550
	if got := p.NetNotional("ETH"); !got.Equal(dec("4550")) {
		t.Errorf("ETH notional = %s, want 4550", got)
	}
	// 4550 + |0.1|*40000 = 8550; the flat BTC put contributes nothing.
	if got := p.NetNotional(""); !got.Equal(dec("8550")) {
		t.Errorf("total notional = %s, want 8550", got)
	}
}

func TestPortfolioDoesNotMutateInput(t *testing.T) {
	positions := testPositions()
	NewPortfolio(positions)
	if !positions[1].Delta.Equal(dec("0.5")) {
		t.Error("NewPortfolio scaled the caller's slice in place")
	}
}

func TestInstrumentKey(t *testing.T) {
	cases := map[string]string{
		"ETH-PERP":             "ETH-PERP",
		"BTC-PERP":             "BTC-PERP",
		"ETH-20240119-2000-C":  "ETH-OPTION",
		"BTC-20240119-45000-P": "BTC-OPTION",
		"USDC":                 "USDC",
	}
	for in, want := range cases {
		if got := instrumentKey(in); got != want {
			t.Errorf("instrumentKey(%s) = %s, want %s", in, got, want)
		}
	}
}
