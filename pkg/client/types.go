package client

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType of an order.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// TimeInForce of an order.
type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
)

// TradeIntent is a logical order before authorization. Instrument names
// follow the exchange convention: BASE-PERP or BASE-EXPIRY-STRIKE-KIND.
type TradeIntent struct {
	InstrumentName string
	SubaccountID   int64
	Direction      Side
	LimitPrice     decimal.Decimal
	Amount         decimal.Decimal
	MaxFee         decimal.Decimal
	OrderType      OrderType
	TimeInForce    TimeInForce
	ReduceOnly     bool
}

// Instrument is the metadata the unauthenticated instrument lookup returns.
// The settlement address and on-chain sub id drive payload encoding.
type Instrument struct {
	InstrumentName   string          `json:"instrument_name"`
	InstrumentType   string          `json:"instrument_type"`
	BaseCurrency     string          `json:"base_currency"`
	QuoteCurrency    string          `json:"quote_currency"`
	BaseAssetAddress string          `json:"base_asset_address"`
	BaseAssetSubID   string          `json:"base_asset_sub_id"`
	IsActive         bool            `json:"is_active"`
	TickSize         decimal.Decimal `json:"tick_size"`
	MinimumAmount    decimal.Decimal `json:"minimum_amount"`
	MaximumAmount    decimal.Decimal `json:"maximum_amount"`
}

// SubID parses the on-chain sub identifier, which the API serves as a
// decimal string too wide for float64.
func (i Instrument) SubID() (*big.Int, error) {
	if i.BaseAssetSubID == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(i.BaseAssetSubID, 10)
	if !ok {
		return nil, fmt.Errorf("malformed sub id %q", i.BaseAssetSubID)
	}
	return n, nil
}

// Ticker is the subset of public/get_ticker the client consumes.
type Ticker struct {
	InstrumentName string          `json:"instrument_name"`
	BestBidPrice   decimal.Decimal `json:"best_bid_price"`
	BestAskPrice   decimal.Decimal `json:"best_ask_price"`
	MarkPrice      decimal.Decimal `json:"mark_price"`
	IndexPrice     decimal.Decimal `json:"index_price"`
}

// Mid returns the bid/ask midpoint.
func (t Ticker) Mid() decimal.Decimal {
	return t.BestBidPrice.Add(t.BestAskPrice).Div(decimal.NewFromInt(2))
}

// Subaccount as returned by private/get_subaccounts.
type Subaccount struct {
	SubaccountID int64  `json:"subaccount_id"`
	MarginType   string `json:"margin_type"`
	Currency     string `json:"currency"`
	Label        string `json:"label"`
}

// Position as returned by private/get_positions. Greeks are per-contract;
// the portfolio analyser scales them by position size.
type Position struct {
	InstrumentName string          `json:"instrument_name"`
	Amount         decimal.Decimal `json:"amount"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	MarkPrice      decimal.Decimal `json:"mark_price"`
	UnrealizedPnl  decimal.Decimal `json:"unrealized_pnl"`
	Delta          decimal.Decimal `json:"delta"`
	Gamma          decimal.Decimal `json:"gamma"`
	Vega           decimal.Decimal `json:"vega"`
	Theta          decimal.Decimal `json:"theta"`
}

// OrderResult is the exchange's acknowledgement of a submitted order.
type OrderResult struct {
	Order struct {
		OrderID        string          `json:"order_id"`
		InstrumentName string          `json:"instrument_name"`
		Direction      string          `json:"direction"`
		LimitPrice     decimal.Decimal `json:"limit_price"`
		Amount         decimal.Decimal `json:"amount"`
		Status         string          `json:"order_status"`
		Nonce          *big.Int        `json:"nonce"`
	} `json:"order"`
}

// InstrumentResolutionError reports missing or unusable instrument
// metadata. Fatal for the order: the client never guesses a fallback sub
// id or settlement address.
type InstrumentResolutionError struct {
	Instrument string
	Reason     string
}

func (e *InstrumentResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve instrument %s: %s", e.Instrument, e.Reason)
}
