package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradeforge/lyra-go/pkg/session"
)

// ResolveInstrument fetches and caches instrument metadata. Resolution
// failures are fatal for any order on the instrument.
func (c *Client) ResolveInstrument(ctx context.Context, name string) (Instrument, error) {
	c.instMu.Lock()
	if inst, ok := c.instruments[name]; ok {
		c.instMu.Unlock()
		return inst, nil
	}
	c.instMu.Unlock()

	var inst Instrument
	err := c.rest.Public(ctx, "get_instrument", map[string]any{"instrument_name": name}, &inst)
	if err != nil {
		return Instrument{}, &InstrumentResolutionError{Instrument: name, Reason: err.Error()}
	}
	if inst.InstrumentName == "" {
		return Instrument{}, &InstrumentResolutionError{Instrument: name, Reason: "not found"}
	}
	if !inst.IsActive {
		return Instrument{}, &InstrumentResolutionError{Instrument: name, Reason: "instrument inactive"}
	}

	c.instMu.Lock()
	c.instruments[name] = inst
	c.instMu.Unlock()
	return inst, nil
}

// settlementAddress prefers the address served with the instrument metadata
// and falls back to the configured per-market address. No other fallback:
// guessing a settlement address produces signatures the exchange rejects.
func (c *Client) settlementAddress(inst Instrument) (common.Address, error) {
	if inst.BaseAssetAddress != "" {
		return common.HexToAddress(inst.BaseAssetAddress), nil
	}
	if addr, ok := c.cfg.Contracts.AssetAddresses[instrumentKey(inst.InstrumentName)]; ok {
		return addr, nil
	}
	return common.Address{}, &InstrumentResolutionError{
		Instrument: inst.InstrumentName,
		Reason:     "no settlement asset address",
	}
}

// FetchInstruments lists instruments for a currency and type.
func (c *Client) FetchInstruments(ctx context.Context, currency, instrumentType string, expired bool) ([]Instrument, error) {
	var out []Instrument
	err := c.rest.Public(ctx, "get_instruments", map[string]any{
		"currency":        currency,
		"instrument_type": instrumentType,
		"expired":         expired,
	}, &out)
	return out, err
}

// FetchTickers lists tickers for a currency and type over REST.
func (c *Client) FetchTickers(ctx context.Context, currency, instrumentType string) ([]Ticker, error) {
	var out []Ticker
	err := c.rest.Public(ctx, "get_tickers", map[string]any{
		"currency":        currency,
		"instrument_type": instrumentType,
	}, &out)
	return out, err
}

// FetchTicker reads a ticker over the session, exercising the duplex
// request/response path.
func (c *Client) FetchTicker(ctx context.Context, instrumentName string) (Ticker, error) {
	result, err := c.callIdempotent(ctx, "public/get_ticker", map[string]any{
		"instrument_name": instrumentName,
	})
	if err != nil {
		return Ticker{}, err
	}
	var t Ticker
	if err := json.Unmarshal(result, &t); err != nil {
		return Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	return t, nil
}

// WatchOrderBook subscribes to an order-book channel and blocks until the
// first snapshot lands.
func (c *Client) WatchOrderBook(ctx context.Context, instrumentName, group, depth string, timeout time.Duration) (session.Book, error) {
	channel := session.OrderBookChannel(instrumentName, group, depth)
	if err := c.sess.Router().Subscribe(ctx, channel); err != nil {
		return session.Book{}, err
	}
	return c.sess.Router().WaitFor(ctx, channel, timeout)
}

// OrderBook returns the latest merged snapshot for an already-watched
// channel.
func (c *Client) OrderBook(instrumentName, group, depth string) (session.Book, bool) {
	return c.sess.Router().Snapshot(session.OrderBookChannel(instrumentName, group, depth))
}

// FetchSubaccounts lists the wallet's subaccounts.
func (c *Client) FetchSubaccounts(ctx context.Context) ([]Subaccount, error) {
	var out struct {
		Subaccounts []Subaccount `json:"subaccounts"`
	}
	err := c.rest.Private(ctx, "get_subaccounts", map[string]any{
		"wallet": c.Wallet().Hex(),
	}, &out)
	return out.Subaccounts, err
}

// FetchPositions lists open positions for a subaccount.
func (c *Client) FetchPositions(ctx context.Context, subaccountID int64) ([]Position, error) {
	var out struct {
		Positions []Position `json:"positions"`
	}
	err := c.rest.Private(ctx, "get_positions", map[string]any{
		"subaccount_id": subaccountID,
	}, &out)
	return out.Positions, err
}
