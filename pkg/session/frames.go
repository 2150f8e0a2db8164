package session

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Outbound request envelope: {"method": ..., "params": ..., "id": ...}.
type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     string `json:"id"`
}

// wireID tolerates servers echoing correlation ids as either JSON strings
// or numbers.
type wireID string

func (w *wireID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*w = wireID(s)
		return nil
	}
	*w = wireID(b)
	return nil
}

// frameKind tags an inbound frame once at the transport boundary so the
// rest of the session never re-inspects raw JSON.
type frameKind int

const (
	frameResult frameKind = iota
	frameError
	framePush
)

type pushParams struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type inboundFrame struct {
	ID     wireID          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
	Params *pushParams     `json:"params"`
	Method string          `json:"method"`
}

func (f *inboundFrame) kind() frameKind {
	switch {
	case f.Error != nil:
		return frameError
	case f.ID != "":
		return frameResult
	default:
		return framePush
	}
}

func decodeFrame(data []byte) (*inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Error != nil {
		f.Error.ID = string(f.ID)
	}
	return &f, nil
}

// BookLevel is one (price, size) entry of an order-book side. Accepts both
// string and numeric wire encodings.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l *BookLevel) UnmarshalJSON(b []byte) error {
	var pair []decimal.Decimal
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return fmt.Errorf("book level needs [price, size], got %d fields", len(pair))
	}
	l.Price, l.Size = pair[0], pair[1]
	return nil
}

func (l BookLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([]decimal.Decimal{l.Price, l.Size})
}

// orderbookData is the payload of an order-book push frame. An absent or
// empty side means "no change since the previous publish", not "empty book".
type orderbookData struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp int64       `json:"timestamp"`
	PublishID int64       `json:"publish_id"`
}
