package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/lyra-go/pkg/codec"
	"github.com/tradeforge/lyra-go/pkg/journal"
	"github.com/tradeforge/lyra-go/pkg/session"
	"github.com/tradeforge/lyra-go/pkg/sign"
)

// orderRequest is the private/order wire shape. The nonce is a 17-digit
// integer, wider than float64 mantissa, so it must marshal as *big.Int.
type orderRequest struct {
	InstrumentName     string          `json:"instrument_name"`
	SubaccountID       int64           `json:"subaccount_id"`
	Direction          Side            `json:"direction"`
	LimitPrice         decimal.Decimal `json:"limit_price"`
	Amount             decimal.Decimal `json:"amount"`
	SignatureExpirySec int64           `json:"signature_expiry_sec"`
	MaxFee             decimal.Decimal `json:"max_fee"`
	Nonce              *big.Int        `json:"nonce"`
	Signer             string          `json:"signer"`
	OrderType          OrderType       `json:"order_type"`
	TimeInForce        TimeInForce     `json:"time_in_force,omitempty"`
	MMP                bool            `json:"mmp"`
	ReduceOnly         bool            `json:"reduce_only"`
	Signature          string          `json:"signature"`
}

// CreateOrder resolves the instrument, authorizes the intent and submits it
// over the session. If the connection drops with the order in flight the
// outcome is unknowable client-side: the order is journaled as ambiguous
// and the error surfaced. Retrying is the caller's decision and always
// re-signs under a fresh nonce.
func (c *Client) CreateOrder(ctx context.Context, intent TradeIntent) (OrderResult, error) {
	inst, err := c.ResolveInstrument(ctx, intent.InstrumentName)
	if err != nil {
		return OrderResult{}, err
	}
	assetAddr, err := c.settlementAddress(inst)
	if err != nil {
		return OrderResult{}, err
	}
	subID, err := inst.SubID()
	if err != nil {
		return OrderResult{}, &InstrumentResolutionError{Instrument: inst.InstrumentName, Reason: err.Error()}
	}

	now := time.Now()
	nonce := sign.NewNonce(now)
	expiry := sign.DefaultExpiry(now)

	signed, err := c.auth.AuthorizeTrade(codec.TradePayload{
		AssetAddress: assetAddr,
		SubID:        subID,
		LimitPrice:   intent.LimitPrice,
		Amount:       intent.Amount,
		MaxFee:       intent.MaxFee,
		SubaccountID: intent.SubaccountID,
		IsBuy:        intent.Direction == Buy,
	}, nonce, expiry)
	if err != nil {
		return OrderResult{}, err
	}

	req := orderRequest{
		InstrumentName:     intent.InstrumentName,
		SubaccountID:       intent.SubaccountID,
		Direction:          intent.Direction,
		LimitPrice:         intent.LimitPrice,
		Amount:             intent.Amount,
		SignatureExpirySec: expiry,
		MaxFee:             intent.MaxFee,
		Nonce:              nonce,
		Signer:             signed.Signer.Hex(),
		OrderType:          intent.OrderType,
		TimeInForce:        intent.TimeInForce,
		ReduceOnly:         intent.ReduceOnly,
		Signature:          signed.SignatureHex(),
	}

	c.journalSubmission("private/order", intent.InstrumentName, signed)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	result, err := c.sess.Call(callCtx, "private/order", req)
	if err != nil {
		c.journalVerdict(signed, err)
		return OrderResult{}, err
	}
	c.journalVerdict(signed, nil)

	var out OrderResult
	if err := json.Unmarshal(result, &out); err != nil {
		return OrderResult{}, fmt.Errorf("decode order result: %w", err)
	}
	c.log.Infow("order_submitted",
		"instrument", intent.InstrumentName,
		"direction", intent.Direction,
		"order_id", out.Order.OrderID,
		"nonce", nonce.String(),
	)
	return out, nil
}

// Cancel cancels one order. Replay-safe, so a dropped connection is
// reconnected and the cancel retried.
func (c *Client) Cancel(ctx context.Context, subaccountID int64, instrumentName, orderID string) error {
	_, err := c.callIdempotent(ctx, "private/cancel", map[string]any{
		"subaccount_id":   subaccountID,
		"instrument_name": instrumentName,
		"order_id":        orderID,
	})
	return err
}

// CancelAll cancels every open order on a subaccount.
func (c *Client) CancelAll(ctx context.Context, subaccountID int64) error {
	_, err := c.callIdempotent(ctx, "private/cancel_all", map[string]any{
		"subaccount_id": subaccountID,
	})
	return err
}

type transferDetails struct {
	Nonce              *big.Int `json:"nonce"`
	Signature          string   `json:"signature"`
	SignatureExpirySec int64    `json:"signature_expiry_sec"`
	Signer             string   `json:"signer"`
}

// Transfer moves cash between two of the wallet's subaccounts. Both legs
// are authorized before anything is sent: the sender signs under the source
// subaccount and the recipient context signs under the destination, each
// with its own nonce, over byte-identical payload encodings.
func (c *Client) Transfer(ctx context.Context, amount decimal.Decimal, fromSubaccount, toSubaccount int64) error {
	now := time.Now()
	fromNonce := sign.NewNonce(now)
	toNonce := sign.NewNonce(now)
	for toNonce.Cmp(fromNonce) == 0 {
		toNonce = sign.NewNonce(now)
	}

	payload := codec.TransferPayload{
		AssetAddress: c.cfg.Contracts.CashAddress,
		Amount:       amount,
		Decimals:     c.cfg.CashDecimals,
	}
	fromSigned, toSigned, err := c.auth.AuthorizeTransfer(
		payload, fromSubaccount, toSubaccount, fromNonce, toNonce, sign.DefaultExpiry(now))
	if err != nil {
		return err
	}

	req := map[string]any{
		"subaccount_id":           fromSubaccount,
		"recipient_subaccount_id": toSubaccount,
		"sender_details": transferDetails{
			Nonce:              fromSigned.Nonce,
			Signature:          fromSigned.SignatureHex(),
			SignatureExpirySec: fromSigned.SignatureExpirySec,
			Signer:             fromSigned.Signer.Hex(),
		},
		"recipient_details": transferDetails{
			Nonce:              toSigned.Nonce,
			Signature:          toSigned.SignatureHex(),
			SignatureExpirySec: toSigned.SignatureExpirySec,
			Signer:             toSigned.Signer.Hex(),
		},
		"transfer": map[string]any{
			"address": c.cfg.Contracts.CashAddress.Hex(),
			"amount":  amount,
			"sub_id":  0,
		},
	}

	c.journalSubmission("private/transfer_erc20", "", fromSigned)

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	_, err = c.sess.Call(callCtx, "private/transfer_erc20", req)
	c.journalVerdict(fromSigned, err)
	if err != nil {
		return err
	}
	c.log.Infow("transfer_submitted",
		"from", fromSubaccount, "to", toSubaccount, "amount", amount.String())
	return nil
}

func (c *Client) journalSubmission(method, instrument string, signed sign.SignedAction) {
	if c.jour == nil {
		return
	}
	err := c.jour.Record(journal.Entry{
		Nonce:        signed.Nonce.String(),
		Method:       method,
		Instrument:   instrument,
		SubaccountID: signed.SubaccountID,
		Signature:    signed.SignatureHex(),
		SubmittedAt:  time.Now().UnixMilli(),
		Status:       journal.StatusSubmitted,
	})
	if err != nil {
		c.log.Warnw("journal_write_failed", "nonce", signed.Nonce.String(), "err", err)
	}
}

func (c *Client) journalVerdict(signed sign.SignedAction, callErr error) {
	if c.jour == nil {
		return
	}
	status := journal.StatusConfirmed
	detail := ""
	if callErr != nil {
		detail = callErr.Error()
		var remote *session.RemoteError
		switch {
		case errors.As(callErr, &remote):
			// Definitive exchange verdict.
			status = journal.StatusRejected
		case errors.Is(callErr, session.ErrNotReady):
			// Failed locally, nothing reached the wire.
			status = journal.StatusRejected
		default:
			// Connection loss, timeout or cancellation with the action in
			// flight: the exchange may still have executed it. Only a
			// reconciliation against exchange records can settle the outcome.
			status = journal.StatusAmbiguous
		}
	}
	if err := c.jour.SetVerdict(signed.Nonce.String(), status, detail); err != nil {
		c.log.Warnw("journal_verdict_failed", "nonce", signed.Nonce.String(), "err", err)
	}
}
