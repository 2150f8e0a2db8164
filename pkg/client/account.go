package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tradeforge/lyra-go/pkg/codec"
	"github.com/tradeforge/lyra-go/pkg/sign"

	"github.com/shopspring/decimal"
)

// CreateSubaccount funds a new standard-margin subaccount with a signed
// deposit action. Subaccount id 0 asks the exchange to allocate one.
func (c *Client) CreateSubaccount(ctx context.Context, amount decimal.Decimal) (int64, error) {
	now := time.Now()
	nonce := sign.NewNonce(now)
	expiry := sign.DefaultExpiry(now)

	signed, err := c.auth.AuthorizeDeposit(codec.DepositPayload{
		Amount:         amount,
		Decimals:       c.cfg.CashDecimals,
		CashAddress:    c.cfg.Contracts.CashAddress,
		ManagerAddress: c.cfg.Contracts.StandardManagerAddress,
	}, 0, nonce, expiry)
	if err != nil {
		return 0, err
	}

	var out struct {
		SubaccountID int64 `json:"subaccount_id"`
	}
	err = c.rest.Private(ctx, "create_subaccount", map[string]any{
		"margin_type":          "SM",
		"wallet":               c.Wallet().Hex(),
		"signer":               signed.Signer.Hex(),
		"nonce":                signed.Nonce,
		"amount":               amount,
		"asset_name":           "USDC",
		"signature":            signed.SignatureHex(),
		"signature_expiry_sec": signed.SignatureExpirySec,
	}, &out)
	if err != nil {
		return 0, err
	}
	c.log.Infow("subaccount_created", "subaccount_id", out.SubaccountID, "amount", amount.String())
	return out.SubaccountID, nil
}

// sessionKeyTx is the unsigned transaction returned by
// public/build_register_session_key_tx.
type sessionKeyTx struct {
	TxParams struct {
		To       string          `json:"to"`
		Data     string          `json:"data"`
		Value    *hexutil.Big    `json:"value"`
		Nonce    json.RawMessage `json:"nonce"`
		Gas      json.RawMessage `json:"gas"`
		GasPrice *hexutil.Big    `json:"gasPrice"`
		ChainID  *hexutil.Big    `json:"chainId"`
	} `json:"tx_params"`
}

// RegisterSessionKey registers the signer's address as a session key for
// the wallet: the exchange builds the on-chain registration transaction,
// the client signs it with the account key and posts it back.
func (c *Client) RegisterSessionKey(ctx context.Context, expirySec int64) error {
	var built sessionKeyTx
	err := c.rest.Public(ctx, "build_register_session_key_tx", map[string]any{
		"expiry_sec":         fmt.Sprintf("%d", expirySec),
		"wallet":             c.Wallet().Hex(),
		"gas":                "0",
		"nonce":              "0",
		"public_session_key": c.signer.Address().Hex(),
	}, &built)
	if err != nil {
		return fmt.Errorf("build session key tx: %w", err)
	}

	raw, err := c.signSessionKeyTx(built)
	if err != nil {
		return err
	}

	err = c.rest.Public(ctx, "register_session_key", map[string]any{
		"expiry_sec":         fmt.Sprintf("%d", expirySec),
		"label":              c.Wallet().Hex()[:16],
		"wallet":             c.Wallet().Hex(),
		"public_session_key": c.signer.Address().Hex(),
		"signed_raw_tx":      raw,
	}, nil)
	if err != nil {
		return fmt.Errorf("register session key: %w", err)
	}
	c.log.Infow("session_key_registered", "session_key", c.signer.Address().Hex(), "expiry_sec", expirySec)
	return nil
}

func (c *Client) signSessionKeyTx(built sessionKeyTx) (string, error) {
	p := built.TxParams
	if p.To == "" {
		return "", fmt.Errorf("session key tx has no recipient")
	}
	nonce, err := flexUint(p.Nonce)
	if err != nil {
		return "", fmt.Errorf("session key tx nonce: %w", err)
	}
	gas, err := flexUint(p.Gas)
	if err != nil {
		return "", fmt.Errorf("session key tx gas: %w", err)
	}

	raw, err := c.signer.SignLegacyTx(
		(*big.Int)(p.ChainID),
		nonce,
		common.HexToAddress(p.To),
		(*big.Int)(p.Value),
		gas,
		(*big.Int)(p.GasPrice),
		common.FromHex(p.Data),
	)
	if err != nil {
		return "", &sign.SigningError{Err: err}
	}
	return hexutil.Encode(raw), nil
}

// flexUint accepts the exchange's mixed encodings: decimal number, decimal
// string or 0x-hex string.
func flexUint(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unsupported encoding %s", raw)
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return 0, fmt.Errorf("unsupported value %q", s)
		}
		return b.Uint64(), nil
	}
	return v.Uint64(), nil
}
