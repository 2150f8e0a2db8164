// Package codec deterministically serializes action payloads into the
// fixed-width ABI words the exchange recomputes server-side during signature
// verification. Equal logical input must always yield byte-identical output.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	typeAddress, _ = abi.NewType("address", "", nil)
	typeUint256, _ = abi.NewType("uint256", "", nil)
	typeInt256, _  = abi.NewType("int256", "", nil)
	typeBool, _    = abi.NewType("bool", "", nil)
	typeBytes32, _ = abi.NewType("bytes32", "", nil)
)

var tradeArgs = abi.Arguments{
	{Type: typeAddress}, // settlement asset
	{Type: typeUint256}, // sub id
	{Type: typeInt256},  // limit price, 18-dec fixed point
	{Type: typeInt256},  // amount, 18-dec fixed point
	{Type: typeUint256}, // max fee, 18-dec fixed point
	{Type: typeUint256}, // subaccount id
	{Type: typeBool},    // is buy
}

var transferArgs = abi.Arguments{
	{Type: typeAddress}, // settlement asset
	{Type: typeUint256}, // amount at the asset's native decimals
	{Type: typeUint256}, // sub-asset id, always 0
}

var depositArgs = abi.Arguments{
	{Type: typeUint256}, // amount at the asset's native decimals
	{Type: typeAddress}, // cash asset
	{Type: typeAddress}, // margin manager
}

var actionArgs = abi.Arguments{
	{Type: typeBytes32}, // action typehash
	{Type: typeUint256}, // subaccount id
	{Type: typeUint256}, // nonce
	{Type: typeAddress}, // module address
	{Type: typeBytes32}, // keccak256(module payload)
	{Type: typeUint256}, // signature expiry, unix seconds
	{Type: typeAddress}, // owner
	{Type: typeAddress}, // signer
}

// TradePayload is the module data for an order on the trade module.
type TradePayload struct {
	AssetAddress common.Address
	SubID        *big.Int
	LimitPrice   decimal.Decimal
	Amount       decimal.Decimal
	MaxFee       decimal.Decimal
	SubaccountID int64
	IsBuy        bool
}

// TransferPayload is the module data for a cash transfer between
// subaccounts. Amount stays at the asset's native decimals; unlike trade
// payloads there is no 18-decimal scaling.
type TransferPayload struct {
	AssetAddress common.Address
	Amount       decimal.Decimal
	Decimals     int32
}

// DepositPayload is the module data for funding a subaccount.
type DepositPayload struct {
	Amount         decimal.Decimal
	Decimals       int32
	CashAddress    common.Address
	ManagerAddress common.Address
}

// ToWei scales a decimal value to an integer at the given number of decimal
// places. 18 is the fixed-point convention for trade payloads.
func ToWei(v decimal.Decimal, decimals int32) *big.Int {
	return v.Shift(decimals).BigInt()
}

// EncodeTrade packs a trade payload into its canonical byte form.
func EncodeTrade(p TradePayload) ([]byte, error) {
	subID := p.SubID
	if subID == nil {
		subID = big.NewInt(0)
	}
	encoded, err := tradeArgs.Pack(
		p.AssetAddress,
		subID,
		ToWei(p.LimitPrice, 18),
		ToWei(p.Amount, 18),
		ToWei(p.MaxFee, 18),
		big.NewInt(p.SubaccountID),
		p.IsBuy,
	)
	if err != nil {
		return nil, fmt.Errorf("encode trade payload: %w", err)
	}
	return encoded, nil
}

// EncodeTransfer packs a transfer payload into its canonical byte form.
func EncodeTransfer(p TransferPayload) ([]byte, error) {
	encoded, err := transferArgs.Pack(
		p.AssetAddress,
		ToWei(p.Amount, p.Decimals),
		big.NewInt(0),
	)
	if err != nil {
		return nil, fmt.Errorf("encode transfer payload: %w", err)
	}
	return encoded, nil
}

// EncodeDeposit packs a deposit payload into its canonical byte form.
func EncodeDeposit(p DepositPayload) ([]byte, error) {
	encoded, err := depositArgs.Pack(
		ToWei(p.Amount, p.Decimals),
		p.CashAddress,
		p.ManagerAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("encode deposit payload: %w", err)
	}
	return encoded, nil
}

// EncodeAction packs the action envelope whose keccak is the action hash.
func EncodeAction(
	typehash common.Hash,
	subaccountID int64,
	nonce *big.Int,
	module common.Address,
	payloadHash common.Hash,
	expirySec int64,
	owner common.Address,
	signer common.Address,
) ([]byte, error) {
	encoded, err := actionArgs.Pack(
		typehash,
		big.NewInt(subaccountID),
		nonce,
		module,
		payloadHash,
		big.NewInt(expirySec),
		owner,
		signer,
	)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	return encoded, nil
}
