package sign

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradeforge/lyra-go/params"
	"github.com/tradeforge/lyra-go/pkg/codec"
	"github.com/tradeforge/lyra-go/pkg/crypto"
)

// SigningError wraps a key-material failure. Fatal; never retried with the
// same key.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("signing failed: %v", e.Err) }
func (e *SigningError) Unwrap() error { return e.Err }

// Authorizer assembles actions, derives their typed-data hash and signs
// them. It holds no mutable state and may be used concurrently; callers own
// nonce uniqueness across concurrent authorizations for one subaccount.
type Authorizer struct {
	contracts params.Contracts
	signer    *crypto.Signer
	owner     common.Address
}

// NewAuthorizer builds an Authorizer signing on behalf of owner. For plain
// wallets owner is the signer's own address; for session keys it is the
// wallet the key was registered under.
func NewAuthorizer(contracts params.Contracts, signer *crypto.Signer, owner common.Address) *Authorizer {
	if owner == (common.Address{}) {
		owner = signer.Address()
	}
	return &Authorizer{contracts: contracts, signer: signer, owner: owner}
}

// Owner returns the wallet address actions are authorized for.
func (a *Authorizer) Owner() common.Address { return a.owner }

// NewNonce derives an action nonce from the current UTC milliseconds with a
// four-digit random suffix. Time-prefixed nonces increase in practice but
// are never required to be contiguous.
func NewNonce(now time.Time) *big.Int {
	ms := now.UnixMilli()
	suffix := rand.Int63n(10000)
	n := new(big.Int).SetInt64(ms)
	n.Mul(n, big.NewInt(10000))
	n.Add(n, big.NewInt(suffix))
	return n
}

// DefaultExpiry returns a signature expiry a few minutes out; the exchange
// rejects actions whose expiry has passed at verification time.
func DefaultExpiry(now time.Time) int64 {
	return now.Unix() + 300
}

func (a *Authorizer) signAction(action Action) (SignedAction, error) {
	digest, err := action.TypedDataHash(a.contracts.ActionTypehash, a.contracts.DomainSeparator)
	if err != nil {
		return SignedAction{}, err
	}
	sig, err := a.signer.Sign(digest.Bytes())
	if err != nil {
		return SignedAction{}, &SigningError{Err: err}
	}
	return SignedAction{Action: action, Signature: sig}, nil
}

// AuthorizeTrade signs a trade payload for the trade module. Idempotent for
// identical (payload, nonce, expiry).
func (a *Authorizer) AuthorizeTrade(payload codec.TradePayload, nonce *big.Int, expirySec int64) (SignedAction, error) {
	encoded, err := codec.EncodeTrade(payload)
	if err != nil {
		return SignedAction{}, err
	}
	return a.signAction(Action{
		SubaccountID:       payload.SubaccountID,
		Nonce:              nonce,
		SignatureExpirySec: expirySec,
		ModuleAddress:      a.contracts.TradeModuleAddress,
		ModuleData:         encoded,
		Owner:              a.owner,
		Signer:             a.signer.Address(),
	})
}

// AuthorizeTransfer produces the two independent signed actions a
// subaccount-to-subaccount transfer requires: one under the sending
// subaccount with nonce fromNonce, one under the recipient with a distinct
// toNonce, both over byte-identical transfer payload encodings. The exchange
// rejects the transfer if either is missing or mismatched.
func (a *Authorizer) AuthorizeTransfer(payload codec.TransferPayload, fromSubaccount, toSubaccount int64, fromNonce, toNonce *big.Int, expirySec int64) (SignedAction, SignedAction, error) {
	if fromNonce.Cmp(toNonce) == 0 {
		return SignedAction{}, SignedAction{}, fmt.Errorf("transfer legs must use distinct nonces")
	}
	encoded, err := codec.EncodeTransfer(payload)
	if err != nil {
		return SignedAction{}, SignedAction{}, err
	}

	base := Action{
		SignatureExpirySec: expirySec,
		ModuleAddress:      a.contracts.TransferModuleAddress,
		ModuleData:         encoded,
		Owner:              a.owner,
		Signer:             a.signer.Address(),
	}

	sender := base
	sender.SubaccountID = fromSubaccount
	sender.Nonce = fromNonce
	fromSigned, err := a.signAction(sender)
	if err != nil {
		return SignedAction{}, SignedAction{}, err
	}

	recipient := base
	recipient.SubaccountID = toSubaccount
	recipient.Nonce = toNonce
	toSigned, err := a.signAction(recipient)
	if err != nil {
		return SignedAction{}, SignedAction{}, err
	}

	return fromSigned, toSigned, nil
}

// AuthorizeDeposit signs a deposit payload for the deposit module.
// Subaccount id 0 creates a new subaccount.
func (a *Authorizer) AuthorizeDeposit(payload codec.DepositPayload, subaccountID int64, nonce *big.Int, expirySec int64) (SignedAction, error) {
	encoded, err := codec.EncodeDeposit(payload)
	if err != nil {
		return SignedAction{}, err
	}
	return a.signAction(Action{
		SubaccountID:       subaccountID,
		Nonce:              nonce,
		SignatureExpirySec: expirySec,
		ModuleAddress:      a.contracts.DepositModuleAddress,
		ModuleData:         encoded,
		Owner:              a.owner,
		Signer:             a.signer.Address(),
	})
}
