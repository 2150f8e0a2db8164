// Package sign turns logical trading intents into exchange-verifiable
// signed actions: canonical payload bytes are hashed, bound into an action
// envelope, domain-separated, and signed with the account key.
package sign

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tradeforge/lyra-go/pkg/codec"
	"github.com/tradeforge/lyra-go/pkg/crypto"
)

// Action binds a module payload to the subaccount, nonce, expiry and signing
// identities the exchange checks before executing it.
type Action struct {
	SubaccountID       int64
	Nonce              *big.Int
	SignatureExpirySec int64
	ModuleAddress      common.Address
	ModuleData         []byte // canonical payload bytes, pre-hash
	Owner              common.Address
	Signer             common.Address
}

// SignedAction is an Action plus the 65-byte signature over its typed-data
// hash. Immutable once produced; re-signing under a different nonce or
// expiry is a new SignedAction.
type SignedAction struct {
	Action
	Signature []byte
}

// SignatureHex renders the signature the way the wire format expects it.
func (a SignedAction) SignatureHex() string {
	return "0x" + hex.EncodeToString(a.Signature)
}

// ModuleDataHash is the keccak digest of the canonical payload bytes.
func (a Action) ModuleDataHash() common.Hash {
	return common.BytesToHash(crypto.Keccak256(a.ModuleData))
}

// Hash returns the action hash: keccak over the packed action envelope with
// the payload folded in as its digest.
func (a Action) Hash(typehash common.Hash) (common.Hash, error) {
	encoded, err := codec.EncodeAction(
		typehash,
		a.SubaccountID,
		a.Nonce,
		a.ModuleAddress,
		a.ModuleDataHash(),
		a.SignatureExpirySec,
		a.Owner,
		a.Signer,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(crypto.Keccak256(encoded)), nil
}

// TypedDataHash domain-separates the action hash:
// keccak256(0x1901 || domainSeparator || actionHash). The 0x1901 prefix and
// per-environment separator prevent a signature from being replayed against
// any other domain.
func (a Action) TypedDataHash(typehash, domainSeparator common.Hash) (common.Hash, error) {
	actionHash, err := a.Hash(typehash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("action hash: %w", err)
	}
	digest := crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator.Bytes(), actionHash.Bytes())
	return common.BytesToHash(digest), nil
}
