package crypto

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SignLegacyTx signs an L2 transaction with the account key and returns the
// RLP-encoded raw bytes. Used for the session-key registration flow, where
// the exchange builds the transaction and the client only signs it.
func (s *Signer) SignLegacyTx(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gas uint64, gasPrice *big.Int, data []byte) ([]byte, error) {
	if chainID == nil || chainID.Sign() == 0 {
		return nil, fmt.Errorf("missing chain id")
	}
	if value == nil {
		value = new(big.Int)
	}
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed.MarshalBinary()
}
