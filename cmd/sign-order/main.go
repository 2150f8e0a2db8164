// Offline signing utility: builds a trade action, prints every intermediate
// hash of the encode -> hash -> sign pipeline and the final signature, and
// verifies the signature recovers the signing address. The printed fields
// line up with the exchange's public/order_debug endpoint for comparison.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeforge/lyra-go/params"
	"github.com/tradeforge/lyra-go/pkg/codec"
	"github.com/tradeforge/lyra-go/pkg/crypto"
	"github.com/tradeforge/lyra-go/pkg/sign"
)

func main() {
	env := flag.String("env", "test", "environment: test|prod")
	market := flag.String("market", "ETH-PERP", "market key for the settlement asset")
	subID := flag.String("sub-id", "0", "on-chain sub id of the instrument")
	subaccount := flag.Int64("subaccount", 0, "subaccount id")
	side := flag.String("side", "buy", "buy|sell")
	price := flag.String("price", "0", "limit price")
	amount := flag.String("amount", "0", "order size")
	maxFee := flag.String("max-fee", "1000", "max fee")
	flag.Parse()

	cfg := params.ForEnvironment(params.Environment(*env))

	key := os.Getenv("ETH_PRIVATE_KEY")
	signer, err := crypto.FromPrivateKeyHex(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ETH_PRIVATE_KEY: %v\n", err)
		os.Exit(1)
	}

	assetAddr, ok := cfg.Contracts.AssetAddresses[*market]
	if !ok {
		fmt.Fprintf(os.Stderr, "no settlement asset configured for %s\n", *market)
		os.Exit(1)
	}
	instrumentSubID, ok := new(big.Int).SetString(*subID, 10)
	if !ok {
		fmt.Fprintf(os.Stderr, "malformed sub id %q\n", *subID)
		os.Exit(1)
	}

	payload := codec.TradePayload{
		AssetAddress: assetAddr,
		SubID:        instrumentSubID,
		LimitPrice:   mustDecimal(*price),
		Amount:       mustDecimal(*amount),
		MaxFee:       mustDecimal(*maxFee),
		SubaccountID: *subaccount,
		IsBuy:        *side == "buy",
	}

	now := time.Now()
	nonce := sign.NewNonce(now)
	expiry := sign.DefaultExpiry(now)

	authorizer := sign.NewAuthorizer(cfg.Contracts, signer, signer.Address())
	signed, err := authorizer.AuthorizeTrade(payload, nonce, expiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authorize: %v\n", err)
		os.Exit(1)
	}

	actionHash, _ := signed.Hash(cfg.Contracts.ActionTypehash)
	typedHash, _ := signed.TypedDataHash(cfg.Contracts.ActionTypehash, cfg.Contracts.DomainSeparator)

	fmt.Printf("signer:            %s\n", signer.Address().Hex())
	fmt.Printf("encoded_data_hash: %s\n", signed.ModuleDataHash().Hex())
	fmt.Printf("action_hash:       %s\n", actionHash.Hex())
	fmt.Printf("typed_data_hash:   %s\n", typedHash.Hex())
	fmt.Printf("nonce:             %s\n", nonce.String())
	fmt.Printf("expiry_sec:        %d\n", expiry)
	fmt.Printf("signature:         %s\n\n", signed.SignatureHex())

	if !crypto.VerifySignature(signer.Address(), typedHash.Bytes(), signed.Signature) {
		fmt.Fprintln(os.Stderr, "signature did not verify")
		os.Exit(1)
	}
	fmt.Println("signature verified")

	order := map[string]any{
		"instrument_name":      *market,
		"subaccount_id":        *subaccount,
		"direction":            *side,
		"limit_price":          *price,
		"amount":               *amount,
		"max_fee":              *maxFee,
		"nonce":                nonce,
		"signature_expiry_sec": expiry,
		"signer":               signer.Address().Hex(),
		"order_type":           "limit",
		"mmp":                  false,
		"signature":            signed.SignatureHex(),
	}
	out, _ := json.MarshalIndent(order, "", "  ")
	fmt.Println(string(out))
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad decimal %q: %v\n", s, err)
		os.Exit(1)
	}
	return d
}
